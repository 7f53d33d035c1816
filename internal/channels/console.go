package channels

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/neoclaw-ai/geostream/internal/runtime"
)

var _ runtime.Outputs = (*ConsoleOutputs)(nil)

// ConsoleOutputs prints each outlet emission as one "name> payload" line.
type ConsoleOutputs struct {
	mu  sync.Mutex
	out io.Writer
	raw bool
}

// NewConsoleOutputs creates console outputs. The raw outlet is printed only when raw is set.
func NewConsoleOutputs(out io.Writer, raw bool) *ConsoleOutputs {
	return &ConsoleOutputs{out: out, raw: raw}
}

// Emit writes one outlet line.
func (c *ConsoleOutputs) Emit(_ context.Context, outlet runtime.Outlet, payload string) error {
	if outlet == runtime.OutletRaw && !c.raw {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s> %s\n", outlet, payload)
	return err
}
