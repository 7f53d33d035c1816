package runtime

import (
	"context"
	"errors"
	"fmt"
)

// Outlet addresses one of the four outbound channels.
type Outlet int

const (
	OutletScreenName Outlet = iota
	OutletText
	OutletCreatedAt
	OutletRaw
)

// Outlets lists every outlet in emission order.
var Outlets = []Outlet{OutletScreenName, OutletText, OutletCreatedAt, OutletRaw}

func (o Outlet) String() string {
	switch o {
	case OutletScreenName:
		return "screen_name"
	case OutletText:
		return "text"
	case OutletCreatedAt:
		return "created_at"
	case OutletRaw:
		return "raw"
	default:
		return fmt.Sprintf("outlet(%d)", int(o))
	}
}

// Outputs receives decoded fields. Implementations must not block for long;
// any buffering is theirs.
type Outputs interface {
	Emit(ctx context.Context, outlet Outlet, payload string) error
}

// OutputsFunc adapts a function to Outputs.
type OutputsFunc func(ctx context.Context, outlet Outlet, payload string) error

func (f OutputsFunc) Emit(ctx context.Context, outlet Outlet, payload string) error {
	return f(ctx, outlet, payload)
}

// Fanout emits to every host in order and joins their errors.
type Fanout []Outputs

func (f Fanout) Emit(ctx context.Context, outlet Outlet, payload string) error {
	var errs []error
	for _, out := range f {
		if out == nil {
			continue
		}
		if err := out.Emit(ctx, outlet, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message is an inbound control line delivered by a host.
type Message struct {
	Text string
}

// ResponseWriter sends control replies back to the host that sent the command.
type ResponseWriter interface {
	WriteMessage(ctx context.Context, text string) error
}

// Handler processes inbound control messages and writes replies.
type Handler interface {
	HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error
}

// Listener receives host input and dispatches it to a Handler.
type Listener interface {
	Listen(ctx context.Context, handler Handler) error
}
