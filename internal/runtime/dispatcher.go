// Package runtime drains the session buffer and fans decoded records out to
// the host outlets. It also defines the host facing interfaces.
package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/observability"
	"github.com/neoclaw-ai/geostream/internal/status"
	"golang.org/x/time/rate"
)

// Source is the consumer side of the session buffer.
type Source interface {
	Take(ctx context.Context) (string, error)
	Len() int
}

// StreamClient is the part of the stream client the dispatcher controls.
type StreamClient interface {
	IsDone() bool
	Done() <-chan struct{}
	Stop()
}

// Stats counts records seen by one dispatcher.
type Stats struct {
	Received int64
	Emitted  int64
	Skipped  int64
}

// Dispatcher takes raw records one at a time, decodes them, and emits the
// four projections before taking the next record.
type Dispatcher struct {
	source  Source
	client  StreamClient
	outputs Outputs

	done chan struct{}

	stateMu sync.Mutex
	started bool

	received atomic.Int64
	emitted  atomic.Int64
	skipped  atomic.Int64

	skipLog rate.Sometimes
}

// NewDispatcher creates a dispatcher over one session's buffer and client.
func NewDispatcher(source Source, client StreamClient, outputs Outputs) *Dispatcher {
	return &Dispatcher{
		source:  source,
		client:  client,
		outputs: outputs,
		done:    make(chan struct{}),
		skipLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

// Start begins the dispatch loop. Cancelling ctx stops it.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d == nil {
		return errors.New("dispatcher is required")
	}
	if d.source == nil {
		return errors.New("source is required")
	}
	if d.client == nil {
		return errors.New("stream client is required")
	}
	if d.outputs == nil {
		return errors.New("outputs are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.stateMu.Lock()
	if d.started {
		d.stateMu.Unlock()
		return errors.New("dispatcher already started")
	}
	d.started = true
	d.stateMu.Unlock()

	go d.run(ctx)
	return nil
}

// Wait blocks until the dispatch loop exits.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	<-d.done
}

// Done is closed when the dispatch loop has exited and the client is stopped.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received: d.received.Load(),
		Emitted:  d.emitted.Load(),
		Skipped:  d.skipped.Load(),
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.client.Stop()

	takeCtx, cancelTake := context.WithCancel(ctx)
	defer cancelTake()
	go func() {
		select {
		case <-d.client.Done():
			cancelTake()
		case <-takeCtx.Done():
		}
	}()

	for {
		if ctx.Err() != nil {
			logging.Logger().Info("dispatcher cancelled", "emitted", d.emitted.Load(), "skipped", d.skipped.Load())
			return
		}
		if d.client.IsDone() {
			logging.Logger().Warn("stream terminated", "emitted", d.emitted.Load(), "skipped", d.skipped.Load())
			return
		}

		raw, err := d.source.Take(takeCtx)
		if err != nil {
			if takeCtx.Err() == nil {
				logging.Logger().Warn("buffer unavailable", "err", err)
				return
			}
			continue
		}
		observability.BufferDepth.Set(float64(d.source.Len()))
		d.dispatch(ctx, raw)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, raw string) {
	d.received.Add(1)
	msg, err := status.Decode(raw)
	if err != nil {
		d.skipped.Add(1)
		observability.RecordsSkipped.WithLabelValues(status.Reason(err)).Inc()
		d.skipLog.Do(func() {
			logging.Logger().Info("skipping undecodable record", "err", err, "skipped_total", d.skipped.Load())
		})
		return
	}

	// The four emissions of one record are not interrupted by cancellation.
	emitCtx := context.WithoutCancel(ctx)
	payloads := [...]string{msg.ScreenName, msg.Text, msg.CreatedAt, msg.Raw}
	for i, outlet := range Outlets {
		if err := d.outputs.Emit(emitCtx, outlet, payloads[i]); err != nil {
			observability.EmitErrors.WithLabelValues(outlet.String()).Inc()
			logging.Logger().Warn("outlet emit failed", "outlet", outlet.String(), "err", err)
		}
	}
	d.emitted.Add(1)
	observability.RecordsEmitted.Inc()
}
