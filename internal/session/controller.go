// Package session owns the Idle/Running/Stopping lifecycle of the stream. Each
// start builds a fresh buffer, stream client, and dispatcher; stop tears them
// down and joins the dispatcher.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/neoclaw-ai/geostream/internal/buffer"
	"github.com/neoclaw-ai/geostream/internal/credentials"
	"github.com/neoclaw-ai/geostream/internal/geo"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/observability"
	"github.com/neoclaw-ai/geostream/internal/runtime"
	"github.com/neoclaw-ai/geostream/internal/stream"
)

// State is the controller lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StreamSettings are the per-session stream client parameters.
type StreamSettings struct {
	Name           string
	Hosts          []string
	Path           string
	Params         url.Values
	BufferCapacity int
	StallTimeout   time.Duration
	MaxReconnects  int
	HTTPClient     *http.Client
}

// Config wires a Controller to its collaborators.
type Config struct {
	Credentials *credentials.Store
	Filters     *geo.Registry
	Build       stream.Builder
	Outputs     runtime.Outputs
	Stream      StreamSettings
}

// Session is one start-to-stop lifetime. It is never reused.
type Session struct {
	StartedAt time.Time
	Locations []geo.BoundingBox

	buffer     *buffer.Buffer
	client     stream.Client
	dispatcher *runtime.Dispatcher
	cancel     context.CancelFunc
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	StartedAt time.Time
	Locations []geo.BoundingBox
	Stats     runtime.Stats
	Buffered  int
	Capacity  int
	// LastErr is the most recent connect failure or stream termination cause.
	LastErr error
}

// Controller serialises start, stop, and toggle requests.
type Controller struct {
	cfg Config

	// opMu serialises lifecycle operations; mu guards the fields below.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	current *Session
	lastErr error
}

// NewController creates an Idle controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if cfg.Filters == nil {
		return nil, errors.New("filter registry is required")
	}
	if cfg.Outputs == nil {
		return nil, errors.New("outputs are required")
	}
	if cfg.Build == nil {
		cfg.Build = stream.NewHTTPClient
	}
	switch {
	case cfg.Stream.BufferCapacity <= 0:
		cfg.Stream.BufferCapacity = buffer.DefaultCapacity
	case cfg.Stream.BufferCapacity > buffer.DefaultCapacity:
		return nil, fmt.Errorf("buffer capacity %d exceeds %d", cfg.Stream.BufferCapacity, buffer.DefaultCapacity)
	}
	observability.SessionState.Set(float64(Idle))
	return &Controller{cfg: cfg}, nil
}

// Start connects a new session. It is a no-op unless the controller is Idle.
// A failed connect leaves the controller Idle and returns the error.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.startLocked(ctx)
}

// Stop ends the running session and waits for the dispatcher to exit, bounded
// by ctx. It is a no-op unless the controller is Running.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked(ctx)
}

// Toggle starts an Idle controller and stops a Running one.
func (c *Controller) Toggle(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch c.State() {
	case Idle:
		return c.startLocked(ctx)
	case Running:
		return c.stopLocked(ctx)
	default:
		return nil
	}
}

// SetControl stops on zero and starts on any other value.
func (c *Controller) SetControl(ctx context.Context, v int) error {
	if v == 0 {
		return c.Stop(ctx)
	}
	return c.Start(ctx)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the state and the counters of the current session.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{State: c.state, LastErr: c.lastErr}
	if s := c.current; s != nil {
		st.StartedAt = s.StartedAt
		st.Locations = append([]geo.BoundingBox(nil), s.Locations...)
		st.Stats = s.dispatcher.Stats()
		st.Buffered = s.buffer.Len()
		st.Capacity = s.buffer.Cap()
	}
	return st
}

func (c *Controller) startLocked(ctx context.Context) error {
	if c.State() != Idle {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	creds := c.cfg.Credentials.Snapshot()
	locations := c.cfg.Filters.Snapshot()
	buf := buffer.New(c.cfg.Stream.BufferCapacity)

	client, err := c.cfg.Build(stream.Options{
		Name:  c.cfg.Stream.Name,
		Hosts: c.cfg.Stream.Hosts,
		Endpoint: stream.Endpoint{
			Path:      c.cfg.Stream.Path,
			Locations: locations,
			Params:    c.cfg.Stream.Params,
		},
		Auth:          creds,
		Sink:          buf,
		HTTPClient:    c.cfg.Stream.HTTPClient,
		StallTimeout:  c.cfg.Stream.StallTimeout,
		MaxReconnects: c.cfg.Stream.MaxReconnects,
	})
	if err != nil {
		return fmt.Errorf("build stream client: %w", err)
	}

	c.setState(Running)
	logging.Logger().Info("session starting", "locations", len(locations), "credentials", creds.Redacted())

	if err := client.Connect(ctx); err != nil {
		client.Stop()
		buf.Close()
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.setState(Idle)
		logging.Logger().Warn("session start failed", "err", err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d := runtime.NewDispatcher(buf, client, c.cfg.Outputs)
	if err := d.Start(runCtx); err != nil {
		cancel()
		client.Stop()
		buf.Close()
		c.setState(Idle)
		return fmt.Errorf("start dispatcher: %w", err)
	}

	s := &Session{
		StartedAt:  time.Now(),
		Locations:  locations,
		buffer:     buf,
		client:     client,
		dispatcher: d,
		cancel:     cancel,
	}
	c.mu.Lock()
	c.current = s
	c.lastErr = nil
	c.mu.Unlock()
	observability.SessionStarts.Inc()
	logging.Logger().Info("session running")

	go c.reap(s)
	return nil
}

func (c *Controller) stopLocked(ctx context.Context) error {
	c.mu.RLock()
	s := c.current
	state := c.state
	c.mu.RUnlock()
	if state != Running || s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.setState(Stopping)
	logging.Logger().Info("session stopping")
	s.cancel()
	s.buffer.Close()

	select {
	case <-s.dispatcher.Done():
	case <-ctx.Done():
		// The reaper finishes the transition once the dispatcher exits.
		return fmt.Errorf("stop session: %w", ctx.Err())
	}

	c.finish(s, nil)
	logging.Logger().Info("session stopped", "emitted", s.dispatcher.Stats().Emitted)
	return nil
}

// reap returns the controller to Idle when the dispatcher exits on its own.
func (c *Controller) reap(s *Session) {
	s.dispatcher.Wait()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()
	if current != s {
		return
	}

	s.cancel()
	s.buffer.Close()
	err := s.client.Err()
	c.finish(s, err)
	if err != nil {
		logging.Logger().Warn("session ended", "err", err)
	} else {
		logging.Logger().Info("session ended")
	}
}

func (c *Controller) finish(s *Session, err error) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
	c.setState(Idle)
	observability.BufferDepth.Set(0)
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	observability.SessionState.Set(float64(state))
}
