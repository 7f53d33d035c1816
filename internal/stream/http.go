package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/observability"
)

const maxErrorBody = 512

var (
	errStalled    = errors.New("stream stalled")
	errSinkClosed = errors.New("sink closed")
)

var _ Client = (*HTTPClient)(nil)

// HTTPClient streams records from the filter endpoint over an OAuth1 signed
// long-lived HTTP request.
type HTTPClient struct {
	opts   Options
	http   *http.Client
	logger *slog.Logger

	runCtx context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	err     error

	done       chan struct{}
	finishOnce sync.Once
	hostIndex  atomic.Int64
}

// NewHTTPClient builds the production client. It satisfies Builder.
func NewHTTPClient(opts Options) (Client, error) {
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	opts = opts.withDefaults()

	config := oauth1.NewConfig(opts.Auth.ConsumerKey, opts.Auth.ConsumerSecret)
	token := oauth1.NewToken(opts.Auth.AccessToken, opts.Auth.AccessSecret)
	baseCtx := context.WithValue(context.Background(), oauth1.HTTPClient, opts.HTTPClient)

	runCtx, cancel := context.WithCancel(context.Background())
	return &HTTPClient{
		opts:   opts,
		http:   config.Client(baseCtx, token),
		logger: logging.Logger().With("client", opts.Name),
		runCtx: runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// Connect opens the stream and starts the reader goroutine.
func (c *HTTPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("stream client already connected")
	}
	c.started = true
	c.mu.Unlock()

	if c.runCtx.Err() != nil {
		c.finish(ErrStopped)
		return ErrStopped
	}

	// Abandon the attempt if the caller gives up before the server answers.
	detach := context.AfterFunc(ctx, c.cancel)
	resp, err := c.open()
	detach()
	if err != nil {
		if c.runCtx.Err() != nil && ctx.Err() == nil {
			err = ErrStopped
		}
		c.finish(err)
		return err
	}

	c.logger.Info("stream connected", "host", resp.Request.URL.Host, "locations", c.opts.Endpoint.Values().Get("locations"))
	go c.run(resp)
	return nil
}

// IsDone reports whether the client terminated.
func (c *HTTPClient) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed when the client terminates.
func (c *HTTPClient) Done() <-chan struct{} {
	return c.done
}

// Err returns the termination cause, nil after a requested Stop.
func (c *HTTPClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Stop cancels the connection and waits for the reader to exit.
func (c *HTTPClient) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if !started {
		c.finish(nil)
	}
	<-c.done
}

func (c *HTTPClient) finish(err error) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.cancel()
		close(c.done)
	})
}

func (c *HTTPClient) nextHost() string {
	i := c.hostIndex.Add(1) - 1
	return strings.TrimRight(c.opts.Hosts[int(i)%len(c.opts.Hosts)], "/")
}

func (c *HTTPClient) open() (*http.Response, error) {
	host := c.nextHost()
	form := c.opts.Endpoint.Values()

	req, err := http.NewRequestWithContext(c.runCtx, http.MethodPost, host+c.opts.Endpoint.Path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ConnectError{Host: host, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.opts.Name)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.ConnectFailures.WithLabelValues("0").Inc()
		return nil, &ConnectError{Host: host, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		observability.ConnectFailures.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &ConnectError{
			Host:       host,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

func (c *HTTPClient) run(resp *http.Response) {
	backoff := newBackoffState(c.opts.Backoff)
	attempts := 0

	for {
		err := c.consume(resp.Body)
		resp.Body.Close()
		if c.runCtx.Err() != nil {
			c.finish(nil)
			return
		}
		if errors.Is(err, errSinkClosed) {
			c.finish(err)
			return
		}
		c.logger.Warn("stream disconnected", "err", err)

		resp = nil
		for resp == nil {
			if attempts >= c.opts.MaxReconnects {
				c.finish(fmt.Errorf("stream terminated after %d reconnect attempts: %w", attempts, err))
				return
			}
			delay := backoff.next(err)
			c.logger.Info("stream reconnecting", "delay", delay, "attempt", attempts+1)
			select {
			case <-c.runCtx.Done():
				c.finish(nil)
				return
			case <-time.After(delay):
			}

			attempts++
			observability.StreamReconnects.Inc()
			next, openErr := c.open()
			if openErr != nil {
				if c.runCtx.Err() != nil {
					c.finish(nil)
					return
				}
				var connErr *ConnectError
				if errors.As(openErr, &connErr) && !connErr.Retryable() {
					c.finish(openErr)
					return
				}
				c.logger.Warn("stream reconnect failed", "err", openErr)
				err = openErr
				continue
			}
			resp = next
		}
		attempts = 0
		backoff.reset()
		c.logger.Info("stream reconnected", "host", resp.Request.URL.Host)
	}
}

func (c *HTTPClient) consume(body io.ReadCloser) error {
	watch := newStallWatch(body, c.opts.StallTimeout)
	defer watch.stop()

	proc := NewProcessor(watch)
	for {
		record, err := proc.Next()
		if err != nil {
			if watch.stalled.Load() {
				observability.StreamStalls.Inc()
				return errStalled
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if !c.opts.Sink.Put(c.runCtx, record) {
			if c.runCtx.Err() != nil {
				return c.runCtx.Err()
			}
			observability.RecordsDropped.Inc()
			return errSinkClosed
		}
		observability.RecordsReceived.Inc()
	}
}

// stallWatch closes the body when no bytes arrive within the timeout.
type stallWatch struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	stalled atomic.Bool
}

func newStallWatch(body io.ReadCloser, timeout time.Duration) *stallWatch {
	w := &stallWatch{body: body, timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.stalled.Store(true)
		body.Close()
	})
	return w
}

func (w *stallWatch) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	if n > 0 {
		w.timer.Reset(w.timeout)
	}
	return n, err
}

func (w *stallWatch) stop() {
	w.timer.Stop()
}
