// Package stream connects to the filtered status stream and feeds whole
// records into a sink. It is the only package that touches the network.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/neoclaw-ai/geostream/internal/credentials"
	"github.com/neoclaw-ai/geostream/internal/geo"
)

const (
	DefaultName         = "geostream"
	DefaultHost         = "https://stream.twitter.com"
	DefaultFilterPath   = "/1.1/statuses/filter.json"
	DefaultStallTimeout = 90 * time.Second
	DefaultReconnects   = 5
)

// ErrStopped is returned by Connect on a client that was already stopped.
var ErrStopped = errors.New("stream client stopped")

// Client is one connect-to-disconnect lifetime of the upstream stream.
type Client interface {
	// Connect opens the stream. It blocks until the server accepted the
	// request or the attempt failed with a *ConnectError.
	Connect(ctx context.Context) error
	// IsDone reports whether the client has terminated for any reason.
	IsDone() bool
	// Done is closed once the client has terminated.
	Done() <-chan struct{}
	// Stop requests an orderly close and waits for the reader to exit. Idempotent.
	Stop()
	// Err returns the reason the client terminated, nil for a requested stop.
	Err() error
}

// Sink receives whole records from the stream reader.
type Sink interface {
	Put(ctx context.Context, msg string) bool
}

// Builder constructs a Client. NewHTTPClient is the production builder.
type Builder func(Options) (Client, error)

// Endpoint is the filter resource and its parameters.
type Endpoint struct {
	Path      string
	Locations []geo.BoundingBox
	Params    url.Values
}

// Values renders the request form. The locations parameter is the flattened
// list of box coordinates.
func (e Endpoint) Values() url.Values {
	v := url.Values{}
	for key, vals := range e.Params {
		v[key] = append([]string(nil), vals...)
	}
	if len(e.Locations) > 0 {
		v.Set("locations", geo.JoinBoxes(e.Locations))
	}
	v.Set("delimited", "length")
	v.Set("stall_warnings", "true")
	return v
}

// Options configures a Client.
type Options struct {
	// Name identifies the client in logs and the User-Agent header.
	Name     string
	Hosts    []string
	Endpoint Endpoint
	Auth     credentials.Credentials
	Sink     Sink
	// HTTPClient is the unsigned transport; OAuth1 signing wraps it.
	HTTPClient   *http.Client
	StallTimeout time.Duration
	// MaxReconnects bounds consecutive reconnect attempts. Zero disables reconnecting.
	MaxReconnects int
	Backoff       Backoff
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if len(o.Hosts) == 0 {
		o.Hosts = []string{DefaultHost}
	}
	if o.Endpoint.Path == "" {
		o.Endpoint.Path = DefaultFilterPath
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.MaxReconnects < 0 {
		o.MaxReconnects = 0
	}
	if o.Backoff == (Backoff{}) {
		o.Backoff = DefaultBackoff()
	}
	return o
}

// ConnectError reports a failed attempt to open the stream.
type ConnectError struct {
	Host       string
	StatusCode int
	Body       string
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("connect %s: http %d: %s", e.Host, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("connect %s: http %d", e.Host, e.StatusCode)
	}
	return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Retryable reports whether reconnecting can succeed without operator action.
func (e *ConnectError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 420, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}
