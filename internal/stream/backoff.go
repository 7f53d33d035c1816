package stream

import (
	"errors"
	"net/http"
	"time"
)

// Backoff is the reconnect delay policy.
//
// Network failures back off linearly, HTTP failures exponentially, and rate
// limit responses exponentially from a larger base.
type Backoff struct {
	NetworkStep   time.Duration
	NetworkMax    time.Duration
	HTTPBase      time.Duration
	HTTPMax       time.Duration
	RateLimitBase time.Duration
	RateLimitMax  time.Duration
}

// DefaultBackoff follows the upstream provider's published reconnect guidance.
func DefaultBackoff() Backoff {
	return Backoff{
		NetworkStep:   250 * time.Millisecond,
		NetworkMax:    16 * time.Second,
		HTTPBase:      5 * time.Second,
		HTTPMax:       320 * time.Second,
		RateLimitBase: time.Minute,
		RateLimitMax:  15 * time.Minute,
	}
}

type backoffState struct {
	policy  Backoff
	network time.Duration
	http    time.Duration
	limit   time.Duration
}

func newBackoffState(policy Backoff) *backoffState {
	return &backoffState{policy: policy}
}

// next returns the delay before the reconnect that follows err.
func (b *backoffState) next(err error) time.Duration {
	var connErr *ConnectError
	status := 0
	if errors.As(err, &connErr) {
		status = connErr.StatusCode
	}

	switch {
	case status == 420 || status == http.StatusTooManyRequests:
		b.limit = grow(b.limit, b.policy.RateLimitBase, b.policy.RateLimitMax)
		return b.limit
	case status != 0:
		b.http = grow(b.http, b.policy.HTTPBase, b.policy.HTTPMax)
		return b.http
	default:
		b.network += b.policy.NetworkStep
		if b.network > b.policy.NetworkMax {
			b.network = b.policy.NetworkMax
		}
		return b.network
	}
}

func (b *backoffState) reset() {
	b.network, b.http, b.limit = 0, 0, 0
}

func grow(cur, base, max time.Duration) time.Duration {
	if cur == 0 {
		return base
	}
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}
