// Package buffer provides the bounded FIFO between the stream reader and the dispatcher.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of raw records held before the reader blocks.
const DefaultCapacity = 100

var (
	// ErrCancelled is returned by Take when it stops waiting without a record.
	ErrCancelled = errors.New("buffer take cancelled")
	// ErrClosed is returned by Take once the buffer is closed and drained.
	ErrClosed = fmt.Errorf("buffer closed: %w", ErrCancelled)
)

// Buffer is a fixed-capacity FIFO of raw records. Put and Take block.
type Buffer struct {
	items     chan string
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a buffer. Non-positive capacities fall back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		items:  make(chan string, capacity),
		closed: make(chan struct{}),
	}
}

// Put enqueues msg, blocking while the buffer is full. It reports false when
// the record was discarded because the buffer is closed or ctx ended.
func (b *Buffer) Put(ctx context.Context, msg string) bool {
	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.items <- msg:
		return true
	case <-b.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Take dequeues the oldest record, blocking while the buffer is empty.
func (b *Buffer) Take(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	select {
	case msg := <-b.items:
		return msg, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-b.closed:
		// Records accepted before Close are still handed out.
		select {
		case msg := <-b.items:
			return msg, nil
		default:
			return "", ErrClosed
		}
	}
}

// Close stops accepting records and wakes blocked callers. Safe to call twice.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Len returns the number of queued records.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return cap(b.items)
}
