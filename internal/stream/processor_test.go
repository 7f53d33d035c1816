package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorFraming(t *testing.T) {
	wire := "\r\n" +
		lengthDelimited(`{"id":1,"text":"multi\nline"}`) +
		"\n" +
		`{"id":2}` + "\r\n" +
		lengthDelimited(`{"id":3}`)

	p := NewProcessor(strings.NewReader(wire))
	var got []string
	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}
	assert.Equal(t, []string{`{"id":1,"text":"multi\nline"}`, `{"id":2}`, `{"id":3}`}, got)
}

func TestProcessorTruncatedRecord(t *testing.T) {
	p := NewProcessor(strings.NewReader("40\r\n{\"id\":1"))
	_, err := p.Next()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	p = NewProcessor(strings.NewReader(`{"partial":`))
	_, err = p.Next()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestProcessorRejectsOversizedRecord(t *testing.T) {
	p := NewProcessor(strings.NewReader("999999999\r\n"))
	_, err := p.Next()
	assert.True(t, errors.Is(err, ErrRecordTooLarge))
}

func TestProcessorRejectsUnterminatedOversizedLine(t *testing.T) {
	p := NewProcessor(strings.NewReader(strings.Repeat("x", MaxRecordSize+3)))
	_, err := p.Next()
	assert.True(t, errors.Is(err, ErrRecordTooLarge))
}

func TestProcessorAcceptsLineAcrossReadBuffer(t *testing.T) {
	long := `{"text":"` + strings.Repeat("a", 100<<10) + `"}`
	p := NewProcessor(strings.NewReader(long + "\r\n"))
	rec, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, long, rec)
}

func TestBackoffPolicy(t *testing.T) {
	b := newBackoffState(DefaultBackoff())

	assert.Equal(t, 250*time.Millisecond, b.next(io.ErrUnexpectedEOF))
	assert.Equal(t, 500*time.Millisecond, b.next(&ConnectError{Err: io.EOF}))

	assert.Equal(t, 5*time.Second, b.next(&ConnectError{StatusCode: 503}))
	assert.Equal(t, 10*time.Second, b.next(&ConnectError{StatusCode: 500}))

	assert.Equal(t, time.Minute, b.next(&ConnectError{StatusCode: 420}))
	assert.Equal(t, 2*time.Minute, b.next(&ConnectError{StatusCode: 429}))

	for i := 0; i < 100; i++ {
		b.next(io.EOF)
	}
	assert.Equal(t, 16*time.Second, b.next(io.EOF))

	b.reset()
	assert.Equal(t, 250*time.Millisecond, b.next(io.EOF))
}

func TestConnectErrorRetryable(t *testing.T) {
	assert.True(t, (&ConnectError{StatusCode: 503}).Retryable())
	assert.True(t, (&ConnectError{StatusCode: 420}).Retryable())
	assert.False(t, (&ConnectError{StatusCode: 401}).Retryable())
	assert.False(t, (&ConnectError{StatusCode: 406}).Retryable())
	assert.Contains(t, (&ConnectError{Host: "h", StatusCode: 401, Body: "nope"}).Error(), "http 401: nope")
}
