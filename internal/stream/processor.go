package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	maxLengthDigits = 9
	// MaxRecordSize bounds a single record, framed or plain.
	MaxRecordSize = 4 << 20
)

// ErrRecordTooLarge is returned when a record exceeds MaxRecordSize.
var ErrRecordTooLarge = errors.New("stream record too large")

// Processor frames the response body into whole records.
//
// Three kinds of line appear on the wire: blank keep-alives, decimal length
// prefixes announcing a record of that many bytes, and plain
// newline-delimited records.
type Processor struct {
	r *bufio.Reader
}

func NewProcessor(r io.Reader) *Processor {
	return &Processor{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next whole record. A truncated trailing record is
// discarded and reported as io.ErrUnexpectedEOF.
func (p *Processor) Next() (string, error) {
	for {
		line, err := p.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(line) != "" {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}

		n, ok := parseLength(trimmed)
		if !ok {
			return trimmed, nil
		}
		if n > MaxRecordSize {
			return "", fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(p.r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		record := strings.TrimRight(string(buf), "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		return record, nil
	}
}

// readLine reads through the next newline, failing once the line outgrows
// MaxRecordSize.
func (p *Processor) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := p.r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxRecordSize+2 {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrRecordTooLarge, MaxRecordSize)
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

func parseLength(line string) (int, bool) {
	s := strings.TrimSpace(line)
	if s == "" || len(s) > maxLengthDigits {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
