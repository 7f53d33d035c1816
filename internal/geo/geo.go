// Package geo holds the bounding boxes used to filter the status stream.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidBox is returned when box coordinates are out of range or inverted.
var ErrInvalidBox = errors.New("invalid bounding box")

// BoundingBox is a rectangle defined by its south-west and north-east corners,
// in (longitude, latitude) order.
type BoundingBox struct {
	SWLon float64 `json:"sw_lon"`
	SWLat float64 `json:"sw_lat"`
	NELon float64 `json:"ne_lon"`
	NELat float64 `json:"ne_lat"`
}

// NewBoundingBox builds and validates a box.
func NewBoundingBox(swLon, swLat, neLon, neLat float64) (BoundingBox, error) {
	box := BoundingBox{SWLon: swLon, SWLat: swLat, NELon: neLon, NELat: neLat}
	if err := box.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return box, nil
}

// Validate checks the coordinate invariants.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.SWLon, b.SWLat, b.NELon, b.NELat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidBox)
		}
	}
	if b.SWLon < -180 || b.NELon > 180 {
		return fmt.Errorf("%w: longitude outside [-180, 180]", ErrInvalidBox)
	}
	if b.SWLat < -90 || b.NELat > 90 {
		return fmt.Errorf("%w: latitude outside [-90, 90]", ErrInvalidBox)
	}
	if b.SWLon > b.NELon {
		return fmt.Errorf("%w: south-west longitude %v is east of %v", ErrInvalidBox, b.SWLon, b.NELon)
	}
	if b.SWLat > b.NELat {
		return fmt.Errorf("%w: south-west latitude %v is north of %v", ErrInvalidBox, b.SWLat, b.NELat)
	}
	return nil
}

// String renders the box as the stream endpoint expects it:
// "swLon,swLat,neLon,neLat".
func (b BoundingBox) String() string {
	return strings.Join([]string{
		formatCoord(b.SWLon),
		formatCoord(b.SWLat),
		formatCoord(b.NELon),
		formatCoord(b.NELat),
	}, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// JoinBoxes renders boxes as one comma separated list of coordinates.
func JoinBoxes(boxes []BoundingBox) string {
	parts := make([]string, 0, len(boxes))
	for _, box := range boxes {
		parts = append(parts, box.String())
	}
	return strings.Join(parts, ",")
}

// Registry is the ordered set of active bounding boxes. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	boxes []BoundingBox
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddLocation applies one filter input.
//
// An empty args list clears the registry. Four or more numeric args append one
// box built from the first four. Anything else leaves the registry untouched.
// The return value reports whether the registry changed.
func (r *Registry) AddLocation(args []any) bool {
	if len(args) == 0 {
		r.Clear()
		return true
	}
	if len(args) < 4 {
		return false
	}

	var coords [4]float64
	for i := range coords {
		v, ok := numeric(args[i])
		if !ok {
			return false
		}
		coords[i] = v
	}
	if err := r.Add(BoundingBox{SWLon: coords[0], SWLat: coords[1], NELon: coords[2], NELat: coords[3]}); err != nil {
		return false
	}
	return true
}

// Add validates and appends one box.
func (r *Registry) Add(box BoundingBox) error {
	if err := box.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxes = append(r.boxes, box)
	return nil
}

// Clear removes every box.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxes = nil
}

// Len returns the number of boxes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boxes)
}

// Snapshot returns a copy of the current boxes.
func (r *Registry) Snapshot() []BoundingBox {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BoundingBox, len(r.boxes))
	copy(out, r.boxes)
	return out
}

// ParseArgs converts host tokens into AddLocation arguments. Tokens that parse
// as floats become float64; the rest stay strings and are rejected later.
func ParseArgs(tokens []string) []any {
	args := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		if v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64); err == nil {
			args = append(args, v)
			continue
		}
		args = append(args, tok)
	}
	return args
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
