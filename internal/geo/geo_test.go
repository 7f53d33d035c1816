package geo

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLocationEmptyClears(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.AddLocation(nil))
	assert.Empty(t, r.Snapshot())

	require.True(t, r.AddLocation([]any{1.0, 2.0, 3.0, 4.0}))
	require.Equal(t, 1, r.Len())
	require.True(t, r.AddLocation([]any{}))
	assert.Zero(t, r.Len())
}

func TestAddLocationAppendsOneBox(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.AddLocation([]any{-122.75, 36.8, -121.75, 37.8}))

	assert.Equal(t, []BoundingBox{{SWLon: -122.75, SWLat: 36.8, NELon: -121.75, NELat: 37.8}}, r.Snapshot())
}

func TestAddLocationUsesFirstFourOnly(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.AddLocation([]any{0, 0, 10, 10, 99, 99, 99, 99}))

	assert.Equal(t, []BoundingBox{{SWLon: 0, SWLat: 0, NELon: 10, NELat: 10}}, r.Snapshot())
}

func TestAddLocationMalformedIsNoop(t *testing.T) {
	tests := []struct {
		name string
		args []any
	}{
		{name: "too few", args: []any{1.0, 2.0}},
		{name: "three", args: []any{1.0, 2.0, 3.0}},
		{name: "non numeric", args: []any{1.0, "north", 3.0, 4.0}},
		{name: "numeric string", args: []any{"1", "2", "3", "4"}},
		{name: "inverted", args: []any{10.0, 0.0, 0.0, 10.0}},
		{name: "out of range", args: []any{-200.0, 0.0, 0.0, 10.0}},
		{name: "nan", args: []any{math.NaN(), 0.0, 1.0, 1.0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			require.True(t, r.AddLocation([]any{0, 0, 1, 1}))

			assert.False(t, r.AddLocation(tc.args))
			assert.Equal(t, []BoundingBox{{NELon: 1, NELat: 1}}, r.Snapshot())
		})
	}
}

func TestAddLocationAcceptsJSONNumbers(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.AddLocation([]any{json.Number("-74"), json.Number("40"), json.Number("-73"), json.Number("41")}))
	assert.Equal(t, "-74,40,-73,41", r.Snapshot()[0].String())
}

func TestSnapshotIsIsolated(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.AddLocation([]any{0, 0, 1, 1}))
	snap := r.Snapshot()

	require.True(t, r.AddLocation([]any{2, 2, 3, 3}))
	snap[0].SWLon = 0.5

	assert.Len(t, snap, 1)
	assert.Equal(t, 0.0, r.Snapshot()[0].SWLon)
}

func TestBoundingBoxString(t *testing.T) {
	box, err := NewBoundingBox(-122.75, 36.8, -121.75, 37.8)
	require.NoError(t, err)
	assert.Equal(t, "-122.75,36.8,-121.75,37.8", box.String())

	other, err := NewBoundingBox(-74, 40, -73, 41)
	require.NoError(t, err)
	assert.Equal(t, "-122.75,36.8,-121.75,37.8,-74,40,-73,41", JoinBoxes([]BoundingBox{box, other}))
}

func TestBoundingBoxValidate(t *testing.T) {
	_, err := NewBoundingBox(0, 10, 1, 5)
	assert.True(t, errors.Is(err, ErrInvalidBox))

	_, err = NewBoundingBox(-180, -90, 180, 90)
	assert.NoError(t, err)
}

func TestParseArgs(t *testing.T) {
	args := ParseArgs([]string{"-122.75", "36.8", "x"})
	require.Len(t, args, 3)
	assert.Equal(t, -122.75, args[0])
	assert.Equal(t, 36.8, args[1])
	assert.Equal(t, "x", args[2])
}
