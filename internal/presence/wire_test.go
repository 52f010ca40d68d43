package presence

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 { return math.NaN() }

func TestEncodeDecodePresence(t *testing.T) {
	at := time.UnixMilli(1700000000123).UTC()
	in := Peer{
		ID:                "v-1",
		Lat:               43.5,
		Lng:               -8.25,
		HeadingDegrees:    270,
		SpeedMetersPerSec: 2,
		Distress:          true,
		UpdatedAt:         at,
		Located:           true,
	}

	data, err := Encode(in)
	require.NoError(t, err)

	ev, err := Decode(data, "ws")
	require.NoError(t, err)
	assert.Equal(t, EventUpsert, ev.Kind)

	in.Source = "ws"
	if diff := cmp.Diff(in, ev.Peer); diff != "" {
		t.Errorf("decoded peer mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeOmitsUnknownLocation(t *testing.T) {
	data, err := Encode(Peer{ID: "v-2"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "lat")
	assert.NotContains(t, raw, "lng")
	assert.Equal(t, "presence", raw["type"])
}

func TestDecodeWithoutLocation(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"presence","id":"x","speed":3}`), "redis")
	require.NoError(t, err)
	assert.False(t, ev.Peer.Located)
	assert.False(t, ev.Peer.Usable())
	assert.Equal(t, 3.0, ev.Peer.SpeedMetersPerSec)
}

func TestDecodeOutOfRangeIsUnlocated(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"presence","id":"x","lat":123,"lng":0}`), "ws")
	require.NoError(t, err)
	assert.False(t, ev.Peer.Located)
}

func TestDecodeLeave(t *testing.T) {
	data, err := EncodeLeave("gone")
	require.NoError(t, err)

	ev, err := Decode(data, "ws")
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: EventRemove, ID: "gone"}, ev)
}

func TestDecodeSync(t *testing.T) {
	data, err := EncodeSync([]Peer{
		{ID: "a", Lat: 1, Lng: 2, Located: true},
		{ID: "b"},
	})
	require.NoError(t, err)

	ev, err := Decode(data, "ws")
	require.NoError(t, err)
	require.Equal(t, EventSync, ev.Kind)
	require.Len(t, ev.Peers, 2)
	assert.True(t, ev.Peers[0].Located)
	assert.False(t, ev.Peers[1].Located)
}

func TestDecodeSyncSkipsAnonymous(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"sync","peers":[{"id":"a"},{"lat":1,"lng":1}]}`), "ws")
	require.NoError(t, err)
	assert.Len(t, ev.Peers, 1)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{nope`},
		{"presence without id", `{"type":"presence","lat":1,"lng":1}`},
		{"leave without id", `{"type":"leave"}`},
		{"unknown type", `{"type":"hello","id":"a"}`},
		{"wrong field type", `{"type":"presence","id":"a","lat":"north"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), "ws")
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
