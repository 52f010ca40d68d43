package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types on the JSON presence channel.
const (
	TypePresence = "presence"
	TypeLeave    = "leave"
	TypeSync     = "sync"
)

// ErrMalformed is returned for presence messages that cannot be applied.
var ErrMalformed = errors.New("malformed presence message")

// Message is the JSON envelope shared by the websocket and Redis transports.
// Position fields are pointers so that a missing lat/lng can be told apart
// from a vessel sitting on the equator.
type Message struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Distress  bool      `json:"distress,omitempty"`
	UpdatedAt int64     `json:"updatedAt,omitempty"` // unix millis
	Peers     []Message `json:"peers,omitempty"`
}

// MessageFromPeer builds a presence message for p.
func MessageFromPeer(p Peer) Message {
	m := Message{
		Type:     TypePresence,
		ID:       p.ID,
		Distress: p.Distress,
		Heading:  floatPtr(p.HeadingDegrees),
		Speed:    floatPtr(p.SpeedMetersPerSec),
	}
	if p.Located {
		m.Lat = floatPtr(p.Lat)
		m.Lng = floatPtr(p.Lng)
	}
	if !p.UpdatedAt.IsZero() {
		m.UpdatedAt = p.UpdatedAt.UnixMilli()
	}
	return m
}

// Peer converts a presence message into a registry entry.
func (m Message) Peer(source string) Peer {
	p := Peer{
		ID:       m.ID,
		Distress: m.Distress,
		Source:   source,
	}
	if m.Lat != nil && m.Lng != nil {
		p.Lat, p.Lng = *m.Lat, *m.Lng
		p.Located = p.Point().Valid()
	}
	if m.Heading != nil {
		p.HeadingDegrees = *m.Heading
	}
	if m.Speed != nil {
		p.SpeedMetersPerSec = *m.Speed
	}
	if m.UpdatedAt > 0 {
		p.UpdatedAt = time.UnixMilli(m.UpdatedAt).UTC()
	}
	return p
}

// Encode marshals the presence message for p.
func Encode(p Peer) ([]byte, error) {
	return json.Marshal(MessageFromPeer(p))
}

// EncodeLeave marshals a departure notice for id.
func EncodeLeave(id string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeLeave, ID: id})
}

// EncodeSync marshals a full snapshot, as sent by a channel server to a
// newly connected client.
func EncodeSync(peers []Peer) ([]byte, error) {
	m := Message{Type: TypeSync, Peers: make([]Message, 0, len(peers))}
	for _, p := range peers {
		m.Peers = append(m.Peers, MessageFromPeer(p))
	}
	return json.Marshal(m)
}

// Decode parses one channel message into a registry event. Peers without an
// id inside a sync snapshot are skipped; a top-level message without one is
// rejected.
func Decode(data []byte, source string) (Event, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch m.Type {
	case TypePresence, "":
		if m.ID == "" {
			return Event{}, fmt.Errorf("%w: presence without id", ErrMalformed)
		}
		return Event{Kind: EventUpsert, Peer: m.Peer(source)}, nil
	case TypeLeave:
		if m.ID == "" {
			return Event{}, fmt.Errorf("%w: leave without id", ErrMalformed)
		}
		return Event{Kind: EventRemove, ID: m.ID}, nil
	case TypeSync:
		peers := make([]Peer, 0, len(m.Peers))
		for _, pm := range m.Peers {
			if pm.ID == "" {
				continue
			}
			peers = append(peers, pm.Peer(source))
		}
		return Event{Kind: EventSync, Peers: peers}, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
