package redisbus

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sea-radar.klederson.com/internal/presence"
)

type recordingSink struct {
	events []presence.Event
}

func (s *recordingSink) Apply(ev presence.Event) {
	s.events = append(s.events, ev)
}

func newTestBus() (*Bus, *recordingSink) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	return New(NewPool("127.0.0.1:1", 0, ""), "", "me", sink, logger), sink
}

func TestBusHandle(t *testing.T) {
	b, sink := newTestBus()

	b.handle([]byte(`{"type":"presence","id":"a","lat":1,"lng":2,"speed":1.5}`))
	b.handle([]byte(`{"type":"leave","id":"me"}`))
	b.handle([]byte(`garbage`))
	b.handle([]byte(`{"type":"leave","id":"a"}`))

	require.Len(t, sink.events, 2)
	assert.Equal(t, presence.EventUpsert, sink.events[0].Kind)
	assert.Equal(t, Source, sink.events[0].Peer.Source)
	assert.True(t, sink.events[0].Peer.Located)
	assert.Equal(t, presence.Event{Kind: presence.EventRemove, ID: "a"}, sink.events[1])
}

func TestBusDefaultChannel(t *testing.T) {
	b, _ := newTestBus()
	assert.Equal(t, DefaultChannel, b.channel)
	assert.False(t, b.Subscribed())
}

func TestBusPublishKeepsNewest(t *testing.T) {
	b, _ := newTestBus()

	for i := 1; i <= 20; i++ {
		self := presence.Peer{ID: "me", Lat: float64(i), Lng: 1, Located: true}
		require.NoError(t, b.Publish(context.Background(), self))
	}
	data, ok := b.out.Take()
	require.True(t, ok)
	assert.Contains(t, string(data), `"lat":20`)
	_, ok = b.out.Take()
	assert.False(t, ok)
}
