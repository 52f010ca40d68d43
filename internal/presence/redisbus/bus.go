// Package redisbus carries presence messages over a Redis pub/sub channel.
package redisbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/presence"
)

const (
	// DefaultChannel is the pub/sub channel shared by all vessels.
	DefaultChannel = "sea-radar:presence"

	// Source tags peers delivered by this transport.
	Source = "redis"

	reconnectSleep     = 2 * time.Second
	publishConnTimeout = 5 * time.Second
)

// NewPool returns a connection pool for addr, e.g. "localhost:6379".
func NewPool(addr string, db int, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialDatabase(db),
				redis.DialPassword(password),
				redis.DialConnectTimeout(publishConnTimeout))
		},
	}
}

// Bus publishes own presence and subscribes to everyone else's.
type Bus struct {
	pool    *redis.Pool
	channel string
	selfID  string
	sink    presence.Sink
	log     logrus.FieldLogger

	out *presence.Outbox

	mu         sync.Mutex
	subscribed bool
}

// New creates a bus on channel (DefaultChannel when empty).
func New(pool *redis.Pool, channel, selfID string, sink presence.Sink, log logrus.FieldLogger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{
		pool:    pool,
		channel: channel,
		selfID:  selfID,
		sink:    sink,
		log:     log.WithFields(logrus.Fields{"component": "redisbus", "channel": channel}),
		out:     presence.NewOutbox(),
	}
}

// Publish hands the local vessel's presence to the publish loop. An update
// still waiting there is replaced.
func (b *Bus) Publish(_ context.Context, self presence.Peer) error {
	data, err := presence.Encode(self)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	b.out.Put(data)
	return nil
}

// Subscribed reports whether the subscriber connection is live.
func (b *Bus) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed
}

// Run drives the publish and subscribe loops until ctx is cancelled. On the
// way out it announces the local vessel's departure.
func (b *Bus) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.publishLoop(ctx)
	}()

	for {
		err := b.subscribe(ctx)
		if ctx.Err() != nil {
			break
		}
		b.log.WithError(err).Warn("presence subscription lost")
		select {
		case <-ctx.Done():
		case <-time.After(reconnectSleep):
		}
	}
	wg.Wait()
	b.leave()
	return nil
}

func (b *Bus) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.out.Ready():
			data, ok := b.out.Take()
			if !ok {
				continue
			}
			if err := b.publish(ctx, data); err != nil {
				b.log.WithError(err).Warn("presence publish failed")
			}
		}
	}
}

func (b *Bus) publish(ctx context.Context, data []byte) error {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PUBLISH", b.channel, data)
	return err
}

func (b *Bus) leave() {
	if b.selfID == "" {
		return
	}
	data, err := presence.EncodeLeave(b.selfID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishConnTimeout)
	defer cancel()
	if err := b.publish(ctx, data); err != nil {
		b.log.WithError(err).Debug("leave not delivered")
	}
}

func (b *Bus) subscribe(ctx context.Context) error {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	psc := redis.PubSubConn{Conn: conn}
	defer psc.Close()

	if err := psc.Subscribe(b.channel); err != nil {
		return err
	}
	defer b.setSubscribed(false)

	for {
		switch v := psc.ReceiveContext(ctx).(type) {
		case redis.Message:
			b.handle(v.Data)
		case redis.Subscription:
			if v.Kind == "subscribe" {
				b.setSubscribed(true)
				b.log.Info("presence channel subscribed")
			}
		case error:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return v
		}
	}
}

// handle applies one channel message. Our own echoes are dropped by the
// registry's self filter.
func (b *Bus) handle(data []byte) {
	ev, err := presence.Decode(data, Source)
	if err != nil {
		b.log.WithError(err).Debug("dropping presence message")
		return
	}
	if ev.Kind == presence.EventRemove && ev.ID == b.selfID {
		return
	}
	b.sink.Apply(ev)
}

func (b *Bus) setSubscribed(v bool) {
	b.mu.Lock()
	b.subscribed = v
	b.mu.Unlock()
}
