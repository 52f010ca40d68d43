// Package wsclient connects the presence registry to a realtime websocket
// channel. Inbound presence, leave and sync messages are applied to a
// presence.Sink; the local vessel's newest presence is written by the
// connection loop and replayed after every reconnect.
package wsclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/presence"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second

	// Source tags peers delivered by this transport.
	Source = "ws"
)

// Config configures a Client.
type Config struct {
	URL        string
	SelfID     string
	Header     http.Header
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client is a reconnecting websocket presence transport.
type Client struct {
	cfg  Config
	sink presence.Sink
	log  logrus.FieldLogger

	out       *presence.Outbox
	connected atomic.Bool
}

// New creates a client. Call Run to connect.
func New(cfg Config, sink presence.Sink, log logrus.FieldLogger) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:  cfg,
		sink: sink,
		log:  log.WithFields(logrus.Fields{"component": "wsclient", "url": cfg.URL}),
		out:  presence.NewOutbox(),
	}
}

// Connected reports whether a websocket session is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Publish hands the local vessel's presence to the connection loop. It
// never blocks; an update not yet written is replaced by the newer one.
func (c *Client) Publish(_ context.Context, self presence.Peer) error {
	data, err := presence.Encode(self)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	c.out.Put(data)
	return nil
}

// Run keeps a session open until ctx is cancelled, reconnecting with
// exponential backoff. Peers already in the registry are left in place
// while disconnected.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			backoff = c.cfg.MinBackoff
		}
		c.log.WithError(err).WithField("retry_in", backoff).Warn("presence channel disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	c.connected.Store(true)
	c.log.Info("presence channel connected")

	readErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- c.readLoop(conn)
	}()
	defer func() {
		conn.Close()
		wg.Wait()
		c.connected.Store(false)
	}()

	if last := c.out.Resend(); last != nil {
		if err := c.write(conn, last); err != nil {
			return true, err
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.leave(conn)
			return true, ctx.Err()
		case err := <-readErr:
			return true, err
		case <-c.out.Ready():
			data, ok := c.out.Take()
			if !ok {
				continue
			}
			if err := c.write(conn, data); err != nil {
				return true, err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return true, fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := presence.Decode(data, Source)
		if err != nil {
			c.log.WithError(err).Debug("dropping presence message")
			continue
		}
		c.sink.Apply(ev)
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) leave(conn *websocket.Conn) {
	if c.cfg.SelfID != "" {
		if data, err := presence.EncodeLeave(c.cfg.SelfID); err == nil {
			_ = c.write(conn, data)
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
