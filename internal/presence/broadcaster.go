package presence

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sea-radar.klederson.com/internal/clock"
)

// DefaultThrottle is the minimum spacing between routine presence broadcasts.
const DefaultThrottle = 5000 * time.Millisecond

// Publisher delivers the local vessel's presence to a transport. Publish must
// not block on the network; transports queue outbound messages.
type Publisher interface {
	Publish(ctx context.Context, self Peer) error
}

// Gate decides whether the local vessel shares its presence at all.
type Gate interface {
	SharingEnabled() bool
}

// Broadcaster publishes own-vessel presence at most once per throttle window,
// and only while sharing is enabled and a location is known.
type Broadcaster struct {
	selfID  string
	gate    Gate
	clock   clock.Clock
	log     logrus.FieldLogger
	limiter *rate.Limiter

	mu   sync.Mutex
	pubs []Publisher
	last Peer
	sent int
}

// NewBroadcaster creates a broadcaster for the local vessel.
func NewBroadcaster(selfID string, throttle time.Duration, gate Gate, clk clock.Clock, log logrus.FieldLogger, pubs ...Publisher) *Broadcaster {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Broadcaster{
		selfID:  selfID,
		gate:    gate,
		clock:   clk,
		log:     log.WithField("component", "presence"),
		limiter: rate.NewLimiter(rate.Every(throttle), 1),
		pubs:    pubs,
	}
}

// AddPublisher attaches another transport.
func (b *Broadcaster) AddPublisher(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, p)
}

// Offer publishes a routine presence update if the throttle window allows it.
// It returns true when the update was handed to the publishers.
func (b *Broadcaster) Offer(self Peer) bool {
	if !b.allowed(self) {
		return false
	}
	if !b.limiter.AllowN(b.clock.Now(), 1) {
		return false
	}
	b.publish(self)
	return true
}

// Assert publishes immediately, bypassing the throttle. Distress transitions
// and re-assertions use it. The sharing and location gate still applies. A
// throttle token is consumed when available so the next routine Offer waits
// a full window.
func (b *Broadcaster) Assert(self Peer) bool {
	if !b.allowed(self) {
		return false
	}
	b.limiter.AllowN(b.clock.Now(), 1)
	b.publish(self)
	return true
}

// Last returns the most recent presence handed to the publishers and how many
// broadcasts went out in total.
func (b *Broadcaster) Last() (Peer, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.sent
}

func (b *Broadcaster) allowed(self Peer) bool {
	if b.gate != nil && !b.gate.SharingEnabled() {
		return false
	}
	return self.Located && self.Point().Valid()
}

func (b *Broadcaster) publish(self Peer) {
	self.ID = b.selfID
	if self.UpdatedAt.IsZero() {
		self.UpdatedAt = b.clock.Now()
	}

	b.mu.Lock()
	b.last = self
	b.sent++
	pubs := append([]Publisher(nil), b.pubs...)
	b.mu.Unlock()

	var result *multierror.Error
	for _, p := range pubs {
		if err := p.Publish(context.Background(), self); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		b.log.WithError(err).WithField("distress", self.Distress).Warn("presence publish failed")
	}
}
