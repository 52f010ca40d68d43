package presence

import "sync"

// Outbox holds a transport's newest encoded own presence. A newer update
// replaces an unsent older one, so a transport that falls behind or
// reconnects only ever sends the current state.
type Outbox struct {
	mu     sync.Mutex
	last   []byte
	unsent bool
	ready  chan struct{}
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Put stores data as the newest presence and wakes the sender.
func (o *Outbox) Put(data []byte) {
	o.mu.Lock()
	o.last = data
	o.unsent = true
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after Put. Signals coalesce.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Take returns the newest presence if it has not been taken yet.
func (o *Outbox) Take() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.unsent {
		return nil, false
	}
	o.unsent = false
	return o.last, true
}

// Resend returns the newest presence whether or not it was sent before,
// for replay on a fresh connection. Nil until the first Put.
func (o *Outbox) Resend() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unsent = false
	return o.last
}
