package presence

import (
	"sort"
	"sync"
)

// Registry is a thread-safe set of remote vessels keyed by peer id.
//
// Entries only change through explicit events: there is no timeout based
// expiry. A dropped connection leaves the last known peers in place until the
// transport reconnects and resyncs, so a lost link never reads as all clear.
type Registry struct {
	mu       sync.RWMutex
	selfID   string
	peers    map[string]*Peer
	onChange func()
}

// NewRegistry creates an empty registry. Updates carrying selfID are dropped
// so the local vessel never shows up in a snapshot.
func NewRegistry(selfID string) *Registry {
	return &Registry{
		selfID: selfID,
		peers:  make(map[string]*Peer),
	}
}

// OnChange registers a callback run after every mutation, outside the lock.
func (r *Registry) OnChange(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = f
}

// Upsert adds or replaces a peer wholesale. It returns false for updates that
// were ignored (empty id or the local vessel's own id).
func (r *Registry) Upsert(p Peer) bool {
	r.mu.Lock()
	if p.ID == "" || p.ID == r.selfID {
		r.mu.Unlock()
		return false
	}
	cp := p
	r.peers[p.ID] = &cp
	cb := r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// Remove deletes a peer. It returns false if the peer was not present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.peers[id]
	delete(r.peers, id)
	cb := r.onChange
	r.mu.Unlock()

	if ok && cb != nil {
		cb()
	}
	return ok
}

// Sync replaces the whole set with the given snapshot, as delivered by a
// transport's sync event after (re)connecting.
func (r *Registry) Sync(peers []Peer) {
	next := make(map[string]*Peer, len(peers))
	for _, p := range peers {
		if p.ID == "" || p.ID == r.selfID {
			continue
		}
		cp := p
		next[p.ID] = &cp
	}

	r.mu.Lock()
	r.peers = next
	cb := r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Apply dispatches a transport event.
func (r *Registry) Apply(ev Event) {
	switch ev.Kind {
	case EventUpsert:
		r.Upsert(ev.Peer)
	case EventRemove:
		r.Remove(ev.ID)
	case EventSync:
		r.Sync(ev.Peers)
	}
}

// Snapshot returns a copy of all peers sorted by id.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Get returns a copy of one peer.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Count returns the number of tracked peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// CountDistress returns how many tracked peers are flagging distress.
func (r *Registry) CountDistress() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.peers {
		if p.Distress {
			n++
		}
	}
	return n
}

// SelfID returns the local vessel id excluded from the registry.
func (r *Registry) SelfID() string {
	return r.selfID
}
