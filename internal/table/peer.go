package table

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Direction tags whether a Peer is an incoming attachment to this node or
// an outgoing attachment this node opened (spec.md §3).
type Direction int

const (
	Local Direction = iota
	Remote
)

// Peer is one row of the peer table (spec.md §3).
type Peer struct {
	ID         string
	Host       string
	PeerPort   int32
	ClientPort int32
	Direction  Direction
	Stream     Outbound

	// RemoteAddr is the actual socket peer address ("host:port") of the
	// underlying connection, used for whoami (spec.md §4.4) — distinct
	// from Host/PeerPort/ClientPort, which are the *advertised* listener
	// ports exchanged during register/peer handshake.
	RemoteAddr string

	registered atomic.Bool
}

// Registered reports whether the remote side has told us its advertised
// ports yet (spec.md §3/§4.6).
func (p *Peer) Registered() bool { return p.registered.Load() }

// SetRegistered flips the registered flag.
func (p *Peer) SetRegistered(v bool) { p.registered.Store(v) }

func tripleKey(host string, peerPort, clientPort int32) string {
	return fmt.Sprintf("%s:%d:%d", host, peerPort, clientPort)
}

// PeerTable is the peer membership catalogue: a primary map guarded by a
// reader/writer lock (spec.md §5) plus a secondary index on the
// (host, peer_port, client_port) triple used to dedup `peer` gossip
// (spec.md §4.6).
type PeerTable struct {
	mu      sync.RWMutex
	byID    map[string]*Peer
	byTriple map[string]string // triple -> peer id
}

// NewPeerTable returns an empty peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{
		byID:     make(map[string]*Peer),
		byTriple: make(map[string]string),
	}
}

// Insert adds a peer, returning false without modifying the table if a peer
// with the same (host, peer_port, client_port) triple is already known
// (spec.md §4.6's idempotent-by-triple guarantee). Ports of 0 (not yet
// advertised) are never deduped against each other.
func (t *PeerTable) Insert(p *Peer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.PeerPort != 0 || p.ClientPort != 0 {
		key := tripleKey(p.Host, p.PeerPort, p.ClientPort)
		if _, exists := t.byTriple[key]; exists {
			return false
		}
		t.byTriple[key] = p.ID
	}
	t.byID[p.ID] = p
	return true
}

// HasTriple reports whether a peer with this (host, peer_port, client_port)
// is already known. Used by the `peer` handler to decide whether to dial.
func (t *PeerTable) HasTriple(host string, peerPort, clientPort int32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.byTriple[tripleKey(host, peerPort, clientPort)]
	return exists
}

// SetAdvertisedPorts records a peer's advertised ports once it registers,
// and indexes the resulting triple so later `peer` dedup checks see it.
func (t *PeerTable) SetAdvertisedPorts(id string, peerPort, clientPort int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byID[id]
	if !ok {
		return
	}
	p.PeerPort = peerPort
	p.ClientPort = clientPort
	t.byTriple[tripleKey(p.Host, peerPort, clientPort)] = id
}

// Get looks up a peer by id.
func (t *PeerTable) Get(id string) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.byID[id]
	return p, ok
}

// Remove deletes a peer by id, returning it if it existed.
func (t *PeerTable) Remove(id string) (*Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	delete(t.byID, id)
	delete(t.byTriple, tripleKey(p.Host, p.PeerPort, p.ClientPort))
	return p, true
}

// All returns a snapshot slice of every known peer. The lock is released
// before the caller uses the slice (spec.md §5: enumerate under shared
// lock, capture a snapshot, fan out without the lock held).
func (t *PeerTable) All() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Peer, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	return out
}

// Count returns the number of known peers.
func (t *PeerTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
