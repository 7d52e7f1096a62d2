// Package state composes the membership tables, configuration, and
// concurrency substrate that every handler operates on (spec.md §2/§3).
package state

import (
	"time"

	"github.com/gammazero/workerpool"

	"github.com/nodemesh/meshd/internal/config"
	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/table"
)

// State is the single facade every Handler reads/mutates (spec.md §2). It
// owns no stream directly: streams reach it only through the Outbound
// interface stored on each Peer/Client record.
type State struct {
	ID        string
	CreatedAt time.Time

	Config *config.Config

	Peers         *table.PeerTable
	Clients       *table.ClientTable
	Subscriptions *table.SubscriptionTable

	// Pool is the shared cooperative reactor substrate (spec.md §5):
	// handlers never touch it directly, but the Stream layer submits one
	// job per decoded frame here, bounding total concurrency while
	// per-stream ordering is kept by never submitting a stream's next
	// frame until its current job signals completion.
	Pool *workerpool.WorkerPool

	// Dial, when set by internal/mesh, asynchronously opens an outgoing
	// peer connection to (host, peerPort, clientPort). Handlers never dial
	// synchronously (spec.md §5: "all peer-dial operations are
	// asynchronous") — the `peer` handler only calls this hook, and the
	// mesh layer owns the actual connect-with-retry loop.
	Dial func(host string, peerPort, clientPort int32)

	// OnClientJoined and OnClientLeft, when set by internal/mesh, announce
	// a local client's attach/detach to every known peer (spec.md §3: "a
	// remote client is registered when a peer forwards a client_join...
	// removed when... the owning peer forwards client_leave").
	OnClientJoined func(clientID string)
	OnClientLeft   func(clientID string)
}

// New builds a fresh State: a node identity is minted, the three
// membership tables start empty, and the worker pool is sized from cfg
// (spec.md §5's configurable worker count, default 1).
func New(cfg *config.Config) *State {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	return &State{
		ID:            meshid.New(),
		CreatedAt:     time.Now().UTC(),
		Config:        cfg,
		Peers:         table.NewPeerTable(),
		Clients:       table.NewClientTable(),
		Subscriptions: table.NewSubscriptionTable(),
		Pool:          workerpool.New(workers),
	}
}

// Stop tears down the worker pool, releasing jobs queued but not yet
// started; in-flight jobs are allowed to finish (spec.md §5 Node::stop).
func (s *State) Stop() {
	s.Pool.Stop()
}

// RemoveClient deletes client id and cascades removal of every
// subscription it owns, so that from the caller's perspective the two
// happen atomically (spec.md §3 invariant on client removal).
func (s *State) RemoveClient(id string) (*table.Client, int) {
	c, existed := s.Clients.Remove(id)
	if !existed {
		return nil, 0
	}
	removed := s.Subscriptions.RemoveAllForClient(id)
	if s.OnClientLeft != nil && c.PeerID == s.ID {
		s.OnClientLeft(id)
	}
	return c, removed
}

// RemovePeer deletes peer id, removes every client reachable only through
// it, and cascades subscription removal for both the peer itself and each
// of its clients (spec.md §3's cascade-on-peer-disconnect requirement).
func (s *State) RemovePeer(id string) (*table.Peer, int, int) {
	p, existed := s.Peers.Remove(id)
	if !existed {
		return nil, 0, 0
	}

	clients := s.Clients.ByPeer(id)
	removedSubs := 0
	for _, c := range clients {
		s.Clients.Remove(c.ID)
		removedSubs += s.Subscriptions.RemoveAllForClient(c.ID)
	}
	removedSubs += s.Subscriptions.RemoveAllForPeer(id)

	return p, len(clients), removedSubs
}
