package table

import "sync"

// Client is one row of the client table (spec.md §3).
type Client struct {
	ID     string
	PeerID string // equals the owning node's own id when attached locally.
	Stream Outbound

	// RemoteAddr is the connecting socket's address ("host:port"), present
	// only for locally-attached clients; used for whoami (spec.md §4.4).
	RemoteAddr string
}

// ClientTable is the client membership catalogue: a primary map plus a
// secondary index from peer id to the set of client ids reachable through
// it (spec.md §3's "enumerate clients by peer id" requirement).
type ClientTable struct {
	mu       sync.RWMutex
	byID     map[string]*Client
	byPeerID map[string]map[string]struct{}
}

// NewClientTable returns an empty client table.
func NewClientTable() *ClientTable {
	return &ClientTable{
		byID:     make(map[string]*Client),
		byPeerID: make(map[string]map[string]struct{}),
	}
}

// Insert adds or replaces a client record, keeping the peer-id index in
// lock-step (mirrors the teacher's TxsFromAddress dual-map technique in
// app/data/pending.go).
func (t *ClientTable) Insert(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byID[c.ID]; ok {
		t.removeFromPeerIndexLocked(existing.PeerID, existing.ID)
	}
	t.byID[c.ID] = c
	t.addToPeerIndexLocked(c.PeerID, c.ID)
}

func (t *ClientTable) addToPeerIndexLocked(peerID, clientID string) {
	set, ok := t.byPeerID[peerID]
	if !ok {
		set = make(map[string]struct{})
		t.byPeerID[peerID] = set
	}
	set[clientID] = struct{}{}
}

func (t *ClientTable) removeFromPeerIndexLocked(peerID, clientID string) {
	set, ok := t.byPeerID[peerID]
	if !ok {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(t.byPeerID, peerID)
	}
}

// Get looks up a client by id.
func (t *ClientTable) Get(id string) (*Client, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.byID[id]
	return c, ok
}

// Remove deletes a client by id, returning it if it existed.
func (t *ClientTable) Remove(id string) (*Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	delete(t.byID, id)
	t.removeFromPeerIndexLocked(c.PeerID, id)
	return c, true
}

// ByPeer returns a snapshot slice of every client reachable through peerID.
func (t *ClientTable) ByPeer(peerID string) []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.byPeerID[peerID]
	out := make([]*Client, 0, len(set))
	for id := range set {
		if c, ok := t.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// All returns a snapshot slice of every known client.
func (t *ClientTable) All() []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Client, 0, len(t.byID))
	for _, c := range t.byID {
		out = append(out, c)
	}
	return out
}

// Count returns the number of known clients.
func (t *ClientTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
