package table

import "sync"

// Subscription is the (peer_id, client_id, channel) triple of spec.md §3.
type Subscription struct {
	PeerID   string
	ClientID string
	Channel  string
}

func subKey(peerID, clientID, channel string) string {
	return peerID + "\x00" + clientID + "\x00" + channel
}

// SubscriptionTable is the subscription catalogue: a primary set keyed by
// the composite triple, plus three secondary indexes — by channel, by
// client id, and by peer id — satisfying spec.md §3's enumeration
// requirements in O(1) amortized per operation.
type SubscriptionTable struct {
	mu        sync.RWMutex
	byKey     map[string]Subscription
	byChannel map[string]map[string]struct{}
	byClient  map[string]map[string]struct{}
	byPeer    map[string]map[string]struct{}
}

// NewSubscriptionTable returns an empty subscription table.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{
		byKey:     make(map[string]Subscription),
		byChannel: make(map[string]map[string]struct{}),
		byClient:  make(map[string]map[string]struct{}),
		byPeer:    make(map[string]map[string]struct{}),
	}
}

func addIndex(idx map[string]map[string]struct{}, k, member string) {
	set, ok := idx[k]
	if !ok {
		set = make(map[string]struct{})
		idx[k] = set
	}
	set[member] = struct{}{}
}

func removeIndex(idx map[string]map[string]struct{}, k, member string) {
	set, ok := idx[k]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(idx, k)
	}
}

// Add inserts the subscription if it doesn't already exist (uniqueness
// invariant, spec.md §3), returning true if it was newly added.
func (t *SubscriptionTable) Add(s Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := subKey(s.PeerID, s.ClientID, s.Channel)
	if _, exists := t.byKey[key]; exists {
		return false
	}

	t.byKey[key] = s
	addIndex(t.byChannel, s.Channel, key)
	addIndex(t.byClient, s.ClientID, key)
	addIndex(t.byPeer, s.PeerID, key)
	return true
}

// Remove deletes the subscription if it exists, returning true if it did.
func (t *SubscriptionTable) Remove(s Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := subKey(s.PeerID, s.ClientID, s.Channel)
	if _, exists := t.byKey[key]; !exists {
		return false
	}

	delete(t.byKey, key)
	removeIndex(t.byChannel, s.Channel, key)
	removeIndex(t.byClient, s.ClientID, key)
	removeIndex(t.byPeer, s.PeerID, key)
	return true
}

// Exists reports whether the exact triple is present.
func (t *SubscriptionTable) Exists(s Subscription) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.byKey[subKey(s.PeerID, s.ClientID, s.Channel)]
	return ok
}

// ByChannel returns a snapshot slice of every subscription on channel.
func (t *SubscriptionTable) ByChannel(channel string) []Subscription {
	return t.snapshot(t.byChannel, channel)
}

// ByClient returns a snapshot slice of every subscription owned by
// clientID, removing all of which is the cascade RemoveAllForClient needs.
func (t *SubscriptionTable) ByClient(clientID string) []Subscription {
	return t.snapshot(t.byClient, clientID)
}

// ByPeer returns a snapshot slice of every subscription owned (directly or
// via an attached client) by peerID.
func (t *SubscriptionTable) ByPeer(peerID string) []Subscription {
	return t.snapshot(t.byPeer, peerID)
}

func (t *SubscriptionTable) snapshot(idx map[string]map[string]struct{}, k string) []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := idx[k]
	out := make([]Subscription, 0, len(set))
	for key := range set {
		if s, ok := t.byKey[key]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RemoveAllForClient deletes every subscription owned by clientID,
// returning how many were removed (spec.md §4.4 `unsubscribe_all_client`).
func (t *SubscriptionTable) RemoveAllForClient(clientID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.byClient[clientID]
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	for _, key := range keys {
		s, ok := t.byKey[key]
		if !ok {
			continue
		}
		delete(t.byKey, key)
		removeIndex(t.byChannel, s.Channel, key)
		removeIndex(t.byPeer, s.PeerID, key)
	}
	delete(t.byClient, clientID)

	return len(keys)
}

// RemoveAllForPeer deletes every subscription owned by peerID, returning
// how many were removed (spec.md §4.4 `unsubscribe_all_peer`).
func (t *SubscriptionTable) RemoveAllForPeer(peerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.byPeer[peerID]
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	for _, key := range keys {
		s, ok := t.byKey[key]
		if !ok {
			continue
		}
		delete(t.byKey, key)
		removeIndex(t.byChannel, s.Channel, key)
		removeIndex(t.byClient, s.ClientID, key)
	}
	delete(t.byPeer, peerID)

	return len(keys)
}

// All returns a snapshot slice of every known subscription.
func (t *SubscriptionTable) All() []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Subscription, 0, len(t.byKey))
	for _, s := range t.byKey {
		out = append(out, s)
	}
	return out
}

// Count returns the number of known subscriptions.
func (t *SubscriptionTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}
