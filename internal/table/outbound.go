// Package table implements the indexed, concurrency-safe membership
// catalogues of spec.md §3: peers, clients, and subscriptions.
package table

// Outbound is the minimal surface a Peer or Client record needs from its
// owning Stream: enqueue one already-serialized frame onto that stream's
// single-writer outbound queue. Handlers and fan-out code only ever see
// this interface, never a concrete transport type — this is what lets
// internal/table and internal/handler be tested without a real socket.
type Outbound interface {
	Enqueue(frame []byte) error
}
