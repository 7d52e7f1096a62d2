package proto

// Context tags which kind of stream carried the current request. It governs
// validator requirements (implicit-subject fields) and fan-out scope
// (spec.md §4.4-§4.5).
type Context int

const (
	// OnClient marks a request that arrived on a client-kind stream.
	OnClient Context = iota
	// OnPeer marks a request that arrived on a peer-kind stream.
	OnPeer
)

func (c Context) String() string {
	switch c {
	case OnClient:
		return "on_client"
	case OnPeer:
		return "on_peer"
	default:
		return "unknown"
	}
}
