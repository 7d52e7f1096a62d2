package handler

import (
	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/table"
)

// Register has no effect on a client-context stream. On a peer-context
// stream it records the sender's advertised ports, marks it registered,
// and — if the sender wasn't already registered elsewhere — triggers sync
// (spec.md §4.4/§4.6).
func Register(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	if ctx == proto.OnClient {
		resp.SetData("no effect", nil)
		return
	}

	peerRec, ok := s.Peers.Get(selfID)
	if !ok {
		noEffect(resp)
		return
	}

	sessionsPort := int32(paramNumber(req, "sessions_port"))
	clientsPort := int32(paramNumber(req, "clients_port"))
	alreadyRegistered := paramBool(req, "registered")

	s.Peers.SetAdvertisedPorts(selfID, sessionsPort, clientsPort)
	peerRec.SetRegistered(true)

	if !alreadyRegistered {
		syncNewPeer(s, peerRec)
	}

	resp.SetData("ok", nil)
}

// syncNewPeer re-announces the mesh's current membership to a freshly
// registered peer (spec.md §4.6): every other known peer (so the new node
// can integrate the full mesh), every locally-attached client, and every
// subscription owned directly by this node.
func syncNewPeer(s *state.State, newPeer *table.Peer) {
	for _, p := range s.Peers.All() {
		if p.ID == newPeer.ID {
			continue
		}
		frame, err := proto.EncodeFrame(meshid.New(), "peer", map[string]interface{}{
			"host":        p.Host,
			"peer_port":   p.PeerPort,
			"client_port": p.ClientPort,
		})
		if err != nil {
			continue
		}
		newPeer.Stream.Enqueue(frame)
	}

	for _, c := range s.Clients.All() {
		if c.PeerID != s.ID {
			continue
		}
		frame, err := proto.EncodeFrame(meshid.New(), "client_join", map[string]interface{}{
			"client_id": c.ID,
		})
		if err != nil {
			continue
		}
		newPeer.Stream.Enqueue(frame)
	}

	for _, sub := range s.Subscriptions.All() {
		if sub.PeerID != s.ID {
			continue
		}
		frame, err := proto.EncodeFrame(meshid.New(), "subscribe", map[string]interface{}{
			"client_id": sub.ClientID,
			"channel":   sub.Channel,
		})
		if err != nil {
			continue
		}
		newPeer.Stream.Enqueue(frame)
	}
}

// Peer instructs this node to dial an additional peer, idempotent by
// (host, peer_port, client_port) (spec.md §4.4/§4.6). The actual dial is
// asynchronous (spec.md §5) — this handler only checks for an existing
// attachment and, if none, invokes the mesh layer's dial hook.
func Peer(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	host := paramString(req, "host")
	peerPort := int32(paramNumber(req, "peer_port"))
	clientPort := int32(paramNumber(req, "client_port"))

	if s.Peers.HasTriple(host, peerPort, clientPort) {
		noEffect(resp)
		return
	}

	if s.Dial != nil {
		s.Dial(host, peerPort, clientPort)
	}

	resp.SetData("ok", nil)
}
