package handler

import (
	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/table"
)

// fanOutToPeers re-announces a subscribe/unsubscribe performed by a local
// client to every known peer, so the mesh-wide subscription tables stay
// converged (spec.md §4.6's sync mechanism only covers the initial join;
// live changes need the same live propagation, which is why subscribe and
// unsubscribe both have an on_peer handling branch in spec.md §4.4's
// action table).
func fanOutToPeers(s *state.State, action, clientID, channel string) {
	for _, p := range s.Peers.All() {
		frame, err := proto.EncodeFrame(meshid.New(), action, map[string]interface{}{
			"client_id": clientID,
			"channel":   channel,
		})
		if err != nil {
			continue
		}
		p.Stream.Enqueue(frame)
	}
}

// subscriber resolves the (peer_id, client_id) pair a subscribe/unsubscribe/
// is_subscribed request concerns: the connection's own identity in
// on_client context (client_id is implicit there), or the explicit
// client_id param in on_peer context (spec.md §4.4/§4.2).
func subscriber(s *state.State, ctx proto.Context, selfID string, req *proto.Request) (peerID, clientID string) {
	if ctx == proto.OnClient {
		return s.ID, selfID
	}
	return selfID, paramString(req, "client_id")
}

// Subscribe adds (peer, client, channel) to the subscription table
// (spec.md §4.4).
func Subscribe(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	peerID, clientID := subscriber(s, ctx, selfID, req)
	channel := paramString(req, "channel")

	added := s.Subscriptions.Add(table.Subscription{PeerID: peerID, ClientID: clientID, Channel: channel})
	if added && ctx == proto.OnClient {
		fanOutToPeers(s, "subscribe", clientID, channel)
	}
	if added {
		countReply(resp, 1)
		return
	}
	countReply(resp, 0)
}

// Unsubscribe removes the corresponding subscription (spec.md §4.4).
func Unsubscribe(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	peerID, clientID := subscriber(s, ctx, selfID, req)
	channel := paramString(req, "channel")

	removed := s.Subscriptions.Remove(table.Subscription{PeerID: peerID, ClientID: clientID, Channel: channel})
	if removed && ctx == proto.OnClient {
		fanOutToPeers(s, "unsubscribe", clientID, channel)
	}
	if removed {
		countReply(resp, 1)
		return
	}
	countReply(resp, 0)
}

// UnsubscribeAllClient removes every subscription owned by a given client
// id (spec.md §4.4).
func UnsubscribeAllClient(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	clientID := paramString(req, "client_id")
	countReply(resp, s.Subscriptions.RemoveAllForClient(clientID))
}

// UnsubscribeAllPeer removes every subscription owned by a given peer id
// (spec.md §4.4, cascades).
func UnsubscribeAllPeer(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	peerID := paramString(req, "peer_id")
	countReply(resp, s.Subscriptions.RemoveAllForPeer(peerID))
}

// IsSubscribed answers yes/no for (self_client, channel) in on_client
// context; on_peer context always replies "no effect" (spec.md §4.4 — this
// predicate has no meaning for a forwarded peer connection's own subject).
func IsSubscribed(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	if ctx == proto.OnPeer {
		noEffect(resp)
		return
	}

	channel := paramString(req, "channel")
	if s.Subscriptions.Exists(table.Subscription{PeerID: s.ID, ClientID: selfID, Channel: channel}) {
		resp.SetData("yes", nil)
		return
	}
	resp.SetData("no", nil)
}
