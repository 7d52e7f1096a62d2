package handler

import (
	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
)

// Publish implements spec.md §4.5's publish algorithm. Local delivery
// (subscriptions whose peer_id is this node's own id) always happens.
// Peer forwarding — exactly once per distinct remote peer id appearing in
// the channel's subscriptions — only happens for on_client requests; this
// split is what prevents a peer from re-forwarding what it received from
// another peer.
func Publish(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	channel := paramString(req, "channel")
	payload := paramObject(req, "payload")
	txID, _ := req.TransactionIDString()

	subs := s.Subscriptions.ByChannel(channel)

	delivered := 0
	for _, sub := range subs {
		if sub.PeerID != s.ID {
			continue
		}
		c, ok := s.Clients.Get(sub.ClientID)
		if !ok {
			continue
		}
		frame, err := proto.EncodeFrame(txID, "publish", map[string]interface{}{
			"client_id": sub.ClientID,
			"channel":   channel,
			"payload":   payload,
		})
		if err != nil {
			continue
		}
		if err := c.Stream.Enqueue(frame); err == nil {
			delivered++
		}
	}

	if ctx != proto.OnClient {
		countReply(resp, delivered)
		return
	}

	remotePeers := map[string]struct{}{}
	for _, sub := range subs {
		if sub.PeerID != s.ID {
			remotePeers[sub.PeerID] = struct{}{}
		}
	}
	for peerID := range remotePeers {
		p, ok := s.Peers.Get(peerID)
		if !ok {
			continue
		}
		frame, err := proto.EncodeFrame(txID, "publish", map[string]interface{}{
			"channel": channel,
			"payload": payload,
		})
		if err != nil {
			continue
		}
		p.Stream.Enqueue(frame)
	}

	// The ack counts every matching subscription mesh-wide, not just this
	// node's local deliveries: the caller cares how many subscribers will
	// ultimately see the message, and the subscription table is kept
	// converged across the mesh by sync and by subscribe/unsubscribe
	// fan-out (spec.md §8 S2).
	countReply(resp, len(subs))
}

// Broadcast implements spec.md §4.5's broadcast algorithm: every local
// client except the originator, plus every peer exactly once, for
// on_client requests; local clients only, for on_peer requests.
func Broadcast(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	payload := paramObject(req, "payload")

	originator := selfID
	if ctx != proto.OnClient {
		originator = paramString(req, "client_id")
	}

	delivered := 0
	for _, c := range s.Clients.All() {
		if c.PeerID != s.ID || c.ID == originator {
			continue
		}
		frame, err := proto.EncodeFrame(meshid.New(), "broadcast", map[string]interface{}{
			"payload":   payload,
			"client_id": originator,
		})
		if err != nil {
			continue
		}
		if err := c.Stream.Enqueue(frame); err == nil {
			delivered++
		}
	}

	if ctx == proto.OnClient {
		for _, p := range s.Peers.All() {
			frame, err := proto.EncodeFrame(meshid.New(), "broadcast", map[string]interface{}{
				"payload":   payload,
				"client_id": originator,
			})
			if err != nil {
				continue
			}
			p.Stream.Enqueue(frame)
		}
	}

	countReply(resp, delivered)
}

// Send implements spec.md §4.5's directed send: deliver to the target
// client directly if local, else forward to its owning peer, which will
// see on_peer context and deliver locally there.
func Send(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	toID := paramString(req, "to_client_id")
	payload := paramObject(req, "payload")

	fromID := selfID
	if ctx != proto.OnClient {
		fromID = paramString(req, "from_client_id")
	}

	c, ok := s.Clients.Get(toID)
	if !ok {
		noEffect(resp)
		return
	}

	frame, err := proto.EncodeFrame(meshid.New(), "send", map[string]interface{}{
		"from_client_id": fromID,
		"to_client_id":   toID,
		"payload":        payload,
	})
	if err != nil {
		noEffect(resp)
		return
	}

	if c.PeerID == s.ID {
		c.Stream.Enqueue(frame)
		resp.SetData("ok", nil)
		return
	}

	p, ok := s.Peers.Get(c.PeerID)
	if !ok {
		noEffect(resp)
		return
	}
	p.Stream.Enqueue(frame)
	resp.SetData("ok", nil)
}
