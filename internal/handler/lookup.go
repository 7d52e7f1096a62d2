package handler

import (
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
)

// Ping replies "pong" regardless of context (spec.md §4.4).
func Ping(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	resp.SetData("pong", nil)
}

// Whoami reports the caller's own id and remote address, read from
// whichever table selfID belongs to for this context (spec.md §4.4).
func Whoami(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	if ctx == proto.OnPeer {
		p, ok := s.Peers.Get(selfID)
		if !ok {
			noEffect(resp)
			return
		}
		resp.SetData("ok", map[string]interface{}{
			"peer_id":     p.ID,
			"remote_addr": p.RemoteAddr,
		})
		return
	}

	c, ok := s.Clients.Get(selfID)
	if !ok {
		noEffect(resp)
		return
	}
	resp.SetData("ok", map[string]interface{}{
		"client_id":   c.ID,
		"remote_addr": c.RemoteAddr,
	})
}

// Clients lists every known client id, local or remote (spec.md §4.4).
func Clients(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	all := s.Clients.All()
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	resp.SetData("ok", map[string]interface{}{"clients": ids})
}

// Client describes one client by id, including its current subscription
// channels (spec.md §4.4).
func Client(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	id := paramString(req, "client_id")
	c, ok := s.Clients.Get(id)
	if !ok {
		noEffect(resp)
		return
	}

	subs := s.Subscriptions.ByClient(id)
	channels := make([]string, 0, len(subs))
	for _, sub := range subs {
		channels = append(channels, sub.Channel)
	}

	resp.SetData("ok", map[string]interface{}{
		"client_id":     c.ID,
		"peer_id":       c.PeerID,
		"subscriptions": channels,
	})
}

// ClientsOfPeer lists the ids of every client reachable through a given
// peer id (spec.md §4.4).
func ClientsOfPeer(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	peerID := paramString(req, "peer_id")
	clients := s.Clients.ByPeer(peerID)
	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	resp.SetData("ok", map[string]interface{}{"clients": ids})
}
