package handler

import (
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/table"
)

// ClientJoin has no effect on a client-context stream (spec.md §4.4): a
// client cannot register another peer's client. On a peer-context stream
// it registers the forwarded remote client, bound to the forwarding peer.
func ClientJoin(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	if ctx == proto.OnClient {
		resp.SetData("no effect", nil)
		return
	}

	id := paramString(req, "client_id")
	s.Clients.Insert(&table.Client{ID: id, PeerID: selfID})
	resp.SetData("ok", nil)
}

// ClientLeave has no effect on a client-context stream. On a peer-context
// stream it removes the forwarded remote client, cascading its
// subscriptions (spec.md §4.4).
func ClientLeave(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response) {
	if ctx == proto.OnClient {
		resp.SetData("no effect", nil)
		return
	}

	id := paramString(req, "client_id")
	_, removed := s.RemoveClient(id)
	countReply(resp, removed)
}
