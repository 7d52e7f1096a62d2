// Package kernel implements the pure dispatch function every decoded
// frame passes through (spec.md §4.3).
package kernel

import (
	"time"

	"github.com/nodemesh/meshd/internal/handler"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
)

// Dispatch runs the base validator, looks up and runs the matching
// handler, and always stamps the response processed before returning
// (spec.md §4.3). It does no I/O: fan-out is enqueued by handlers onto
// other streams' outbound queues, never performed here.
func Dispatch(s *state.State, req *proto.Request, ctx proto.Context, selfID string) *proto.Response {
	receivedAt := time.Now().UnixNano()

	var txID *string
	if s, ok := req.TransactionIDString(); ok {
		txID = &s
	}
	resp := proto.NewResponse(txID, receivedAt)

	// Peer streams are one-way gossip: a node never acks a frame another
	// peer forwarded to it, on pain of an ack-storm (spec.md §4.1's "ack
	// suppression" flag exists precisely for this). Suppress unconditionally
	// here, before any validation/dispatch outcome, so every return path —
	// including base-validator failure and unknown-action failure — is
	// covered, not just a successful handler call.
	if ctx == proto.OnPeer {
		resp.MarkAsAck()
	}

	defer resp.MarkAsProcessed()

	if !proto.ValidateBase(req, resp) {
		return resp
	}

	action, _ := req.ActionString()

	h, ok := handler.Table[action]
	if !ok {
		resp.MarkAsFailed("unprocessable entity", map[string]interface{}{
			"action": "action attribute isn't implemented",
		})
		return resp
	}

	if !proto.ValidateParams(ctx, action, req, resp) {
		return resp
	}

	h(s, ctx, selfID, req, resp)
	return resp
}
