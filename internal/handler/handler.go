// Package handler implements the per-action business logic of spec.md §4.4:
// one function per recognized action, each a pure mutation/read of
// internal/state plus zero or more Outbound.Enqueue fan-out calls.
package handler

import (
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
)

// Func is the shape every handler implements. By the time the kernel calls
// one, the base and per-action validators have already succeeded: a
// handler may assume its required params fields are present and
// well-typed.
type Func func(s *state.State, ctx proto.Context, selfID string, req *proto.Request, resp *proto.Response)

// Table maps every recognized action name to its handler (spec.md §4.4).
// The kernel's dispatch step is exactly this lookup.
var Table = map[string]Func{
	"ping":                   Ping,
	"whoami":                 Whoami,
	"clients":                Clients,
	"client":                 Client,
	"client_join":            ClientJoin,
	"client_leave":           ClientLeave,
	"clients_of_peer":        ClientsOfPeer,
	"subscribe":              Subscribe,
	"unsubscribe":            Unsubscribe,
	"unsubscribe_all_client": UnsubscribeAllClient,
	"unsubscribe_all_peer":   UnsubscribeAllPeer,
	"is_subscribed":          IsSubscribed,
	"publish":                Publish,
	"broadcast":              Broadcast,
	"send":                   Send,
	"register":               Register,
	"peer":                   Peer,
}

// params returns req's params object. Safe to call unchecked from a
// handler: the kernel never dispatches to a handler whose params failed
// validation.
func params(req *proto.Request) map[string]interface{} {
	p, _ := req.ParamsObject()
	return p
}

func paramString(req *proto.Request, name string) string {
	v, _ := params(req)[name].(string)
	return v
}

func paramObject(req *proto.Request, name string) map[string]interface{} {
	v, _ := params(req)[name].(map[string]interface{})
	return v
}

func paramNumber(req *proto.Request, name string) float64 {
	v, _ := params(req)[name].(float64)
	return v
}

func paramBool(req *proto.Request, name string) bool {
	v, _ := params(req)[name].(bool)
	return v
}

// noEffect marks resp as a successful lookup-miss or no-op (spec.md §4.4's
// reply convention and §7's "lookup misses are success-acked" rule).
func noEffect(resp *proto.Response) {
	resp.SetData("no effect", nil)
}

// countReply marks resp per spec.md §4.4's "successful mutators whose
// primary output is a count" convention: message "ok" when n > 0, else
// "no effect".
func countReply(resp *proto.Response, n int) {
	if n > 0 {
		resp.SetData("ok", map[string]interface{}{"count": n})
		return
	}
	resp.SetData("no effect", map[string]interface{}{"count": 0})
}
