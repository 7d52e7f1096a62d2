package proto

import (
	"fmt"

	"github.com/nodemesh/meshd/internal/meshid"
)

// Kind names the shape a field check expects, matching the stable error
// vocabulary of spec.md §4.2: "params <field> attribute must be
// <present|string|number|boolean|object|uuid>".
type Kind string

const (
	KindPresent Kind = "present"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindUUID    Kind = "uuid"
)

// Field describes one required params field for an action.
type Field struct {
	Name string
	Kind Kind
	// ImplicitIn lists the contexts in which this field is supplied by the
	// connection itself (e.g. a client-context subscribe's implicit
	// client_id) and therefore must NOT be required from params at all.
	ImplicitIn []Context
}

func (f Field) implicitIn(ctx Context) bool {
	for _, c := range f.ImplicitIn {
		if c == ctx {
			return true
		}
	}
	return false
}

// ActionSpec is the set of params fields one action's validator enforces.
type ActionSpec struct {
	// RequiresParams is false for actions with no params at all (e.g.
	// ping, clients). When false, a missing params object is not an error.
	RequiresParams bool
	Fields         []Field
}

// Specs maps every recognized action (spec.md §4.4) to its validator
// shape. Registered once at package init, consulted by ValidateParams.
var Specs = map[string]ActionSpec{
	"ping":    {},
	"whoami":  {},
	"clients": {},
	"client": {
		RequiresParams: true,
		Fields:         []Field{{Name: "client_id", Kind: KindUUID}},
	},
	"client_join": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "client_id", Kind: KindUUID},
		},
	},
	"client_leave": {
		RequiresParams: true,
		Fields:         []Field{{Name: "client_id", Kind: KindUUID}},
	},
	"clients_of_peer": {
		RequiresParams: true,
		Fields:         []Field{{Name: "peer_id", Kind: KindUUID}},
	},
	"subscribe": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "channel", Kind: KindString},
			{Name: "client_id", Kind: KindUUID, ImplicitIn: []Context{OnClient}},
		},
	},
	"unsubscribe": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "channel", Kind: KindString},
			{Name: "client_id", Kind: KindUUID, ImplicitIn: []Context{OnClient}},
		},
	},
	"unsubscribe_all_client": {
		RequiresParams: true,
		Fields:         []Field{{Name: "client_id", Kind: KindUUID}},
	},
	"unsubscribe_all_peer": {
		RequiresParams: true,
		Fields:         []Field{{Name: "peer_id", Kind: KindUUID}},
	},
	"is_subscribed": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "channel", Kind: KindString},
			{Name: "client_id", Kind: KindUUID, ImplicitIn: []Context{OnClient}},
		},
	},
	"publish": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "channel", Kind: KindString},
			{Name: "payload", Kind: KindObject},
		},
	},
	"broadcast": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "payload", Kind: KindObject},
			{Name: "client_id", Kind: KindUUID, ImplicitIn: []Context{OnClient}},
		},
	},
	"send": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "to_client_id", Kind: KindUUID},
			{Name: "payload", Kind: KindObject},
			{Name: "from_client_id", Kind: KindUUID, ImplicitIn: []Context{OnClient}},
		},
	},
	"register": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "sessions_port", Kind: KindNumber},
			{Name: "clients_port", Kind: KindNumber},
			{Name: "registered", Kind: KindBoolean},
		},
	},
	"peer": {
		RequiresParams: true,
		Fields: []Field{
			{Name: "host", Kind: KindString},
			{Name: "peer_port", Kind: KindNumber},
			{Name: "client_port", Kind: KindNumber},
		},
	},
}

// baseField fails with the un-prefixed message format the base validator
// uses for transaction_id/action (spec.md §8 S6: "transaction_id attribute
// must be uuid", no "params" prefix — that prefix is only used for
// per-action params fields).
func baseField(resp *Response, field string, kind Kind) bool {
	resp.MarkAsFailed("unprocessable entity", map[string]interface{}{
		field: fmt.Sprintf("%s attribute must be %s", field, kind),
	})
	return false
}

// ValidateBase enforces the kernel's base validator (spec.md §4.2):
// transaction_id present/string/uuid, action present/string. On failure it
// populates resp via MarkAsFailed and returns false.
func ValidateBase(req *Request, resp *Response) bool {
	txID, ok := req.TransactionIDString()
	if !ok {
		if req.TransactionID == nil {
			return baseField(resp, "transaction_id", KindPresent)
		}
		return baseField(resp, "transaction_id", KindString)
	}
	if !meshid.IsValid(txID) {
		return baseField(resp, "transaction_id", KindUUID)
	}

	if _, ok := req.ActionString(); !ok {
		if req.Action == nil {
			return baseField(resp, "action", KindPresent)
		}
		return baseField(resp, "action", KindString)
	}

	return true
}

// ValidateParams enforces one action's params shape (spec.md §4.2),
// skipping fields the given context supplies implicitly.
func ValidateParams(ctx Context, action string, req *Request, resp *Response) bool {
	spec, ok := Specs[action]
	if !ok {
		return true // unknown action: the kernel handles this, not the validator.
	}

	needsParams := spec.RequiresParams
	for _, f := range spec.Fields {
		if !f.implicitIn(ctx) {
			needsParams = true
		}
	}
	if !needsParams {
		return true
	}

	if !req.ParamsPresent() {
		return failParams(resp, "params attribute must be present")
	}
	params, ok := req.ParamsObject()
	if !ok {
		return failParams(resp, "params attribute must be object")
	}

	for _, f := range spec.Fields {
		if f.implicitIn(ctx) {
			continue
		}
		if !checkField(params, f, resp) {
			return false
		}
	}
	return true
}

func checkField(params map[string]interface{}, f Field, resp *Response) bool {
	v, present := params[f.Name]
	if !present || v == nil {
		return paramsField(resp, f.Name, KindPresent)
	}

	switch f.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return paramsField(resp, f.Name, KindString)
		}
	case KindNumber:
		if _, ok := v.(float64); !ok {
			return paramsField(resp, f.Name, KindNumber)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return paramsField(resp, f.Name, KindBoolean)
		}
	case KindObject:
		if _, ok := v.(map[string]interface{}); !ok {
			return paramsField(resp, f.Name, KindObject)
		}
	case KindUUID:
		s, ok := v.(string)
		if !ok {
			return paramsField(resp, f.Name, KindString)
		}
		if !meshid.IsValid(s) {
			return paramsField(resp, f.Name, KindUUID)
		}
	}
	return true
}

// paramsField fails with the "params <field> attribute must be <kind>"
// format spec.md §4.2 mandates for per-action params fields.
func paramsField(resp *Response, field string, kind Kind) bool {
	resp.MarkAsFailed("unprocessable entity", map[string]interface{}{
		field: fmt.Sprintf("params %s attribute must be %s", field, kind),
	})
	return false
}

func failParams(resp *Response, message string) bool {
	resp.MarkAsFailed("unprocessable entity", map[string]interface{}{
		"params": message,
	})
	return false
}
