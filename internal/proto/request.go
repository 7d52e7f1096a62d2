package proto

import "encoding/json"

// Request is the decoded shape of one incoming frame, per spec.md §6:
//
//	{ "transaction_id": "<uuid>", "action": "<string>", "params": {...} }
//
// Fields are kept as interface{} so the base validator can observe
// wrong-typed input (e.g. a numeric transaction_id, or a params that isn't
// an object at all) before anything downstream assumes a concrete Go type.
type Request struct {
	TransactionID interface{}
	Action        interface{}
	Params        interface{}

	paramsPresent bool
}

// DecodeRequest parses one frame's raw bytes into a Request. It only
// requires the payload to be a JSON object — per-field shape (including
// whether `params` was present at all) is the validator pipeline's job,
// not the decoder's.
func DecodeRequest(raw []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	req := &Request{}

	if v, ok := fields["transaction_id"]; ok {
		if err := json.Unmarshal(v, &req.TransactionID); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["action"]; ok {
		if err := json.Unmarshal(v, &req.Action); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["params"]; ok {
		req.paramsPresent = true
		if err := json.Unmarshal(v, &req.Params); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// TransactionIDString returns the transaction id as a string and whether it
// was present and string-typed at all (the base validator separately
// checks UUID well-formedness).
func (r *Request) TransactionIDString() (string, bool) {
	if r.TransactionID == nil {
		return "", false
	}
	s, ok := r.TransactionID.(string)
	return s, ok
}

// ActionString returns the action name and whether it was present and
// string-typed.
func (r *Request) ActionString() (string, bool) {
	if r.Action == nil {
		return "", false
	}
	s, ok := r.Action.(string)
	return s, ok
}

// ParamsObject returns Params as a map and whether `params` was present in
// the frame at all *and* decoded to a JSON object.
func (r *Request) ParamsObject() (map[string]interface{}, bool) {
	if !r.paramsPresent {
		return nil, false
	}
	m, ok := r.Params.(map[string]interface{})
	return m, ok
}

// ParamsPresent reports whether the `params` key was present in the frame
// at all, regardless of its type.
func (r *Request) ParamsPresent() bool {
	return r.paramsPresent
}
