package proto

import (
	"encoding/json"
	"time"
)

// Status values for Response.Status, per spec.md §4.1.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Response is the immutable-once-sent ack envelope of spec.md §4.1. It is
// built up by handlers (via MarkAsFailed/SetData) and then serialized once,
// at which point Runtime is stamped — never before.
type Response struct {
	TransactionID *string
	Status        string
	Message       string
	Data          map[string]interface{}
	Timestamp     int64

	// Processed is set once the kernel has populated this response.
	Processed bool
	// Ack suppresses this response from the wire: the kernel sets it for
	// every frame that arrived on a peer stream, since peer traffic is
	// never itself acknowledged (spec.md §4.9/ack suppression design
	// note).
	Ack bool

	// decodeFailure marks a response built by DecodeFailureResponse: the
	// frame never decoded far enough to know an action, so its wire
	// envelope omits the action field entirely rather than claiming "ack"
	// (spec.md §4.7).
	decodeFailure bool
}

// wireEnvelope is the on-the-wire shape of an ack frame (spec.md §6).
type wireEnvelope struct {
	TransactionID interface{}            `json:"transaction_id"`
	Action        string                 `json:"action"`
	Status        string                 `json:"status"`
	Message       string                 `json:"message"`
	Data          map[string]interface{} `json:"data"`
	Timestamp     int64                  `json:"timestamp"`
	Runtime       int64                  `json:"runtime"`
}

// decodeFailureEnvelope is the on-the-wire shape of a decode-failure
// response (spec.md §4.7): identical to wireEnvelope minus the action
// field, since a frame that couldn't be decoded never had one.
type decodeFailureEnvelope struct {
	TransactionID interface{}            `json:"transaction_id"`
	Status        string                 `json:"status"`
	Message       string                 `json:"message"`
	Data          map[string]interface{} `json:"data"`
	Timestamp     int64                  `json:"timestamp"`
	Runtime       int64                  `json:"runtime"`
}

// NewResponse starts a response for a request received at timestamp
// (nanoseconds since epoch). transactionID is nil when the originating
// frame's transaction_id could not even be read as a string (decode
// failure path, spec.md §7).
func NewResponse(transactionID *string, timestamp int64) *Response {
	return &Response{
		TransactionID: transactionID,
		Timestamp:     timestamp,
		Data:          map[string]interface{}{},
	}
}

// MarkAsFailed sets status=failed, the given message, and copies bag into
// Data (spec.md §4.1). bag is typically a single {field: description} entry
// from the validator pipeline, or an {"action": "..."} / {"body": "..."}
// entry from the kernel/stream for unknown-action and decode-failure cases.
func (r *Response) MarkAsFailed(message string, bag map[string]interface{}) {
	r.Status = StatusFailed
	r.Message = message
	data := make(map[string]interface{}, len(bag))
	for k, v := range bag {
		data[k] = v
	}
	r.Data = data
}

// SetData sets status=success with the given message and data (spec.md
// §4.1). A nil data is normalized to an empty object so it always
// serializes as `{}`.
func (r *Response) SetData(message string, data map[string]interface{}) {
	r.Status = StatusSuccess
	r.Message = message
	if data == nil {
		data = map[string]interface{}{}
	}
	r.Data = data
}

// MarkAsProcessed flips Processed. The kernel calls this exactly once, as
// the very last step of dispatch (spec.md §4.3).
func (r *Response) MarkAsProcessed() {
	r.Processed = true
}

// MarkAsAck flips Ack, suppressing this response from ever reaching the
// wire (spec.md design note on ack suppression).
func (r *Response) MarkAsAck() {
	r.Ack = true
}

// MarshalFrame serializes the ack envelope, computing Runtime as the
// elapsed nanoseconds between r.Timestamp and this call — never earlier
// (spec.md §4.1: "runtime is computed at serialization time, not at
// construction").
func (r *Response) MarshalFrame() ([]byte, error) {
	runtime := time.Now().UnixNano() - r.Timestamp
	if runtime < 0 {
		runtime = 0
	}

	var txID interface{}
	if r.TransactionID != nil {
		txID = *r.TransactionID
	}

	if r.decodeFailure {
		return json.Marshal(decodeFailureEnvelope{
			TransactionID: txID,
			Status:        r.Status,
			Message:       r.Message,
			Data:          r.Data,
			Timestamp:     r.Timestamp,
			Runtime:       runtime,
		})
	}

	return json.Marshal(wireEnvelope{
		TransactionID: txID,
		Action:        "ack",
		Status:        r.Status,
		Message:       r.Message,
		Data:          r.Data,
		Timestamp:     r.Timestamp,
		Runtime:       runtime,
	})
}

// DecodeFailureResponse builds the failed envelope for a frame that could
// not even be parsed as a JSON object (spec.md §4.7/§7):
//
//	{transaction_id:null, status:"failed", message:"unprocessable entity",
//	 data:{"body":"body must be json object"}}
//
// Note the absence of an "action" field: the frame never decoded far
// enough to know one, so MarshalFrame must not claim "ack" here.
func DecodeFailureResponse(timestamp int64) *Response {
	r := NewResponse(nil, timestamp)
	r.decodeFailure = true
	r.MarkAsFailed("unprocessable entity", map[string]interface{}{
		"body": "body must be json object",
	})
	r.MarkAsProcessed()
	return r
}
