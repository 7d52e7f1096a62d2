package proto

import "encoding/json"

// outboundEnvelope is the on-the-wire shape of an unsolicited (fan-out or
// welcome) frame (spec.md §6): same transaction_id/action/params shape as a
// client request, reused for server-originated traffic.
type outboundEnvelope struct {
	TransactionID string                 `json:"transaction_id"`
	Action        string                 `json:"action"`
	Params        map[string]interface{} `json:"params,omitempty"`
}

// EncodeFrame serializes an unsolicited request-shaped frame: a forwarded
// publish/broadcast/send, or a peer-to-peer register/peer/client_join/
// subscribe/unsubscribe announcement (spec.md §4.5/§4.6).
func EncodeFrame(transactionID, action string, params map[string]interface{}) ([]byte, error) {
	return json.Marshal(outboundEnvelope{
		TransactionID: transactionID,
		Action:        action,
		Params:        params,
	})
}

// welcomeEnvelope is the sole server-originated success envelope whose
// action isn't "ack" (spec.md §4.8).
type welcomeEnvelope struct {
	TransactionID string                 `json:"transaction_id"`
	Action        string                 `json:"action"`
	Status        string                 `json:"status"`
	Data          map[string]interface{} `json:"data"`
}

// EncodeWelcome builds the frame a client stream must enqueue synchronously
// upon completing handshake (spec.md §4.8).
func EncodeWelcome(transactionID, clientID string) ([]byte, error) {
	return json.Marshal(welcomeEnvelope{
		TransactionID: transactionID,
		Action:        "welcome",
		Status:        StatusSuccess,
		Data:          map[string]interface{}{"client_id": clientID},
	})
}
