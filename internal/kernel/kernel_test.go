package kernel

import (
	"encoding/json"
	"testing"

	"github.com/nodemesh/meshd/internal/config"
	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/table"
)

type capture struct{ frames [][]byte }

func (c *capture) Enqueue(frame []byte) error {
	c.frames = append(c.frames, frame)
	return nil
}

func (c *capture) decoded(t *testing.T, i int) map[string]interface{} {
	t.Helper()
	if i >= len(c.frames) {
		t.Fatalf("frame %d not captured, only %d frame(s) enqueued", i, len(c.frames))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(c.frames[i], &m); err != nil {
		t.Fatalf("frame %d isn't valid JSON: %s", i, err)
	}
	return m
}

func newTestState(t *testing.T) *state.State {
	t.Helper()
	s := state.New(&config.Config{WorkerCount: 1})
	t.Cleanup(s.Stop)
	return s
}

func decode(t *testing.T, raw string) *proto.Request {
	t.Helper()
	req, err := proto.DecodeRequest([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected decode error: %s", err)
	}
	return req
}

// S1: ping acks "pong" with an empty data object, on either context.
func TestScenarioS1Ping(t *testing.T) {
	s := newTestState(t)
	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"ping"}`)

	resp := Dispatch(s, req, proto.OnClient, "whoever")

	if resp.Status != proto.StatusSuccess {
		t.Fatalf("status = %q, want %q", resp.Status, proto.StatusSuccess)
	}
	if resp.Message != "pong" {
		t.Fatalf("message = %q, want \"pong\"", resp.Message)
	}
	if len(resp.Data) != 0 {
		t.Fatalf("data = %v, want empty", resp.Data)
	}
	if resp.TransactionID == nil || *resp.TransactionID != "3fae765c-6590-4915-8ae6-2293d19686ec" {
		t.Fatalf("transaction_id not echoed verbatim: %v", resp.TransactionID)
	}
	if !resp.Processed {
		t.Fatal("response should be marked processed")
	}
}

// S6: an invalid transaction_id fails with the stable base-validator
// message, unprefixed by "params".
func TestScenarioS6InvalidTransactionID(t *testing.T) {
	s := newTestState(t)
	req := decode(t, `{"transaction_id":"not-a-uuid","action":"ping"}`)

	resp := Dispatch(s, req, proto.OnClient, "whoever")

	if resp.Status != proto.StatusFailed {
		t.Fatalf("status = %q, want %q", resp.Status, proto.StatusFailed)
	}
	if resp.Message != "unprocessable entity" {
		t.Fatalf("message = %q, want \"unprocessable entity\"", resp.Message)
	}
	if resp.Data["transaction_id"] != "transaction_id attribute must be uuid" {
		t.Fatalf("data[transaction_id] = %v, want \"transaction_id attribute must be uuid\"", resp.Data["transaction_id"])
	}
}

func TestUnknownActionFails(t *testing.T) {
	s := newTestState(t)
	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"levitate"}`)

	resp := Dispatch(s, req, proto.OnClient, "whoever")

	if resp.Status != proto.StatusFailed {
		t.Fatalf("status = %q, want %q", resp.Status, proto.StatusFailed)
	}
	if resp.Data["action"] != "action attribute isn't implemented" {
		t.Fatalf("data[action] = %v, want \"action attribute isn't implemented\"", resp.Data["action"])
	}
}

// Round-trip laws (spec.md §8).
func TestSubscribeIsSubscribedRoundTrip(t *testing.T) {
	s := newTestState(t)
	selfID := meshid.New()
	s.Clients.Insert(&table.Client{ID: selfID, PeerID: s.ID, Stream: &capture{}})

	subscribe := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"subscribe","params":{"channel":"w"}}`)
	if resp := Dispatch(s, subscribe, proto.OnClient, selfID); resp.Status != proto.StatusSuccess {
		t.Fatalf("subscribe failed: %v", resp.Data)
	}

	isSub := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"is_subscribed","params":{"channel":"w"}}`)
	if resp := Dispatch(s, isSub, proto.OnClient, selfID); resp.Message != "yes" {
		t.Fatalf("is_subscribed after subscribe = %q, want \"yes\"", resp.Message)
	}

	unsubscribe := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"unsubscribe","params":{"channel":"w"}}`)
	if resp := Dispatch(s, unsubscribe, proto.OnClient, selfID); resp.Status != proto.StatusSuccess {
		t.Fatalf("unsubscribe failed: %v", resp.Data)
	}

	if resp := Dispatch(s, isSub, proto.OnClient, selfID); resp.Message != "no" {
		t.Fatalf("is_subscribed after unsubscribe = %q, want \"no\"", resp.Message)
	}
}

func TestSubscribeTwiceIsNoEffect(t *testing.T) {
	s := newTestState(t)
	selfID := meshid.New()
	s.Clients.Insert(&table.Client{ID: selfID, PeerID: s.ID, Stream: &capture{}})

	subscribe := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"subscribe","params":{"channel":"w"}}`)
	Dispatch(s, subscribe, proto.OnClient, selfID)

	resp := Dispatch(s, subscribe, proto.OnClient, selfID)
	if resp.Message != "no effect" {
		t.Fatalf("second subscribe message = %q, want \"no effect\"", resp.Message)
	}
	if resp.Data["count"] != 0 {
		t.Fatalf("second subscribe count = %v, want 0", resp.Data["count"])
	}
}

// S2-shaped: a local subscriber on the channel receives the forwarded
// publish frame verbatim, and the publisher's ack carries the matching
// subscriber count.
func TestPublishDeliversToLocalSubscriberAndForwardsToPeers(t *testing.T) {
	s := newTestState(t)

	subscriberID := meshid.New()
	subStream := &capture{}
	s.Clients.Insert(&table.Client{ID: subscriberID, PeerID: s.ID, Stream: subStream})
	s.Subscriptions.Add(table.Subscription{PeerID: s.ID, ClientID: subscriberID, Channel: "w"})

	remotePeerStream := &capture{}
	s.Peers.Insert(&table.Peer{ID: "peer-b", Stream: remotePeerStream})
	s.Subscriptions.Add(table.Subscription{PeerID: "peer-b", ClientID: meshid.New(), Channel: "w"})

	publisherID := meshid.New()
	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"publish","params":{"channel":"w","payload":{"m":"EHLO"}}}`)

	resp := Dispatch(s, req, proto.OnClient, publisherID)

	if resp.Status != proto.StatusSuccess || resp.Message != "ok" {
		t.Fatalf("publish ack = %q/%q, want success/ok", resp.Status, resp.Message)
	}
	if resp.Data["count"] != 2 {
		t.Fatalf("count = %v, want 2 (one local, one remote subscription)", resp.Data["count"])
	}

	if len(subStream.frames) != 1 {
		t.Fatalf("local subscriber got %d frame(s), want 1", len(subStream.frames))
	}
	got := subStream.decoded(t, 0)
	if got["action"] != "publish" {
		t.Fatalf("forwarded action = %v, want \"publish\"", got["action"])
	}
	if got["transaction_id"] != "3fae765c-6590-4915-8ae6-2293d19686ec" {
		t.Fatalf("publish forward must keep the original transaction_id, got %v", got["transaction_id"])
	}
	params := got["params"].(map[string]interface{})
	if params["client_id"] != subscriberID {
		t.Fatalf("forwarded client_id = %v, want %q", params["client_id"], subscriberID)
	}

	if len(remotePeerStream.frames) != 1 {
		t.Fatalf("remote peer got %d frame(s), want 1", len(remotePeerStream.frames))
	}
}

func TestPublishOnPeerContextDoesNotReforward(t *testing.T) {
	s := newTestState(t)

	subscriberID := meshid.New()
	subStream := &capture{}
	s.Clients.Insert(&table.Client{ID: subscriberID, PeerID: s.ID, Stream: subStream})
	s.Subscriptions.Add(table.Subscription{PeerID: s.ID, ClientID: subscriberID, Channel: "w"})

	otherPeerStream := &capture{}
	s.Peers.Insert(&table.Peer{ID: "peer-c", Stream: otherPeerStream})

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"publish","params":{"channel":"w","payload":{"m":"EHLO"}}}`)
	Dispatch(s, req, proto.OnPeer, "peer-b")

	if len(subStream.frames) != 1 {
		t.Fatalf("local subscriber got %d frame(s), want 1", len(subStream.frames))
	}
	if len(otherPeerStream.frames) != 0 {
		t.Fatalf("a peer-forwarded publish must never be re-forwarded to other peers, got %d frame(s)", len(otherPeerStream.frames))
	}
}

// S3-shaped: broadcast reaches every other local client and every peer,
// but never the originator.
func TestBroadcastExcludesOriginatorAndReachesPeers(t *testing.T) {
	s := newTestState(t)

	originatorID := meshid.New()
	originatorStream := &capture{}
	s.Clients.Insert(&table.Client{ID: originatorID, PeerID: s.ID, Stream: originatorStream})

	otherID := meshid.New()
	otherStream := &capture{}
	s.Clients.Insert(&table.Client{ID: otherID, PeerID: s.ID, Stream: otherStream})

	peerStream := &capture{}
	s.Peers.Insert(&table.Peer{ID: "peer-b", Stream: peerStream})

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"broadcast","params":{"payload":{"m":"EHLO"}}}`)
	Dispatch(s, req, proto.OnClient, originatorID)

	if len(originatorStream.frames) != 0 {
		t.Fatalf("originator got %d broadcast frame(s), want 0", len(originatorStream.frames))
	}
	if len(otherStream.frames) != 1 {
		t.Fatalf("other local client got %d frame(s), want 1", len(otherStream.frames))
	}
	if len(peerStream.frames) != 1 {
		t.Fatalf("peer got %d frame(s), want 1", len(peerStream.frames))
	}

	got := otherStream.decoded(t, 0)
	params := got["params"].(map[string]interface{})
	if params["client_id"] != originatorID {
		t.Fatalf("broadcast client_id = %v, want %q", params["client_id"], originatorID)
	}
}

// S4-shaped: directed send to a local target.
func TestSendDeliversDirectToLocalTarget(t *testing.T) {
	s := newTestState(t)

	senderID := meshid.New()
	s.Clients.Insert(&table.Client{ID: senderID, PeerID: s.ID, Stream: &capture{}})

	targetID := meshid.New()
	targetStream := &capture{}
	s.Clients.Insert(&table.Client{ID: targetID, PeerID: s.ID, Stream: targetStream})

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"send","params":{"to_client_id":"`+targetID+`","payload":{"m":"EHLO"}}}`)
	resp := Dispatch(s, req, proto.OnClient, senderID)

	if resp.Status != proto.StatusSuccess || resp.Message != "ok" {
		t.Fatalf("send ack = %q/%q, want success/ok", resp.Status, resp.Message)
	}
	if len(targetStream.frames) != 1 {
		t.Fatalf("target got %d frame(s), want 1", len(targetStream.frames))
	}

	got := targetStream.decoded(t, 0)
	params := got["params"].(map[string]interface{})
	if params["from_client_id"] != senderID {
		t.Fatalf("from_client_id = %v, want %q", params["from_client_id"], senderID)
	}
	if params["to_client_id"] != targetID {
		t.Fatalf("to_client_id = %v, want %q", params["to_client_id"], targetID)
	}
}

func TestSendToUnknownClientIsNoEffect(t *testing.T) {
	s := newTestState(t)
	senderID := meshid.New()
	s.Clients.Insert(&table.Client{ID: senderID, PeerID: s.ID, Stream: &capture{}})

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"send","params":{"to_client_id":"`+meshid.New()+`","payload":{"m":"EHLO"}}}`)
	resp := Dispatch(s, req, proto.OnClient, senderID)

	if resp.Message != "no effect" {
		t.Fatalf("message = %q, want \"no effect\"", resp.Message)
	}
}

func TestSendForwardsToOwningPeerWhenTargetRemote(t *testing.T) {
	s := newTestState(t)

	senderID := meshid.New()
	s.Clients.Insert(&table.Client{ID: senderID, PeerID: s.ID, Stream: &capture{}})

	targetID := meshid.New()
	peerStream := &capture{}
	s.Peers.Insert(&table.Peer{ID: "peer-b", Stream: peerStream})
	s.Clients.Insert(&table.Client{ID: targetID, PeerID: "peer-b"})

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"send","params":{"to_client_id":"`+targetID+`","payload":{"m":"EHLO"}}}`)
	resp := Dispatch(s, req, proto.OnClient, senderID)

	if resp.Message != "ok" {
		t.Fatalf("message = %q, want \"ok\"", resp.Message)
	}
	if len(peerStream.frames) != 1 {
		t.Fatalf("owning peer got %d frame(s), want 1", len(peerStream.frames))
	}
}

// register/peer: S5-shaped sync, exercised directly against the handler
// layer's syncNewPeer path via the register action.
func TestRegisterTriggersSyncToNewPeer(t *testing.T) {
	s := newTestState(t)

	existingPeerStream := &capture{}
	s.Peers.Insert(&table.Peer{ID: "peer-existing", Host: "10.0.0.5", PeerPort: 9000, ClientPort: 9001, Stream: existingPeerStream})

	localClientID := meshid.New()
	s.Clients.Insert(&table.Client{ID: localClientID, PeerID: s.ID})
	s.Subscriptions.Add(table.Subscription{PeerID: s.ID, ClientID: localClientID, Channel: "w"})

	newPeerStream := &capture{}
	s.Peers.Insert(&table.Peer{ID: "peer-new", Stream: newPeerStream})

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"register","params":{"sessions_port":9100,"clients_port":9101,"registered":false}}`)
	resp := Dispatch(s, req, proto.OnPeer, "peer-new")

	if resp.Status != proto.StatusSuccess {
		t.Fatalf("register ack status = %q, want success", resp.Status)
	}

	p, ok := s.Peers.Get("peer-new")
	if !ok || !p.Registered() {
		t.Fatal("peer-new should be marked registered")
	}
	if p.PeerPort != 9100 || p.ClientPort != 9101 {
		t.Fatalf("advertised ports = (%d, %d), want (9100, 9101)", p.PeerPort, p.ClientPort)
	}

	// Expect: one `peer` frame (announcing peer-existing), one
	// `client_join` (localClientID), one `subscribe` (the w subscription).
	if len(newPeerStream.frames) != 3 {
		t.Fatalf("sync sent %d frame(s) to the new peer, want 3", len(newPeerStream.frames))
	}

	actions := map[string]bool{}
	for i := range newPeerStream.frames {
		f := newPeerStream.decoded(t, i)
		actions[f["action"].(string)] = true
	}
	for _, want := range []string{"peer", "client_join", "subscribe"} {
		if !actions[want] {
			t.Fatalf("expected a %q frame among sync output, got actions %v", want, actions)
		}
	}
}

func TestRegisterNoEffectOnClientContext(t *testing.T) {
	s := newTestState(t)
	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"register","params":{"sessions_port":9100,"clients_port":9101,"registered":false}}`)

	resp := Dispatch(s, req, proto.OnClient, meshid.New())
	if resp.Message != "no effect" {
		t.Fatalf("message = %q, want \"no effect\"", resp.Message)
	}
}

func TestPeerHandlerDialsOnlyWhenTripleUnknown(t *testing.T) {
	s := newTestState(t)

	var dialed []string
	s.Dial = func(host string, peerPort, clientPort int32) {
		dialed = append(dialed, host)
	}

	req := decode(t, `{"transaction_id":"3fae765c-6590-4915-8ae6-2293d19686ec","action":"peer","params":{"host":"10.0.0.9","peer_port":9000,"client_port":9001}}`)
	resp := Dispatch(s, req, proto.OnPeer, "peer-a")
	if resp.Message != "ok" {
		t.Fatalf("message = %q, want \"ok\"", resp.Message)
	}
	if len(dialed) != 1 {
		t.Fatalf("dial called %d time(s), want 1", len(dialed))
	}

	s.Peers.Insert(&table.Peer{ID: "peer-known", Host: "10.0.0.9", PeerPort: 9000, ClientPort: 9001, Stream: &capture{}})
	resp = Dispatch(s, req, proto.OnPeer, "peer-a")
	if resp.Message != "no effect" {
		t.Fatalf("message = %q, want \"no effect\" for an already-known triple", resp.Message)
	}
	if len(dialed) != 1 {
		t.Fatalf("dial should not be called again for a known triple, called %d time(s)", len(dialed))
	}
}
