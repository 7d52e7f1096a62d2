package mesh

import (
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/stream"
	"github.com/nodemesh/meshd/internal/table"
)

// joinRetryBackoff is the fixed delay between dial attempts (spec.md §7:
// "the joining side retries with a 3-second backoff").
const joinRetryBackoff = 3 * time.Second

// dialWithRetry opens an outgoing peer connection to (host, peerPort),
// retrying on failure up to Config.MaxJoinAttempts times (0 = unbounded,
// spec.md §9 Open Question (ii)). On success it immediately sends the
// register frame (spec.md §4.7) and runs the stream until it closes.
func (n *Node) dialWithRetry(host string, peerPort, clientPort int32) {
	url := fmt.Sprintf("ws://%s:%d/", host, peerPort)
	maxAttempts := n.State.Config.MaxJoinAttempts

	for attempt := 1; ; attempt++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			log.Printf("[❗️] Dial attempt %d to %s failed : %s\n", attempt, url, err.Error())
			if maxAttempts > 0 && attempt >= maxAttempts {
				log.Printf("[❗️] Giving up dialing %s after %d attempt(s)\n", url, attempt)
				return
			}
			time.Sleep(joinRetryBackoff)
			continue
		}

		n.attach(conn, host, peerPort, clientPort)
		return
	}
}

// attach wraps a freshly dialed connection in a Stream, inserts its Peer
// record (idempotent by triple, spec.md §9 Open Question (iii)), sends
// the register handshake frame, and runs the stream to completion.
func (n *Node) attach(conn *websocket.Conn, host string, peerPort, clientPort int32) {
	peerID := meshid.New()
	str := stream.New(conn, stream.PeerStream, proto.OnPeer, peerID, n.State)

	peerRec := &table.Peer{
		ID:         peerID,
		Host:       host,
		PeerPort:   peerPort,
		ClientPort: clientPort,
		Direction:  table.Remote,
		Stream:     str,
		RemoteAddr: conn.RemoteAddr().String(),
	}

	if !n.State.Peers.Insert(peerRec) {
		log.Printf("[🙃] Duplicate peer attachment to %s:%d/%d, dropping\n", host, peerPort, clientPort)
		conn.Close()
		return
	}

	cfg := n.State.Config
	wasRegistered := cfg.Registered()
	frame, err := proto.EncodeFrame(meshid.New(), "register", map[string]interface{}{
		"sessions_port": cfg.PeerPort(),
		"clients_port":  cfg.ClientPort(),
		"registered":    wasRegistered,
	})
	if err == nil {
		str.Enqueue(frame)
	}
	cfg.SetRegistered(true)

	log.Printf("🤩 Joined peer %s:%d/%d as %s\n", host, peerPort, clientPort, peerID)
	str.Run()
	log.Printf("🙂 Peer attachment to %s:%d/%d closed\n", host, peerPort, clientPort)
}
