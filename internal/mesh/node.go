// Package mesh wires together State, the two Listeners, and the peer
// join/sync orchestration into one running Node (spec.md §2).
package mesh

import (
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nodemesh/meshd/internal/config"
	"github.com/nodemesh/meshd/internal/meshid"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/stream"
	"github.com/nodemesh/meshd/internal/table"
)

// Node is a single mesh process: one State, one peer listener, one client
// listener (spec.md §2).
type Node struct {
	State *state.State

	peerUpgrader   websocket.Upgrader
	clientUpgrader websocket.Upgrader

	peerListener   net.Listener
	clientListener net.Listener
}

// New builds a Node around a freshly constructed State, wiring the dial
// and client-lifecycle hooks State needs but cannot perform itself
// (spec.md §5: dial is asynchronous; handlers never do I/O).
func New(cfg *config.Config) *Node {
	n := &Node{State: state.New(cfg)}

	n.State.Dial = func(host string, peerPort, clientPort int32) {
		go n.dialWithRetry(host, peerPort, clientPort)
	}
	n.State.OnClientJoined = func(clientID string) {
		n.announce("client_join", map[string]interface{}{"client_id": clientID})
	}
	n.State.OnClientLeft = func(clientID string) {
		n.announce("client_leave", map[string]interface{}{"client_id": clientID})
	}

	return n
}

// announce fans a connection-lifecycle event out to every known peer with
// a fresh transaction id per recipient (spec.md §4.6's live-convergence
// companion to sync).
func (n *Node) announce(action string, params map[string]interface{}) {
	for _, p := range n.State.Peers.All() {
		frame, err := proto.EncodeFrame(meshid.New(), action, params)
		if err != nil {
			continue
		}
		p.Stream.Enqueue(frame)
	}
}

// Start binds both listeners, reading back the actual bound ports into
// Config (spec.md §6: "when bound to port 0 the OS assigns; the chosen
// port is read back into the configuration atomically"), then begins
// accepting. If the node is configured to join, Start also kicks off the
// initial dial.
func (n *Node) Start() error {
	cfg := n.State.Config

	peerLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.LocalAddress, cfg.PeerPort()))
	if err != nil {
		return fmt.Errorf("binding peer listener: %w", err)
	}
	n.peerListener = peerLn
	cfg.SetPeerPort(int32(peerLn.Addr().(*net.TCPAddr).Port))

	clientLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.LocalAddress, cfg.ClientPort()))
	if err != nil {
		peerLn.Close()
		return fmt.Errorf("binding client listener: %w", err)
	}
	n.clientListener = clientLn
	cfg.SetClientPort(int32(clientLn.Addr().(*net.TCPAddr).Port))

	peerMux := http.NewServeMux()
	peerMux.HandleFunc("/", n.handlePeerAccept)
	go func() {
		if err := http.Serve(peerLn, peerMux); err != nil {
			log.Printf("[❗️] Peer listener stopped : %s\n", err.Error())
		}
	}()

	clientMux := http.NewServeMux()
	clientMux.HandleFunc("/", n.handleClientAccept)
	go func() {
		if err := http.Serve(clientLn, clientMux); err != nil {
			log.Printf("[❗️] Client listener stopped : %s\n", err.Error())
		}
	}()

	log.Printf("🚀 Listening for peers on %d, clients on %d\n", cfg.PeerPort(), cfg.ClientPort())

	if cfg.IsJoining {
		go n.dialWithRetry(cfg.RemoteAddress, int32(cfg.RemotePeerPort), int32(cfg.RemoteClientPort))
	}

	return nil
}

// Stop closes both listeners and the worker pool (spec.md §5 Node::stop:
// "pending enqueued frames are dropped").
func (n *Node) Stop() {
	if n.peerListener != nil {
		n.peerListener.Close()
	}
	if n.clientListener != nil {
		n.clientListener.Close()
	}
	n.State.Stop()
}

func (n *Node) handlePeerAccept(w http.ResponseWriter, r *http.Request) {
	conn, err := n.peerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[❗️] Peer handshake failed : %s\n", err.Error())
		return
	}

	peerID := meshid.New()
	str := stream.New(conn, stream.PeerStream, proto.OnPeer, peerID, n.State)

	n.State.Peers.Insert(&table.Peer{
		ID:         peerID,
		Host:       hostOf(conn.RemoteAddr().String()),
		Direction:  table.Local,
		Stream:     str,
		RemoteAddr: conn.RemoteAddr().String(),
	})

	log.Printf("🤩 Accepted peer stream : %s\n", conn.RemoteAddr())
	str.Run()
	log.Printf("🙂 Peer stream closed : %s\n", conn.RemoteAddr())
}

func (n *Node) handleClientAccept(w http.ResponseWriter, r *http.Request) {
	conn, err := n.clientUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[❗️] Client handshake failed : %s\n", err.Error())
		return
	}

	clientID := meshid.New()
	str := stream.New(conn, stream.ClientStream, proto.OnClient, clientID, n.State)

	n.State.Clients.Insert(&table.Client{
		ID:         clientID,
		PeerID:     n.State.ID,
		Stream:     str,
		RemoteAddr: conn.RemoteAddr().String(),
	})

	// Synchronous welcome, per spec.md §4.8, sent before the first read.
	if frame, err := proto.EncodeWelcome(meshid.New(), clientID); err == nil {
		str.Enqueue(frame)
	}
	if n.State.OnClientJoined != nil {
		n.State.OnClientJoined(clientID)
	}

	log.Printf("🤩 Accepted client stream, assigned %s : %s\n", clientID, conn.RemoteAddr())
	str.Run()
	log.Printf("🙂 Client stream closed : %s\n", conn.RemoteAddr())
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
