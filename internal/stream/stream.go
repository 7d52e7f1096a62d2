// Package stream implements the per-connection state machine of spec.md
// §4.7: one Stream per accepted or dialed websocket connection, driving
// reads into the kernel and writes out of a single-writer outbound queue.
package stream

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodemesh/meshd/internal/kernel"
	"github.com/nodemesh/meshd/internal/proto"
	"github.com/nodemesh/meshd/internal/state"
)

// Kind tags which table a Stream's owning record lives in.
type Kind int

const (
	ClientStream Kind = iota
	PeerStream
)

// outboundCapacity bounds the per-stream queue (spec.md §5's backpressure
// note: "the implementation SHOULD bound this queue and, on overflow,
// close the stream with an error"). Test scenarios never approach it.
const outboundCapacity = 4096

// Stream owns one framed duplex connection, its outbound queue, and the
// read/write goroutine pair that drive it (spec.md §2/§4.7).
type Stream struct {
	conn  *websocket.Conn
	state *state.State
	kind  Kind
	ctx   proto.Context
	id    string // client id or peer id; assigned before Run is called.

	outbound  chan []byte
	closeOnce sync.Once
}

// New builds a Stream bound to an already-open connection. id is the
// client or peer id the owning table record was inserted under — it must
// be known before Run starts, since the kernel needs it on every dispatch.
func New(conn *websocket.Conn, kind Kind, ctx proto.Context, id string, s *state.State) *Stream {
	return &Stream{
		conn:     conn,
		state:    s,
		kind:     kind,
		ctx:      ctx,
		id:       id,
		outbound: make(chan []byte, outboundCapacity),
	}
}

// ID returns the client or peer id this stream is registered under.
func (s *Stream) ID() string { return s.id }

// Enqueue implements table.Outbound: push a serialized frame onto the
// single-writer outbound queue. Enqueue returns immediately; the write
// pump goroutine drains the queue (spec.md §4.7).
func (s *Stream) Enqueue(frame []byte) error {
	select {
	case s.outbound <- frame:
		return nil
	default:
		s.conn.Close()
		return fmt.Errorf("stream %s: outbound queue full", s.id)
	}
}

// Run drives the stream until its connection closes: starts the write
// pump, then loops reads on the calling goroutine until an error tears
// the stream down. Callers should invoke Run in its own goroutine.
func (s *Stream) Run() {
	go s.writePump()
	s.readLoop()
}

// readLoop issues one read at a time, submits the decoded frame to the
// shared worker pool, and blocks until that job completes before issuing
// the next read — this is what gives per-stream ordering "for free" while
// the pool still bounds total concurrent kernel invocations (spec.md §5).
func (s *Stream) readLoop() {
	defer s.teardown()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		done := make(chan struct{})
		s.state.Pool.Submit(func() {
			defer close(done)
			if mt != websocket.TextMessage {
				s.sendAck(proto.DecodeFailureResponse(time.Now().UnixNano()))
				return
			}
			s.handleFrame(data)
		})
		<-done
	}
}

func (s *Stream) handleFrame(data []byte) {
	req, err := proto.DecodeRequest(data)
	if err != nil {
		resp := proto.DecodeFailureResponse(time.Now().UnixNano())
		s.sendAck(resp)
		return
	}

	resp := kernel.Dispatch(s.state, req, s.ctx, s.id)
	if resp.Ack {
		return
	}
	s.sendAck(resp)
}

func (s *Stream) sendAck(resp *proto.Response) {
	frame, err := resp.MarshalFrame()
	if err != nil {
		log.Printf("[❗️] Failed to marshal ack frame : %s\n", err.Error())
		return
	}
	if err := s.Enqueue(frame); err != nil {
		log.Printf("[❗️] Failed to enqueue ack frame : %s\n", err.Error())
	}
}

// writePump drains the outbound queue one frame at a time until it's
// closed or a write fails, at which point it tears the connection down
// (spec.md §4.7's single-writer discipline).
func (s *Stream) writePump() {
	for frame := range s.outbound {
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.conn.Close()
			return
		}
	}
}

// teardown removes this stream's owning record from its table, cascading
// subscription removal, and tears down the connection and outbound queue.
// Idempotent: a read error and a write error racing to tear down the same
// stream only run this once (spec.md §4.7: "on read error of closed kind:
// transition to closed, remove self from owning table, cascade
// subscription removal").
func (s *Stream) teardown() {
	s.closeOnce.Do(func() {
		close(s.outbound)
		s.conn.Close()

		switch s.kind {
		case PeerStream:
			if p, clients, subs := s.state.RemovePeer(s.id); p != nil {
				log.Printf("🙂 Dropped peer %s, cascaded %d client(s), %d subscription(s)\n", s.id, clients, subs)
			}
		case ClientStream:
			if c, subs := s.state.RemoveClient(s.id); c != nil {
				log.Printf("🙂 Dropped client %s, cascaded %d subscription(s)\n", s.id, subs)
			}
		}
	})
}
