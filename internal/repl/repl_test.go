package repl

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nodemesh/meshd/internal/config"
	"github.com/nodemesh/meshd/internal/state"
	"github.com/nodemesh/meshd/internal/table"
)

func newTestState(t *testing.T) *state.State {
	t.Helper()
	s := state.New(&config.Config{WorkerCount: 1})
	t.Cleanup(s.Stop)
	return s
}

func TestRunReturnsOnExit(t *testing.T) {
	s := newTestState(t)
	done := make(chan struct{})
	go func() {
		Run(s, strings.NewReader("exit\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after reading \"exit\"")
	}
}

func TestRunReturnsOnEOF(t *testing.T) {
	s := newTestState(t)
	done := make(chan struct{})
	go func() {
		Run(s, strings.NewReader(""))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on EOF")
	}
}

func TestRunIgnoresBlankLinesAndUnrecognizedCommands(t *testing.T) {
	s := newTestState(t)
	done := make(chan struct{})
	go func() {
		Run(s, strings.NewReader("\nfrobnicate\nexit\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not drain blank/unrecognized lines before exiting")
	}
}

func TestDumpPrintsCurrentMembership(t *testing.T) {
	s := newTestState(t)
	s.Peers.Insert(&table.Peer{ID: "peer-a", Host: "10.0.0.1"})
	s.Clients.Insert(&table.Client{ID: "c1", PeerID: "peer-a"})
	s.Subscriptions.Add(table.Subscription{PeerID: "peer-a", ClientID: "c1", Channel: "w"})

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %s", err)
	}
	os.Stdout = w

	done := make(chan struct{})
	go func() {
		Run(s, strings.NewReader("dump\nexit\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("reading captured stdout: %s", err)
	}
	out := buf.String()

	for _, want := range []string{"peers (1)", "peer-a", "clients (1)", "c1", "subscriptions (1)", "channel=w"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump output missing %q, got:\n%s", want, out)
		}
	}
}
