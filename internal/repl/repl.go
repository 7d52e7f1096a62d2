// Package repl implements the diagnostic stdin loop of spec.md §6: not
// part of the wire protocol, an external collaborator for operators.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/nodemesh/meshd/internal/state"
)

// Run reads newline-delimited commands from r until "exit" or EOF.
// "dump" prints peer/client/subscription counts and ids. Blank lines are
// skipped; any other line gets a fixed "unrecognized command" hint on
// stdout (spec.md §6).
func Run(s *state.State, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "dump":
			dump(s)
		case "exit":
			return
		case "":
			continue
		default:
			fmt.Println("🤷 unrecognized command, try 'dump' or 'exit'")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[❗️] Diagnostic loop read error : %s\n", err.Error())
	}
}

func dump(s *state.State) {
	peers := s.Peers.All()
	clients := s.Clients.All()
	subs := s.Subscriptions.All()

	fmt.Printf("peers (%d):\n", len(peers))
	for _, p := range peers {
		fmt.Printf("  %s  host=%s registered=%v\n", p.ID, p.Host, p.Registered())
	}

	fmt.Printf("clients (%d):\n", len(clients))
	for _, c := range clients {
		fmt.Printf("  %s  peer_id=%s\n", c.ID, c.PeerID)
	}

	fmt.Printf("subscriptions (%d):\n", len(subs))
	for _, sub := range subs {
		fmt.Printf("  peer=%s client=%s channel=%s\n", sub.PeerID, sub.ClientID, sub.Channel)
	}
}
