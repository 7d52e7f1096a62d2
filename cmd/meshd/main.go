package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nodemesh/meshd/internal/config"
	"github.com/nodemesh/meshd/internal/mesh"
	"github.com/nodemesh/meshd/internal/repl"
)

func main() {
	log.Printf("[😌] meshd - distributed real-time messaging mesh\n")

	abs, err := filepath.Abs(configFile())
	if err != nil {
		log.Printf("[❗️] Failed to find absolute path of config file : %s\n", err.Error())
		os.Exit(1)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		log.Printf("[❗️] Failed to load config : %s\n", err.Error())
		os.Exit(1)
	}

	node := mesh.New(cfg)
	if err := node.Start(); err != nil {
		log.Printf("[❗️] Failed to start node : %s\n", err.Error())
		os.Exit(1)
	}

	if cfg.DiagnosticLoopEnabled {
		go repl.Run(node.State, os.Stdin)
	}

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, syscall.SIGTERM, syscall.SIGINT)

	started := time.Now().UTC()
	<-interruptChan

	// Giving in-flight handler jobs 3 seconds before forcing shutdown.
	done := make(chan struct{})
	go func() {
		node.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}

	log.Printf("\n[✅] Gracefully shut down `meshd` after %s\n", time.Now().UTC().Sub(started))
}

func configFile() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return ".env"
}
