// Package config loads and exposes meshd's runtime configuration.
package config

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/spf13/viper"
)

// Config is the configuration record described in spec.md §3. The port
// fields and Registered are written once during startup/handshake and read
// from every worker goroutine afterwards, so they're held as atomics rather
// than plain fields.
type Config struct {
	LocalAddress string

	peerPort   atomic.Int32
	clientPort atomic.Int32

	IsJoining        bool
	RemoteAddress    string
	RemotePeerPort   int
	RemoteClientPort int

	WorkerCount int

	// MaxJoinAttempts bounds the joining node's dial-retry loop (spec.md §9
	// Open Question (ii)). Zero means unbounded, matching the source.
	MaxJoinAttempts int

	DiagnosticLoopEnabled bool

	registered atomic.Bool
}

// PeerPort returns the locally bound peer-listener port.
func (c *Config) PeerPort() int32 { return c.peerPort.Load() }

// SetPeerPort records the port the peer listener actually bound (relevant
// when the configured port was 0 and the OS assigned one).
func (c *Config) SetPeerPort(port int32) { c.peerPort.Store(port) }

// ClientPort returns the locally bound client-listener port.
func (c *Config) ClientPort() int32 { return c.clientPort.Load() }

// SetClientPort records the port the client listener actually bound.
func (c *Config) SetClientPort(port int32) { c.clientPort.Store(port) }

// Registered reports whether this node has already advertised its ports to
// at least one peer.
func (c *Config) Registered() bool { return c.registered.Load() }

// SetRegistered flips the registered flag. Set to true immediately after
// the joining node sends its first `register` frame (spec.md §4.6).
func (c *Config) SetRegistered(v bool) { c.registered.Store(v) }

// Load reads a viper-compatible config file (mirroring the teacher's
// `app/config.Read`) and builds a Config from it.
func Load(file string) (*Config, error) {
	viper.SetConfigFile(file)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", file, err)
	}

	cfg := &Config{
		LocalAddress:          getString("LocalAddress", "0.0.0.0"),
		IsJoining:             viper.GetBool("IsJoining"),
		RemoteAddress:         viper.GetString("RemoteAddress"),
		RemotePeerPort:        viper.GetInt("RemotePeerPort"),
		RemoteClientPort:      viper.GetInt("RemoteClientPort"),
		WorkerCount:           getWorkerCount(),
		MaxJoinAttempts:       viper.GetInt("MaxJoinAttempts"),
		DiagnosticLoopEnabled: viper.GetBool("DiagnosticLoopEnabled"),
	}
	cfg.SetPeerPort(int32(viper.GetInt("PeerPort")))
	cfg.SetClientPort(int32(viper.GetInt("ClientPort")))

	return cfg, nil
}

func getString(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

// getWorkerCount mirrors the teacher's "parse or log and fall back"
// pattern from app/config.GetConcurrencyFactor, except the default mandated
// by spec.md §5 is a single worker, not a CPU-scaled pool.
func getWorkerCount() int {
	n := viper.GetInt("WorkerCount")
	if n <= 0 {
		log.Printf("[❗️] Bad or missing worker count, using a single worker\n")
		return 1
	}
	return n
}
