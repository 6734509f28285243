package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
)

// Default configuration values.
const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"

	DefaultNegotiationTimeout = 30 * time.Second
)

// Config holds client configuration.
type Config struct {
	// ServerURL is the websocket endpoint of the signaling server.
	ServerURL string

	// ICE servers for the media transport.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to relay candidates. Requires a TURN server.
	ForceRelay bool

	// NegotiationTimeout bounds how long a peer link may negotiate.
	NegotiationTimeout time.Duration
}

// Options carry CLI flag overrides into Load.
type Options struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	pick := func(flag, env, def string) string {
		if flag != "" {
			return flag
		}
		if v := os.Getenv(env); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		ServerURL:          pick(opts.Server, "ROOMCALL_SERVER", DefaultServerURL),
		STUNServer:         pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:         pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:           pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:           pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:         opts.ForceRelay,
		NegotiationTimeout: DefaultNegotiationTimeout,
	}

	if v := os.Getenv("NEGOTIATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid NEGOTIATION_TIMEOUT: %w", err)
		}
		cfg.NegotiationTimeout = d
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// ICEServers assembles the pion ICE server list.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: []string{c.STUNServer}}}

	if c.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{
				fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
				fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
			},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	return servers
}
