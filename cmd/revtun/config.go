package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iprw/revtun/pkg/wire"
)

// Role identifies which side of the tunnel this process runs.
type Role string

const (
	RoleInside  Role = "iran"   // pool producer, co-located with backends
	RoleOutside Role = "europe" // pool consumer, publicly reachable
)

// Config is the tunnel's full runtime configuration, assembled from the
// process environment the way a supervisor would hand it to the core.
type Config struct {
	Role Role
	Key  string

	// Outside endpoint's public address (IRAN_IP); read and required only
	// on the Inside endpoint, which dials it. The Outside endpoint listens
	// on all interfaces and leaves this empty.
	OutsideAddr string

	BridgePort int
	SyncPort   int

	AutoSync     bool
	ManualPorts  []int
	ProcessFilter string

	SyncInterval   time.Duration
	PoolSize       int
	PoolPutTimeout time.Duration
	PoolGetTimeout time.Duration
	FrameTimeout   time.Duration

	// StatsInterval is how often a condensed stats line is logged. Zero
	// disables periodic logging entirely.
	StatsInterval time.Duration
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parsePort(text string) (int, error) {
	text = strings.TrimSpace(text)
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", text)
	}
	if !wire.ValidPort(n) {
		return 0, fmt.Errorf("port %d out of range [1, 65535]", n)
	}
	return n, nil
}

func parseManualPorts(raw string) []int {
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := parsePort(part)
		if err != nil {
			continue
		}
		ports = append(ports, p)
	}
	return ports
}

func parseDuration(key, def string) time.Duration {
	v := envOr(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func parseInt(key string, def int) int {
	v := envOr(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// LoadConfig reads the tunnel configuration from the process environment.
// It returns an error describing exactly which required variable is
// missing or invalid; a fatal configuration error should stop the process
// before any socket is opened.
func LoadConfig() (*Config, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("MODE")))
	role := Role(mode)
	if role != RoleInside && role != RoleOutside {
		return nil, fmt.Errorf("MODE must be %q or %q, got %q", RoleInside, RoleOutside, mode)
	}

	key := os.Getenv("KEY")
	if len(key) < 8 {
		return nil, fmt.Errorf("KEY is required and must be at least 8 characters")
	}

	bridgePort, err := parsePort(os.Getenv("BRIDGE_PORT"))
	if err != nil {
		return nil, fmt.Errorf("BRIDGE_PORT: %w", err)
	}
	syncPort, err := parsePort(os.Getenv("SYNC_PORT"))
	if err != nil {
		return nil, fmt.Errorf("SYNC_PORT: %w", err)
	}
	if bridgePort == syncPort {
		return nil, fmt.Errorf("BRIDGE_PORT and SYNC_PORT must be distinct")
	}

	cfg := &Config{
		Role:           role,
		Key:            key,
		BridgePort:     bridgePort,
		SyncPort:       syncPort,
		ProcessFilter:  envOr("PROCESS_FILTER", "xray"),
		SyncInterval:   parseDuration("SYNC_INTERVAL", "5s"),
		PoolSize:       parseInt("POOL_SIZE", 300),
		PoolPutTimeout: parseDuration("POOL_PUT_TIMEOUT", "5s"),
		PoolGetTimeout: parseDuration("POOL_GET_TIMEOUT", "5s"),
		FrameTimeout:   parseDuration("FRAME_TIMEOUT", "30s"),
		StatsInterval:  parseDuration("STATS_INTERVAL", "30s"),
	}

	if role == RoleInside {
		// IRAN_IP is, despite the name, the Outside endpoint's public
		// address — required on the Inside endpoint, the role that opens
		// outbound bridge and sync connections to it.
		cfg.OutsideAddr = strings.TrimSpace(os.Getenv("IRAN_IP"))
		if cfg.OutsideAddr == "" {
			return nil, fmt.Errorf("IRAN_IP is required in %s mode", RoleInside)
		}
		cfg.AutoSync = parseBool(envOr("AUTO_SYNC", "y"))
		cfg.ManualPorts = parseManualPorts(os.Getenv("MANUAL_PORTS"))
		if !cfg.AutoSync && len(cfg.ManualPorts) == 0 {
			return nil, fmt.Errorf("MANUAL_PORTS is required when AUTO_SYNC is off")
		}
	}

	return cfg, nil
}
