// Package config provides configuration loading and validation for the
// range coordinator.
//
// Configuration file: /etc/rangecoord/config.yaml (default)
// Schema version: 1
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (ports, timeouts, capacities).
//   - Invalid config on startup: the coordinator refuses to start
//     (fatal error).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the coordinator.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this coordinator instance in ledger entries.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	// Server configures the player-facing TCP listener and match pacing.
	Server ServerConfig `yaml:"server"`

	// RateLimit configures the per-connection inbound message budget.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Storage configures the BoltDB persistent ledger.
	Storage StorageConfig `yaml:"storage"`

	// Observability configures metrics and logging.
	Observability ObservabilityConfig `yaml:"observability"`

	// Operator configures the operator override Unix socket.
	Operator OperatorConfig `yaml:"operator"`
}

// ServerConfig holds the coordinator's network and match-pacing
// parameters.
type ServerConfig struct {
	// ListenAddr is the player-facing TCP listen address.
	// Default: 0.0.0.0:9000.
	ListenAddr string `yaml:"listen_addr"`

	// BasePort is the first P2P listening port a player is assigned.
	// A player's P2P port is BasePort + their registry index.
	// Default: 10001.
	BasePort int `yaml:"base_port"`

	// MinPlayers is the minimum roster size required to start a match.
	// Default: 2.
	MinPlayers int `yaml:"min_players"`

	// PreparationDuration is how long each round's preparation phase
	// lasts. Default: 10s.
	PreparationDuration time.Duration `yaml:"preparation_duration"`

	// PlayingDuration is how long each round's playing phase lasts.
	// Default: 90s.
	PlayingDuration time.Duration `yaml:"playing_duration"`

	// RoundEndDelay is how long the server pauses after scoring a round
	// before advancing. Default: 5s.
	RoundEndDelay time.Duration `yaml:"round_end_delay"`

	// GameStartDelay is how long the server waits after GAME_START before
	// round 1's preparation phase begins. Default: 3s.
	GameStartDelay time.Duration `yaml:"game_start_delay"`
}

// RateLimitConfig holds the per-connection token bucket parameters.
type RateLimitConfig struct {
	// Capacity is the maximum number of tokens. Default: 40.
	Capacity int `yaml:"capacity"`

	// RefillPeriod is the interval at which the bucket is reset to full
	// capacity. Default: 2s.
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// StorageConfig holds BoltDB parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file.
	// Default: /var/lib/rangecoord/rangecoord.db.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the ledger retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`

	// PacketLogEnabled turns on the in-memory ring of recently dispatched
	// protocol messages surfaced via the admin status operation's
	// recent_messages field. Off by default: it duplicates what the
	// Prometheus counters already cover for routine use. Default: false.
	PacketLogEnabled bool `yaml:"packet_log_enabled"`
}

// OperatorConfig holds operator override parameters.
// The operator socket lets a privileged admin issue start/stop/status
// commands without a TCP connection as a player.
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path for the operator surface.
	// Permissions: 0600. Default: /run/rangecoord/operator.sock.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active.
	// Default: true.
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Server: ServerConfig{
			ListenAddr:          "0.0.0.0:9000",
			BasePort:            10001,
			MinPlayers:          2,
			PreparationDuration: 10 * time.Second,
			PlayingDuration:     90 * time.Second,
			RoundEndDelay:       5 * time.Second,
			GameStartDelay:      3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Capacity:     40,
			RefillPeriod: 2 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/rangecoord/operator.sock",
		},
	}
}

// DefaultDBPath mirrors the storage package constant for use in config
// defaults.
const DefaultDBPath = "/var/lib/rangecoord/rangecoord.db"

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr must not be empty")
	}
	if cfg.Server.BasePort < 1 || cfg.Server.BasePort > 65000 {
		errs = append(errs, fmt.Sprintf("server.base_port must be in [1, 65000], got %d", cfg.Server.BasePort))
	}
	if cfg.Server.MinPlayers < 2 {
		errs = append(errs, fmt.Sprintf("server.min_players must be >= 2, got %d", cfg.Server.MinPlayers))
	}
	if cfg.Server.PreparationDuration < time.Second {
		errs = append(errs, fmt.Sprintf("server.preparation_duration must be >= 1s, got %s", cfg.Server.PreparationDuration))
	}
	if cfg.Server.PlayingDuration < time.Second {
		errs = append(errs, fmt.Sprintf("server.playing_duration must be >= 1s, got %s", cfg.Server.PlayingDuration))
	}
	if cfg.RateLimit.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.capacity must be >= 1, got %d", cfg.RateLimit.Capacity))
	}
	if cfg.RateLimit.RefillPeriod < 100*time.Millisecond {
		errs = append(errs, fmt.Sprintf("rate_limit.refill_period must be >= 100ms, got %s", cfg.RateLimit.RefillPeriod))
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s",
			joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
