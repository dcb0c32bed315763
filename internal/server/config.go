// Package server provides configuration helpers that define runtime defaults,
// validation, and heartbeat, rate-limiting and discovery parameters for the
// group chat hub.
package server

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/groupchat/internal/membership"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// HeartbeatConfig controls liveness detection. Timeout must exceed Interval.
type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DiscoveryConfig enables etcd registration when Endpoints is non-empty.
type DiscoveryConfig struct {
	Endpoints     []string
	ServerID      string
	AdvertiseAddr string
	LeaseTTL      int64
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	SendBufferSize int
	RateLimit      RateLimitConfig
	Heartbeat      HeartbeatConfig
	HostElection   string
	Discovery      DiscoveryConfig
	LogLevel       string
	LogFormat      string
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: membership.DefaultHeartbeatInterval,
			Timeout:  membership.DefaultHeartbeatTimeout,
		},
		HostElection: membership.PolicyEarliestJoined,
		Discovery: DiscoveryConfig{
			ServerID: "groupchat",
			LeaseTTL: 10,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Sanitize fills zero or invalid values with defaults and keeps the
// heartbeat timeout above the sweep interval.
func (cfg Config) Sanitize() Config {
	defaults := defaultConfig()

	cfg.Port = normalizePort(cfg.Port)

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	if cfg.Heartbeat.Interval <= 0 {
		cfg.Heartbeat.Interval = defaults.Heartbeat.Interval
	}

	if cfg.Heartbeat.Timeout <= cfg.Heartbeat.Interval {
		cfg.Heartbeat.Timeout = cfg.Heartbeat.Interval + cfg.Heartbeat.Interval/2
	}

	if _, err := membership.PolicyByName(cfg.HostElection); err != nil {
		cfg.HostElection = defaults.HostElection
	}

	if cfg.Discovery.ServerID == "" {
		cfg.Discovery.ServerID = defaults.Discovery.ServerID
	}

	if cfg.Discovery.LeaseTTL <= 0 {
		cfg.Discovery.LeaseTTL = defaults.Discovery.LeaseTTL
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = defaults.LogFormat
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.Discovery.Endpoints = append([]string(nil), cfg.Discovery.Endpoints...)
	return cfg
}

// normalizePort accepts "8080", ":8080" or "host:8080".
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":8080"
	}
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadDotEnv loads variables from a .env file without overriding the ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	// Load SERVER_PORT
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = normalizePort(port)
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	// Load MAX_MESSAGE_SIZE
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	// Load RATE_LIMIT_BURST
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	// Load RATE_LIMIT_REFILL_INTERVAL
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	if interval := os.Getenv("HEARTBEAT_INTERVAL"); interval != "" {
		cfg.Heartbeat.Interval = parseDuration(interval, cfg.Heartbeat.Interval)
	}

	if timeout := os.Getenv("HEARTBEAT_TIMEOUT"); timeout != "" {
		cfg.Heartbeat.Timeout = parseDuration(timeout, cfg.Heartbeat.Timeout)
	}

	if policy := os.Getenv("HOST_ELECTION"); policy != "" {
		cfg.HostElection = strings.TrimSpace(policy)
	}

	if endpoints := os.Getenv("ETCD_ENDPOINTS"); endpoints != "" {
		cfg.Discovery.Endpoints = parseList(endpoints)
	}

	if id := os.Getenv("SERVER_ID"); id != "" {
		cfg.Discovery.ServerID = id
	}

	if addr := os.Getenv("ADVERTISE_ADDR"); addr != "" {
		cfg.Discovery.AdvertiseAddr = addr
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	return &cfg
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go durations ("1500ms", "20s") or whole seconds ("20").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
