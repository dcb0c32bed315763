package server

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/membership"
)

// TestNewConfig verifies the defaults.
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.Heartbeat.Interval != membership.DefaultHeartbeatInterval ||
		cfg.Heartbeat.Timeout != membership.DefaultHeartbeatTimeout {
		t.Errorf("Heartbeat = %+v", cfg.Heartbeat)
	}
	if cfg.HostElection != membership.PolicyEarliestJoined {
		t.Errorf("HostElection = %q", cfg.HostElection)
	}
	if len(cfg.Discovery.Endpoints) != 0 {
		t.Errorf("Discovery enabled by default: %v", cfg.Discovery.Endpoints)
	}
}

func TestConfigSanitize(t *testing.T) {
	cfg := Config{
		Port:         "9000",
		HostElection: "coin-flip",
		Heartbeat:    HeartbeatConfig{Interval: 10 * time.Second, Timeout: 5 * time.Second},
	}
	got := cfg.Sanitize()

	if got.Port != ":9000" {
		t.Errorf("Port = %q, want :9000", got.Port)
	}
	if got.MaxMessageSize != 4096 || got.SendBufferSize != 256 {
		t.Errorf("sizes = %d/%d, want defaults", got.MaxMessageSize, got.SendBufferSize)
	}
	if got.RateLimit.Burst != 5 || got.RateLimit.RefillInterval != time.Second {
		t.Errorf("RateLimit = %+v, want defaults", got.RateLimit)
	}
	if got.Heartbeat.Timeout != 15*time.Second {
		t.Errorf("Heartbeat.Timeout = %v, want 15s", got.Heartbeat.Timeout)
	}
	if got.HostElection != membership.PolicyEarliestJoined {
		t.Errorf("HostElection = %q", got.HostElection)
	}
	if got.LogLevel != "info" || got.LogFormat != "json" {
		t.Errorf("log = %s/%s", got.LogLevel, got.LogFormat)
	}
}

func TestConfigSanitizeCopiesSlices(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"http://a.example"}}
	got := cfg.Sanitize()
	got.AllowedOrigins[0] = "http://b.example"

	if cfg.AllowedOrigins[0] != "http://a.example" {
		t.Error("Sanitize shares the origins slice with its receiver")
	}
}

func TestNormalizePort(t *testing.T) {
	tests := map[string]string{
		"":               ":8080",
		"9090":           ":9090",
		":9090":          ":9090",
		"127.0.0.1:9090": "127.0.0.1:9090",
		" 7000 ":         ":7000",
	}
	for in, want := range tests {
		if got := normalizePort(in); got != want {
			t.Errorf("normalizePort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"20", 20 * time.Second},
		{"1500ms", 1500 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{"-3", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, ,http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("SEND_BUFFER_SIZE", "bogus")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("HEARTBEAT_TIMEOUT", "12")
	t.Setenv("HOST_ELECTION", "lowest-id")
	t.Setenv("ETCD_ENDPOINTS", "127.0.0.1:2379,127.0.0.1:22379")
	t.Setenv("SERVER_ID", "chat-a")
	t.Setenv("ADVERTISE_ADDR", "ws://chat-a:9001/ws")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg := NewConfigFromEnv()

	if cfg.Port != ":9001" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if want := []string{"http://a.example", "http://b.example"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
	if cfg.SendBufferSize != 256 {
		t.Errorf("SendBufferSize = %d, want default for invalid value", cfg.SendBufferSize)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Heartbeat.Interval != 5*time.Second || cfg.Heartbeat.Timeout != 12*time.Second {
		t.Errorf("Heartbeat = %+v", cfg.Heartbeat)
	}
	if cfg.HostElection != membership.PolicyLowestID {
		t.Errorf("HostElection = %q", cfg.HostElection)
	}
	if len(cfg.Discovery.Endpoints) != 2 || cfg.Discovery.ServerID != "chat-a" ||
		cfg.Discovery.AdvertiseAddr != "ws://chat-a:9001/ws" {
		t.Errorf("Discovery = %+v", cfg.Discovery)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "console" {
		t.Errorf("log = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("LoadDotEnv() error = %v, want nil", err)
		}
	})

	t.Run("does not override environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "SERVER_PORT=7000\nSERVER_ID=from-file\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("SERVER_PORT", "7100")
		// Registered so the variable is restored after the test.
		t.Setenv("SERVER_ID", "")
		if err := os.Unsetenv("SERVER_ID"); err != nil {
			t.Fatal(err)
		}

		if err := LoadDotEnv(path); err != nil {
			t.Fatalf("LoadDotEnv() error = %v", err)
		}

		cfg := NewConfigFromEnv()
		if cfg.Port != ":7100" {
			t.Errorf("Port = %q, want :7100", cfg.Port)
		}
		if cfg.Discovery.ServerID != "from-file" {
			t.Errorf("ServerID = %q, want from-file", cfg.Discovery.ServerID)
		}
	})
}
