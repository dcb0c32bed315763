package server_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/internal/testhelpers"
)

// testEnv is a running hub behind an httptest server.
type testEnv struct {
	hub   *server.Hub
	http  *httptest.Server
	wsURL string
}

// startHub runs a fresh hub for one test. customize may adjust the default
// configuration before the hub is built.
func startHub(t *testing.T, customize func(cfg *server.Config)) *testEnv {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	if customize != nil {
		customize(cfg)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	hub, err := server.NewHub(cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		if err := hub.Shutdown(5 * time.Second); err != nil {
			t.Errorf("hub shutdown: %v", err)
		}
	})

	return &testEnv{
		hub:   hub,
		http:  ts,
		wsURL: testhelpers.WebSocketURL(ts.URL),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testhelpers.DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
