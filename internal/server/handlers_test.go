package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/internal/testhelpers"
)

// TestHealthHandler verifies both health routes respond with the status text.
func TestHealthHandler(t *testing.T) {
	env := startHub(t, nil)

	for _, path := range []string{"/", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, http.MethodGet, env.http.URL+path)
			defer func() { _ = resp.Body.Close() }()

			testhelpers.AssertStatusCode(t, resp, http.StatusOK)
			testhelpers.AssertContentType(t, resp, "text/plain")

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(body) != "GroupChat server is running!" {
				t.Errorf("body = %q", body)
			}
		})
	}
}

// TestWebSocketHandlerMethodValidation verifies only GET may upgrade.
func TestWebSocketHandlerMethodValidation(t *testing.T) {
	env := startHub(t, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, method, env.http.URL+"/ws")
			defer func() { _ = resp.Body.Close() }()
			testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
		})
	}
}

// TestWebSocketHandlerGETWithoutUpgrade verifies a plain GET is refused by the upgrader.
func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	env := startHub(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.http.URL+"/ws")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestWebSocketOriginValidation(t *testing.T) {
	env := startHub(t, nil)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"allowed origin", testhelpers.TestOrigin, true},
		{"no origin header", "", true},
		{"foreign origin", "http://evil.example.com", false},
		{"malformed origin", "not-a-url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := testhelpers.ConnectWebSocketWithOrigin(env.wsURL, tt.origin)
			if conn != nil {
				defer func() { _ = conn.Close() }()
			}
			if tt.allowed && err != nil {
				t.Errorf("dial rejected: %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("dial succeeded for a disallowed origin")
			}
		})
	}
}

func TestMembersHandler(t *testing.T) {
	env := startHub(t, nil)

	alice := testhelpers.Join(t, env.wsURL, "alice")
	defer func() { _ = alice.Close() }()
	bob := testhelpers.Join(t, env.wsURL, "bob")
	defer func() { _ = bob.Close() }()

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.http.URL+"/members")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")

	var body struct {
		Count   int    `json:"count"`
		Host    string `json:"host"`
		Members []struct {
			ID     string `json:"id"`
			IsHost bool   `json:"is_host"`
		} `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.Count != 2 || body.Host != "alice" {
		t.Errorf("count = %d host = %q, want 2 alice", body.Count, body.Host)
	}
	if len(body.Members) != 2 || body.Members[0].ID != "alice" || body.Members[1].ID != "bob" {
		t.Errorf("members = %+v, want alice then bob", body.Members)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startHub(t, nil)

	alice := testhelpers.Join(t, env.wsURL, "alice")
	defer func() { _ = alice.Close() }()

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.http.URL+"/metrics")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, name := range []string{"groupchat_members 1", "groupchat_connections", "groupchat_messages_routed_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

// TestCreateServer verifies the production timeouts are applied.
func TestCreateServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := server.CreateServer(":9999", handler)

	if srv.Addr != ":9999" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second {
		t.Errorf("read/write timeouts = %v/%v, want 15s", srv.ReadTimeout, srv.WriteTimeout)
	}
	if srv.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", srv.IdleTimeout)
	}
}

// TestHealthHandlerUnit exercises the handler without a listener.
func TestHealthHandlerUnit(t *testing.T) {
	rec := httptest.NewRecorder()
	server.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain" {
		t.Errorf("content type = %q", got)
	}
}
