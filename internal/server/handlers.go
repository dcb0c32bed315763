// Package server exposes HTTP handlers for WebSocket upgrades, health checks
// and the member snapshot.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/membership"
	"github.com/Tyrowin/groupchat/internal/protocol"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection and hands the new
// Connection to the hub, which launches its pumps. The connection becomes a
// member only after its first message is a valid JOIN.
func (h *Hub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := NewConnection(conn, h, r.RemoteAddr)
	if !h.admit(c) {
		h.logger.Debug("hub shutting down; refusing connection", zap.String("remote", r.RemoteAddr))
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GroupChat server is running!")
}

// membersResponse is the body served by MembersHandler.
type membersResponse struct {
	Count   int                   `json:"count"`
	Host    string                `json:"host,omitempty"`
	Members []protocol.MemberInfo `json:"members"`
}

// MembersHandler serves the current membership in join order as JSON.
func (h *Hub) MembersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.registry.Snapshot()
	resp := membersResponse{
		Count:   len(snapshot),
		Members: membership.Infos(snapshot),
	}
	if host, ok := h.registry.Host(); ok {
		resp.Host = host.ID
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("error writing members response", zap.Error(err))
	}
}
