// Package testhelpers provides common utilities for exercising the group chat
// server over real WebSocket connections in tests.
//
// It provides functions for making HTTP requests, dialing the WebSocket
// endpoint, speaking the JSON wire protocol and asserting on what arrives, to
// reduce code duplication across package tests.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

// TestOrigin is the origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// DefaultTimeout bounds every read performed by these helpers.
const DefaultTimeout = 2 * time.Second

var codec protocol.JSONCodec

// WebSocketURL converts an httptest server URL into the chat endpoint URL.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header. An empty
// origin omits the header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Send encodes msg and writes it as a single text frame.
func Send(conn *websocket.Conn, msg protocol.Message) error {
	data, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// MustSend is Send that fails the test on error.
func MustSend(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	if err := Send(conn, msg); err != nil {
		t.Fatalf("Failed to send %s: %v", msg.Kind, err)
	}
}

// Receive reads and decodes the next message, waiting at most timeout.
func Receive(conn *websocket.Conn, timeout time.Duration) (protocol.Message, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Message{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	return codec.Decode(data)
}

// ExpectKind reads messages until one of the given kind arrives and returns
// it. Messages of other kinds are skipped.
func ExpectKind(t *testing.T, conn *websocket.Conn, kind protocol.Kind) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s", kind)
		}
		msg, err := Receive(conn, remaining)
		if err != nil {
			t.Fatalf("Failed waiting for %s: %v", kind, err)
		}
		if msg.Kind == kind {
			return msg
		}
	}
}

// ExpectMemberList waits for a MEMBER_LIST naming exactly ids, in order.
func ExpectMemberList(t *testing.T, conn *websocket.Conn, ids ...string) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		msg := ExpectKind(t, conn, protocol.KindMemberList)
		if sameIDs(msg.Members, ids) {
			return msg
		}
	}
	t.Fatalf("Timed out waiting for member list %v", ids)
	return protocol.Message{}
}

func sameIDs(members []protocol.MemberInfo, ids []string) bool {
	if len(members) != len(ids) {
		return false
	}
	for i, m := range members {
		if m.ID != ids[i] {
			return false
		}
	}
	return true
}

// ExpectNoMessage asserts that nothing of the given kinds arrives within
// wait. Other kinds are ignored.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration, kinds ...protocol.Kind) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		msg, err := Receive(conn, remaining)
		if err != nil {
			// Timeout is the expected outcome.
			return
		}
		for _, k := range kinds {
			if msg.Kind == k {
				t.Fatalf("Unexpected %s message: %s", msg.Kind, msg)
			}
		}
	}
}

// Join dials url, sends JOIN for id and waits for the member list that
// includes id.
func Join(t *testing.T, url, id string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", id, err)
	}
	MustSend(t, conn, protocol.NewJoin(id, "hello"))

	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		msg := ExpectKind(t, conn, protocol.KindMemberList)
		for _, m := range msg.Members {
			if m.ID == id {
				return conn
			}
		}
	}
	t.Fatalf("Member %s never appeared in a member list", id)
	return nil
}

// ExpectClosed drains conn until the server closes it. It fails the test if
// the connection is still open after DefaultTimeout.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for {
		_, err := Receive(conn, time.Until(deadline))
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatal("Connection stayed open")
		}
		return
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
