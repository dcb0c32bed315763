package protocol_test

import (
	"errors"
	"testing"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

// TestJSONCodecMemberList verifies that member lists travel as structured
// records and come back with the host flag intact.
func TestJSONCodecMemberList(t *testing.T) {
	codec := protocol.JSONCodec{}
	msg := protocol.NewMemberList([]protocol.MemberInfo{
		{ID: "alice", Endpoint: "10.0.0.1:5000", IsHost: true},
		{ID: "bob", Endpoint: "10.0.0.2:5001"},
	})

	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if got.Kind != protocol.KindMemberList {
		t.Errorf("Expected kind %s, got %s", protocol.KindMemberList, got.Kind)
	}
	if len(got.Members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(got.Members))
	}
	if got.Members[0].ID != "alice" || got.Members[1].ID != "bob" {
		t.Errorf("Member order not preserved: %+v", got.Members)
	}
	host, ok := got.Host()
	if !ok || host.ID != "alice" {
		t.Errorf("Expected alice as host, got %+v (found=%v)", host, ok)
	}
}

// TestJSONCodecDecodeErrors verifies that malformed payloads are reported as
// ErrDecode so the owning connection can be torn down.
func TestJSONCodecDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "hello"},
		{name: "truncated", payload: `{"kind":"BROADCAST"`},
		{name: "unknown kind", payload: `{"sender_id":"alice","kind":"SHOUT"}`},
		{name: "missing kind", payload: `{"sender_id":"alice","content":"hi"}`},
	}

	codec := protocol.JSONCodec{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.payload))
			if !errors.Is(err, protocol.ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
		})
	}
}

// TestDuplicateIDError verifies the duplicate id signal is carried by the
// error code rather than by the human readable content.
func TestDuplicateIDError(t *testing.T) {
	msg := protocol.NewError("alice", protocol.CodeDuplicateID, "taken")
	if !msg.IsDuplicateID() {
		t.Error("Expected duplicate id error to be recognised")
	}
	if msg.SenderID != protocol.ServerID {
		t.Errorf("Expected sender %q, got %q", protocol.ServerID, msg.SenderID)
	}

	other := protocol.NewError("alice", protocol.CodeProtocolViolation, "taken")
	if other.IsDuplicateID() {
		t.Error("Protocol violation must not be reported as duplicate id")
	}
}
