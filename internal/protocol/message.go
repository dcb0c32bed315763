// Package protocol defines the messages exchanged between the group chat
// server and its members, and the codec used to put them on the wire.
package protocol

import (
	"fmt"
	"time"
)

// ServerID is the sender id used for server-originated control messages.
const ServerID = "SERVER"

// Kind identifies what a Message is for.
type Kind string

// Message kinds understood by the server and the client.
const (
	KindJoin       Kind = "JOIN"
	KindLeave      Kind = "LEAVE"
	KindHost       Kind = "HOST"
	KindHeartbeat  Kind = "HEARTBEAT"
	KindPrivate    Kind = "PRIVATE"
	KindBroadcast  Kind = "BROADCAST"
	KindMemberList Kind = "MEMBER_LIST"
	KindError      Kind = "ERROR"
)

// Valid reports whether k is one of the known message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindJoin, KindLeave, KindHost, KindHeartbeat,
		KindPrivate, KindBroadcast, KindMemberList, KindError:
		return true
	}
	return false
}

// Error codes carried by ERROR messages.
const (
	CodeDuplicateID       = "duplicate_id"
	CodeInvalidID         = "invalid_id"
	CodeProtocolViolation = "protocol_violation"
)

// MemberInfo is one entry of a MEMBER_LIST message.
type MemberInfo struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	IsHost   bool   `json:"is_host"`
}

// Message is the unit of communication between members, or between the
// server and a member. Timestamp is set once by the constructors.
type Message struct {
	SenderID    string       `json:"sender_id"`
	RecipientID string       `json:"recipient_id,omitempty"`
	Kind        Kind         `json:"kind"`
	Content     string       `json:"content,omitempty"`
	Members     []MemberInfo `json:"members,omitempty"`
	Code        string       `json:"code,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// New creates a message stamped with the current time.
func New(kind Kind, senderID, recipientID, content string) Message {
	return Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Kind:        kind,
		Content:     content,
		Timestamp:   time.Now(),
	}
}

// NewJoin creates the first message a member sends on a new connection.
func NewJoin(senderID, content string) Message {
	return New(KindJoin, senderID, "", content)
}

// NewLeave creates an explicit departure message.
func NewLeave(senderID string) Message {
	return New(KindLeave, senderID, "", "Leaving group")
}

// NewHeartbeat creates an empty liveness message.
func NewHeartbeat(senderID string) Message {
	return New(KindHeartbeat, senderID, "", "")
}

// NewBroadcast creates a message for every other member of the group.
func NewBroadcast(senderID, content string) Message {
	return New(KindBroadcast, senderID, "", content)
}

// NewPrivate creates a message for a single recipient.
func NewPrivate(senderID, recipientID, content string) Message {
	return New(KindPrivate, senderID, recipientID, content)
}

// NewError creates a server error addressed to recipientID.
func NewError(recipientID, code, content string) Message {
	msg := New(KindError, ServerID, recipientID, content)
	msg.Code = code
	return msg
}

// NewHost announces hostID as the group's current host.
func NewHost(hostID string) Message {
	return New(KindHost, ServerID, "", hostID)
}

// NewMemberList creates a MEMBER_LIST message carrying members in order.
func NewMemberList(members []MemberInfo) Message {
	msg := New(KindMemberList, ServerID, "", "")
	msg.Members = append([]MemberInfo(nil), members...)
	return msg
}

// IsDuplicateID reports whether msg rejects a join because the id is taken.
func (m Message) IsDuplicateID() bool {
	return m.Kind == KindError && m.Code == CodeDuplicateID
}

// Host returns the entry flagged as host in a MEMBER_LIST message.
func (m Message) Host() (MemberInfo, bool) {
	for _, info := range m.Members {
		if info.IsHost {
			return info, true
		}
	}
	return MemberInfo{}, false
}

func (m Message) String() string {
	recipient := m.RecipientID
	if recipient == "" {
		recipient = "ALL"
	}
	return fmt.Sprintf("[%s] %s -> %s (%s): %s",
		m.Timestamp.Format(time.RFC3339), m.SenderID, recipient, m.Kind, m.Content)
}
