// Package membership tracks the members of the chat group: who is connected,
// who is host, and when each member was last heard from. It owns the only
// lock over member state, including each member's outbound mailbox, and knows
// nothing about the network.
package membership

import (
	"errors"
	"time"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

var (
	// ErrDuplicateID is returned when a join uses an id that is already registered.
	ErrDuplicateID = errors.New("membership: duplicate member id")
	// ErrNotFound is returned when an operation names an unknown member.
	ErrNotFound = errors.New("membership: member not found")
	// ErrTimeoutTooShort is returned when the heartbeat timeout does not exceed the sweep interval.
	ErrTimeoutTooShort = errors.New("membership: heartbeat timeout must exceed interval")
)

// Member is a point-in-time copy of one participant's state.
type Member struct {
	ID              string
	Endpoint        string
	IsHost          bool
	LastHeartbeatAt time.Time
	JoinedAt        time.Time
	// JoinSeq increases with every successful join and orders the snapshot.
	JoinSeq uint64
}

// Info converts the member to its wire representation.
func (m Member) Info() protocol.MemberInfo {
	return protocol.MemberInfo{ID: m.ID, Endpoint: m.Endpoint, IsHost: m.IsHost}
}

// Infos converts a snapshot to the records carried by a MEMBER_LIST message.
func Infos(members []Member) []protocol.MemberInfo {
	infos := make([]protocol.MemberInfo, 0, len(members))
	for _, m := range members {
		infos = append(infos, m.Info())
	}
	return infos
}

// Mailbox is the outbound queue of a member's connection. Post must not
// block; it reports false when the message could not be queued.
type Mailbox interface {
	Post(msg protocol.Message) bool
	Close()
}

// Departure describes a member removal and the host election it caused.
type Departure struct {
	Member      Member
	Mailbox     Mailbox
	HostChanged bool
	NewHost     Member
	Remaining   int
}

// Hooks are informational callbacks fired after the registry lock is
// released. Any of them may be nil.
type Hooks struct {
	OnMemberJoined func(Member)
	OnMemberLeft   func(Member)
	OnHostChanged  func(Member)
}
