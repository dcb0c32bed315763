// Package router dispatches inbound chat messages against the member
// registry and decides who receives what.
package router

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/membership"
	"github.com/Tyrowin/groupchat/internal/protocol"
	"github.com/Tyrowin/groupchat/internal/telemetry"
)

var (
	// ErrNotJoin is returned when a connection opens with anything but JOIN.
	ErrNotJoin = errors.New("router: first message must be JOIN")
	// ErrInvalidID is returned for empty, reserved or whitespace ids.
	ErrInvalidID = errors.New("router: invalid member id")
	// ErrLeft is returned after a LEAVE so the caller can close the connection.
	ErrLeft = errors.New("router: member left")
)

// Error texts sent to rejected connections.
const (
	DuplicateIDText       = "User ID already exists. Please choose a different ID."
	InvalidIDText         = "User ID must be non-empty, contain no spaces and not be SERVER."
	ProtocolViolationText = "First message must be JOIN."
)

// Departure causes used in logs and metrics.
const (
	CauseLeave      = "leave"
	CauseDisconnect = "disconnect"
	CauseTimeout    = "timeout"
)

// Deliverer hands messages to connected members. Delivery to an unknown id
// is a no-op reported as false.
type Deliverer interface {
	Deliver(id string, msg protocol.Message) bool
	Broadcast(exceptID string, msg protocol.Message) int
}

// Router applies the dispatch rules for every message kind.
type Router struct {
	registry *membership.Registry
	out      Deliverer
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// New creates a Router. When out is nil the registry delivers directly.
func New(registry *membership.Registry, out Deliverer, logger *zap.Logger, metrics *telemetry.Metrics) *Router {
	if out == nil {
		out = registry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		out:      out,
		logger:   logger,
		metrics:  metrics,
	}
}

// Join handles the first message of a connection. Rejections are reported to
// mailbox only, the registry stays untouched, and the caller must close the
// connection when an error is returned.
func (r *Router) Join(msg protocol.Message, endpoint string, mailbox membership.Mailbox) (membership.Member, error) {
	start := time.Now()

	if msg.Kind != protocol.KindJoin {
		mailbox.Post(protocol.NewError(msg.SenderID, protocol.CodeProtocolViolation, ProtocolViolationText))
		r.logger.Warn("connection opened without JOIN",
			zap.String("endpoint", endpoint),
			zap.String("kind", string(msg.Kind)))
		return membership.Member{}, fmt.Errorf("%w: got %s", ErrNotJoin, msg.Kind)
	}

	id := msg.SenderID
	if !ValidID(id) {
		mailbox.Post(protocol.NewError(id, protocol.CodeInvalidID, InvalidIDText))
		r.logger.Warn("rejected invalid member id", zap.String("member", id), zap.String("endpoint", endpoint))
		return membership.Member{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	member, err := r.registry.Join(id, endpoint, mailbox)
	if err != nil {
		if errors.Is(err, membership.ErrDuplicateID) {
			mailbox.Post(protocol.NewError(id, protocol.CodeDuplicateID, DuplicateIDText))
			r.logger.Info("rejected duplicate member id", zap.String("member", id), zap.String("endpoint", endpoint))
		}
		return membership.Member{}, err
	}

	r.logger.Info("member joined",
		zap.String("member", member.ID),
		zap.String("endpoint", endpoint),
		zap.Bool("host", member.IsHost))
	r.broadcastMemberList()
	r.metrics.ObserveDispatch(string(protocol.KindJoin), start)
	return member, nil
}

// Route dispatches a message received from the member registered as from on
// the connection owning mailbox. It returns ErrLeft after a LEAVE.
func (r *Router) Route(from string, mailbox membership.Mailbox, msg protocol.Message) error {
	start := time.Now()

	if !r.registry.Holds(from, mailbox) {
		r.logger.Debug("ignoring message from unregistered connection",
			zap.String("member", from),
			zap.String("kind", string(msg.Kind)))
		r.metrics.Dropped("sender_unknown")
		return nil
	}

	r.registry.Touch(from)
	msg.SenderID = from

	var err error
	switch msg.Kind {
	case protocol.KindLeave:
		r.release(from, mailbox, CauseLeave)
		err = ErrLeft
	case protocol.KindHeartbeat:
	case protocol.KindPrivate:
		r.routePrivate(msg)
	case protocol.KindBroadcast:
		r.routeBroadcast(msg)
	case protocol.KindJoin:
		r.logger.Warn("ignoring JOIN on an established connection", zap.String("member", from))
	default:
		r.logger.Warn("ignoring server-only message kind from client",
			zap.String("member", from),
			zap.String("kind", string(msg.Kind)))
	}

	r.metrics.ObserveDispatch(string(msg.Kind), start)
	return err
}

// Disconnect releases the member after a transport failure. It is safe to
// call more than once and after the member already left.
func (r *Router) Disconnect(id string, mailbox membership.Mailbox) {
	r.release(id, mailbox, CauseDisconnect)
}

// Evict finishes a heartbeat-timeout removal: it closes the member's
// connection and announces the departure like a leave.
func (r *Router) Evict(dep membership.Departure) {
	if dep.Mailbox != nil {
		dep.Mailbox.Close()
	}
	r.announce(dep, CauseTimeout)
}

func (r *Router) release(id string, mailbox membership.Mailbox, cause string) {
	dep, err := r.registry.Release(id, mailbox)
	if err != nil {
		return
	}
	r.announce(dep, cause)
}

func (r *Router) announce(dep membership.Departure, cause string) {
	r.metrics.Departed(cause)
	r.logger.Info("member left",
		zap.String("member", dep.Member.ID),
		zap.String("cause", cause),
		zap.Int("remaining", dep.Remaining),
		zap.Bool("host_changed", dep.HostChanged))

	if dep.Remaining == 0 {
		return
	}
	r.broadcastMemberList()
	if dep.HostChanged {
		r.logger.Info("host reassigned",
			zap.String("previous", dep.Member.ID),
			zap.String("host", dep.NewHost.ID))
		r.out.Broadcast("", protocol.NewHost(dep.NewHost.ID))
	}
}

func (r *Router) routePrivate(msg protocol.Message) {
	if msg.RecipientID == "" {
		r.logger.Debug("dropping private message without recipient", zap.String("member", msg.SenderID))
		r.metrics.Dropped("recipient_missing")
		return
	}
	if !r.out.Deliver(msg.RecipientID, msg) {
		r.logger.Debug("dropping private message for absent recipient",
			zap.String("member", msg.SenderID),
			zap.String("recipient", msg.RecipientID))
		r.metrics.Dropped("recipient_absent")
	}
}

func (r *Router) routeBroadcast(msg protocol.Message) {
	delivered := r.out.Broadcast(msg.SenderID, msg)
	r.logger.Debug("broadcast message",
		zap.String("member", msg.SenderID),
		zap.Int("recipients", delivered))
}

// MemberList renders the current registry as a MEMBER_LIST message.
func (r *Router) MemberList() protocol.Message {
	return protocol.NewMemberList(membership.Infos(r.registry.Snapshot()))
}

func (r *Router) broadcastMemberList() {
	r.out.Broadcast("", r.MemberList())
}

// ValidID reports whether id may be registered.
func ValidID(id string) bool {
	if id == "" || id == protocol.ServerID {
		return false
	}
	return !strings.ContainsFunc(id, unicode.IsSpace)
}
