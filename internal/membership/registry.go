package membership

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

type entry struct {
	member  Member
	mailbox Mailbox
}

// Registry is the concurrent member table. Every mutation runs under a single
// mutex, so host reassignment can never leave the group with zero or two hosts.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*entry
	nextSeq uint64

	now   func() time.Time
	elect ElectionPolicy
	hooks Hooks
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithElectionPolicy sets the rule used to pick a new host.
func WithElectionPolicy(policy ElectionPolicy) Option {
	return func(r *Registry) {
		if policy != nil {
			r.elect = policy
		}
	}
}

// WithHooks subscribes to membership lifecycle signals.
func WithHooks(hooks Hooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		members: make(map[string]*entry),
		now:     time.Now,
		elect:   ElectEarliestJoined,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join registers id with its endpoint and mailbox. The first member of an
// empty registry becomes host.
func (r *Registry) Join(id, endpoint string, mailbox Mailbox) (Member, error) {
	r.mu.Lock()
	if _, exists := r.members[id]; exists {
		r.mu.Unlock()
		return Member{}, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}

	now := r.now()
	r.nextSeq++
	e := &entry{
		member: Member{
			ID:              id,
			Endpoint:        endpoint,
			IsHost:          len(r.members) == 0,
			LastHeartbeatAt: now,
			JoinedAt:        now,
			JoinSeq:         r.nextSeq,
		},
		mailbox: mailbox,
	}
	r.members[id] = e
	joined := e.member
	r.mu.Unlock()

	r.fire(r.hooks.OnMemberJoined, joined)
	if joined.IsHost {
		r.fire(r.hooks.OnHostChanged, joined)
	}
	return joined, nil
}

// Leave removes id. When the removed member was host and others remain, a
// new host is elected before the lock is released.
func (r *Registry) Leave(id string) (Departure, error) {
	return r.remove(id, nil)
}

// Release removes id only while it is still bound to mailbox. Connection
// teardown uses it so a stale connection never removes a newer session that
// reused the same id.
func (r *Registry) Release(id string, mailbox Mailbox) (Departure, error) {
	return r.remove(id, func(e *entry) bool { return e.mailbox == mailbox })
}

// EvictIfIdle removes id if it has not been heard from since cutoff. The
// deadline is checked under the lock, so a touch that lands after the scan
// keeps the member.
func (r *Registry) EvictIfIdle(id string, cutoff time.Time) (Departure, bool) {
	dep, err := r.remove(id, func(e *entry) bool { return e.member.LastHeartbeatAt.Before(cutoff) })
	return dep, err == nil
}

func (r *Registry) remove(id string, match func(*entry) bool) (Departure, error) {
	r.mu.Lock()
	e, ok := r.members[id]
	if !ok || (match != nil && !match(e)) {
		r.mu.Unlock()
		return Departure{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	delete(r.members, id)
	dep := Departure{Member: e.member, Mailbox: e.mailbox}
	if e.member.IsHost && len(r.members) > 0 {
		dep.NewHost = r.promoteLocked(e.member)
		dep.HostChanged = true
	}
	dep.Remaining = len(r.members)
	r.mu.Unlock()

	r.fire(r.hooks.OnMemberLeft, dep.Member)
	if dep.HostChanged {
		r.fire(r.hooks.OnHostChanged, dep.NewHost)
	}
	return dep, nil
}

// promoteLocked runs the election policy and flags the winner. If the policy
// names somebody who is not registered, the earliest joined member wins.
func (r *Registry) promoteLocked(departed Member) Member {
	candidates := r.snapshotLocked()
	next, ok := r.elect(candidates, departed)
	e, exists := r.members[next.ID]
	if !ok || !exists {
		e = r.members[candidates[0].ID]
	}
	e.member.IsHost = true
	return e.member
}

// Touch refreshes the heartbeat of id. It never resurrects a removed member.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.members[id]
	if !ok {
		return false
	}
	if now := r.now(); now.After(e.member.LastHeartbeatAt) {
		e.member.LastHeartbeatAt = now
	}
	return true
}

// Holds reports whether id is registered and bound to mailbox.
func (r *Registry) Holds(id string, mailbox Mailbox) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.members[id]
	return ok && e.mailbox == mailbox
}

// Lookup returns a copy of the member registered under id.
func (r *Registry) Lookup(id string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.members[id]
	if !ok {
		return Member{}, false
	}
	return e.member, true
}

// Host returns the current host, if any.
func (r *Registry) Host() (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.members {
		if e.member.IsHost {
			return e.member, true
		}
	}
	return Member{}, false
}

// Len returns the number of registered members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Snapshot returns a copy of all members in join order.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Member {
	members := make([]Member, 0, len(r.members))
	for _, e := range r.members {
		members = append(members, e.member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinSeq < members[j].JoinSeq })
	return members
}

// IDsExcept returns every registered id other than id, in join order.
func (r *Registry) IDsExcept(id string) []string {
	snapshot := r.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for _, m := range snapshot {
		if m.ID != id {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Expired returns the members not heard from since cutoff.
func (r *Registry) Expired(cutoff time.Time) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []Member
	for _, e := range r.members {
		if e.member.LastHeartbeatAt.Before(cutoff) {
			expired = append(expired, e.member)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].JoinSeq < expired[j].JoinSeq })
	return expired
}

// Deliver posts msg to the mailbox of id. Unknown ids are a no-op.
func (r *Registry) Deliver(id string, msg protocol.Message) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.members[id]
	if !ok || e.mailbox == nil {
		return false
	}
	return e.mailbox.Post(msg)
}

// Broadcast posts msg to every member except exceptID and returns how many
// mailboxes accepted it. Pass an empty exceptID to reach everyone.
func (r *Registry) Broadcast(exceptID string, msg protocol.Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, e := range r.members {
		if id == exceptID || e.mailbox == nil {
			continue
		}
		if e.mailbox.Post(msg) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) fire(hook func(Member), m Member) {
	if hook != nil {
		hook(m)
	}
}
