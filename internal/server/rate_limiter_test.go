package server

import (
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestRateLimiterBurstAndRefill(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiterWithClock(3, 3*time.Second, clock.Now)

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("message %d rejected inside burst", i)
		}
	}
	if rl.allow() {
		t.Fatal("message accepted after burst was spent")
	}

	clock.now = clock.now.Add(time.Second)
	if !rl.allow() {
		t.Error("token not refilled after one second")
	}
	if rl.allow() {
		t.Error("more than one token refilled")
	}

	clock.now = clock.now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("token %d missing after a full refill", i)
		}
	}
	if rl.allow() {
		t.Error("bucket refilled past capacity")
	}
}

func TestRateLimiterExemptKinds(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiterWithClock(1, time.Minute, clock.Now)

	if !rl.allowMessage(protocol.KindBroadcast) {
		t.Fatal("first broadcast rejected")
	}
	if rl.allowMessage(protocol.KindPrivate) {
		t.Error("private message accepted with an empty bucket")
	}
	for _, kind := range []protocol.Kind{protocol.KindHeartbeat, protocol.KindLeave} {
		if !rl.allowMessage(kind) {
			t.Errorf("%s throttled", kind)
		}
	}
}

func TestRateLimiterInvalidParameters(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiterWithClock(0, 0, clock.Now)

	if !rl.allow() {
		t.Error("capacity did not default to one")
	}
	if rl.allow() {
		t.Error("capacity exceeded one")
	}
}
