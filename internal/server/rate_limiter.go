// Package server implements a token bucket rate limiter for per-connection
// throttling of chat traffic.
package server

import (
	"sync"
	"time"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	return newRateLimiterWithClock(capacity, interval, time.Now)
}

func newRateLimiterWithClock(capacity int, interval time.Duration, now func() time.Time) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      float64(capacity) / interval.Seconds(),
		lastCheck: now(),
		now:       now,
	}
}

// exempt reports whether a message kind bypasses throttling. Dropping a
// heartbeat or a leave would get the member evicted or stuck.
func exempt(kind protocol.Kind) bool {
	return kind == protocol.KindHeartbeat || kind == protocol.KindLeave
}

// allowMessage spends a token for chat traffic; liveness and control
// messages are always allowed.
func (rl *rateLimiter) allowMessage(kind protocol.Kind) bool {
	if exempt(kind) {
		return true
	}
	return rl.allow()
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}
