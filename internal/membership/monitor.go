package membership

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Default heartbeat settings. The timeout tolerates one missed tick.
const (
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
)

// Monitor periodically evicts members whose last heartbeat is older than the
// timeout. Evictions go through the registry like an explicit leave, and the
// resulting Departure is handed to the eviction callback.
type Monitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	onEvict  func(Departure)
	logger   *zap.Logger
}

// NewMonitor validates the timing and builds a Monitor. onEvict may be nil.
func NewMonitor(registry *Registry, interval, timeout time.Duration, onEvict func(Departure), logger *zap.Logger) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("membership: heartbeat interval must be positive, got %s", interval)
	}
	if timeout <= interval {
		return nil, fmt.Errorf("%w: timeout %s, interval %s", ErrTimeoutTooShort, timeout, interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		onEvict:  onEvict,
		logger:   logger,
	}, nil
}

// Interval returns the sweep period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Timeout returns the liveness deadline.
func (m *Monitor) Timeout() time.Duration { return m.timeout }

// Sweep evicts every member past the deadline and returns the departures.
func (m *Monitor) Sweep() []Departure {
	cutoff := m.registry.now().Add(-m.timeout)

	var evicted []Departure
	for _, member := range m.registry.Expired(cutoff) {
		dep, ok := m.registry.EvictIfIdle(member.ID, cutoff)
		if !ok {
			continue
		}
		m.logger.Info("evicted member after heartbeat timeout",
			zap.String("member", member.ID),
			zap.Time("last_heartbeat", member.LastHeartbeatAt),
			zap.Bool("host_changed", dep.HostChanged))
		if m.onEvict != nil {
			m.onEvict(dep)
		}
		evicted = append(evicted, dep)
	}
	return evicted
}

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("heartbeat monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("timeout", m.timeout))

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("heartbeat monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
