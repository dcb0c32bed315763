// Package server coordinates connection admission, the heartbeat monitor and
// shutdown for the group chat via the Hub type.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/membership"
	"github.com/Tyrowin/groupchat/internal/protocol"
	"github.com/Tyrowin/groupchat/internal/router"
	"github.com/Tyrowin/groupchat/internal/telemetry"
)

// Hub owns the process-wide chat state: the member registry, the router that
// mutates it, and the heartbeat monitor that evicts silent members. Each hub
// is independent, so tests can run several in one process.
type Hub struct {
	cfg      Config
	registry *membership.Registry
	router   *router.Router
	monitor  *membership.Monitor
	codec    protocol.Codec
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	origins  *originPolicy
	upgrader websocket.Upgrader

	register chan *Connection
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHub builds a hub from cfg. A nil cfg uses defaults, a nil logger
// discards logs and nil metrics get a fresh private registry.
func NewHub(cfg *Config, logger *zap.Logger, metrics *telemetry.Metrics) (*Hub, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := cfg.Sanitize()
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}

	policy, err := membership.PolicyByName(sanitized.HostElection)
	if err != nil {
		return nil, err
	}

	var registry *membership.Registry
	updateMembers := func(membership.Member) { metrics.SetMembers(registry.Len()) }
	registry = membership.NewRegistry(
		membership.WithElectionPolicy(policy),
		membership.WithHooks(membership.Hooks{
			OnMemberJoined: updateMembers,
			OnMemberLeft:   updateMembers,
			OnHostChanged: func(m membership.Member) {
				metrics.HostChanged()
				logger.Debug("host assigned", zap.String("member", m.ID))
			},
		}),
	)

	rt := router.New(registry, registry, logger.Named("router"), metrics)

	monitor, err := membership.NewMonitor(registry,
		sanitized.Heartbeat.Interval, sanitized.Heartbeat.Timeout,
		rt.Evict, logger.Named("heartbeat"))
	if err != nil {
		return nil, fmt.Errorf("server: heartbeat monitor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:      sanitized,
		registry: registry,
		router:   rt,
		monitor:  monitor,
		codec:    protocol.JSONCodec{},
		metrics:  metrics,
		logger:   logger,
		origins:  newOriginPolicy(sanitized.AllowedOrigins, logger),
		register: make(chan *Connection),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.checkOrigin,
	}
	return h, nil
}

// Registry exposes the member registry for read-only inspection.
func (h *Hub) Registry() *membership.Registry { return h.registry }

// Router returns the hub's message router.
func (h *Hub) Router() *router.Router { return h.router }

// Metrics returns the hub's collectors.
func (h *Hub) Metrics() *telemetry.Metrics { return h.metrics }

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config { return h.cfg }

// Run starts the heartbeat monitor and admits connections until shutdown.
// It should be called in a separate goroutine before serving HTTP.
func (h *Hub) Run() {
	defer close(h.done)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.monitor.Run(h.ctx)
	}()

	h.logger.Info("hub started",
		zap.Duration("heartbeat_interval", h.cfg.Heartbeat.Interval),
		zap.Duration("heartbeat_timeout", h.cfg.Heartbeat.Timeout),
		zap.String("host_election", h.cfg.HostElection))

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("hub stopping; closing member connections", zap.Int("members", h.registry.Len()))
			return

		case conn := <-h.register:
			if conn == nil {
				h.logger.Warn("received nil connection registration; skipping")
				continue
			}
			h.start(conn)
		}
	}
}

// start launches the pumps of an admitted connection.
func (h *Hub) start(conn *Connection) {
	h.metrics.ConnectionOpened()
	h.logger.Debug("connection admitted", zap.String("remote", conn.addr))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		conn.writePump()
	}()
	go func() {
		defer h.wg.Done()
		defer h.metrics.ConnectionClosed()
		conn.readPump()
	}()
}

// admit hands a freshly upgraded connection to the hub. It reports false
// once the hub is shutting down.
func (h *Hub) admit(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all member connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all connection goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
