// Package server manages individual WebSocket connections, handling read/write
// pumps, rate limiting, and lifecycle control for each group member.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/membership"
	"github.com/Tyrowin/groupchat/internal/protocol"
	"github.com/Tyrowin/groupchat/internal/router"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection is one member's WebSocket. It owns its transport exclusively:
// the read pump feeds the router, the write pump drains the outbound queue.
// Connection implements membership.Mailbox.
type Connection struct {
	conn           *websocket.Conn
	hub            *Hub
	addr           string
	send           chan protocol.Message
	done           chan struct{}
	closeOnce      sync.Once
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	logger         *zap.Logger

	// memberID is only touched by the read pump.
	memberID string
}

var _ membership.Mailbox = (*Connection)(nil)

// NewConnection wraps an upgraded WebSocket for the hub. The outbound queue
// is buffered so a slow reader does not stall the router.
func NewConnection(conn *websocket.Conn, hub *Hub, addr string) *Connection {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Connection{
		conn:           conn,
		hub:            hub,
		addr:           addr,
		send:           make(chan protocol.Message, cfg.SendBufferSize),
		done:           make(chan struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger:         hub.logger.With(zap.String("remote", addr)),
	}
}

// Post queues msg without blocking. A full queue means the peer stopped
// reading; the connection is closed and the member released on teardown.
func (c *Connection) Post(msg protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full; closing slow connection", zap.Int("buffer", cap(c.send)))
		c.Close()
		return false
	}
}

// Close stops both pumps. Queued messages are flushed before the socket closes.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection starts shutting down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Pending returns the number of queued outbound messages.
func (c *Connection) Pending() int {
	return len(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Connection) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// readMessage reads one frame and decodes it.
func (c *Connection) readMessage() (protocol.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	return c.hub.codec.Decode(data)
}

// handleReadError logs the reason the read loop is ending.
func (c *Connection) handleReadError(err error) {
	log := c.logger.With(zap.String("member", c.memberID), zap.Error(err))

	switch {
	case errors.Is(err, protocol.ErrDecode):
		log.Warn("malformed message; closing connection")
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn("message exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Info("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Info("connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Warn("unexpected WebSocket close")
	default:
		log.Warn("WebSocket read error")
	}
}

// checkRateLimit verifies if the member has exceeded rate limits
// and returns true if the message should be processed
func (c *Connection) checkRateLimit(kind protocol.Kind) bool {
	if c.rateLimiter != nil && !c.rateLimiter.allowMessage(kind) {
		c.logger.Warn("rate limit exceeded; discarding message",
			zap.String("member", c.memberID),
			zap.String("kind", string(kind)),
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("refill", c.rateLimit.RefillInterval))
		c.hub.metrics.Dropped("rate_limited")
		return false
	}
	return true
}

// join reads the first message and hands it to the router. Rejected
// connections are never registered.
func (c *Connection) join() bool {
	msg, err := c.readMessage()
	if err != nil {
		c.handleReadError(err)
		return false
	}

	member, err := c.hub.router.Join(msg, c.addr, c)
	if err != nil {
		c.logger.Info("join rejected", zap.String("member", msg.SenderID), zap.Error(err))
		return false
	}

	c.memberID = member.ID
	return true
}

func (c *Connection) readPump() {
	defer func() {
		if c.memberID != "" {
			c.hub.router.Disconnect(c.memberID, c)
		}
		c.Close()
	}()

	c.setupReadConnection()

	if !c.join() {
		return
	}

	for {
		msg, err := c.readMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit(msg.Kind) {
			continue
		}

		if err := c.hub.router.Route(c.memberID, c, msg); errors.Is(err, router.ErrLeft) {
			c.logger.Debug("member left; closing connection", zap.String("member", c.memberID))
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Connection) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case msg := <-c.send:
		return c.writeMessage(msg)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.flushQueued()
		c.writeCloseMessage()
		return false
	case <-c.hub.ctx.Done():
		c.Close()
		c.flushQueued()
		c.writeCloseMessage()
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Connection) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection", zap.Error(err))
		}
	}
}

// flushQueued writes whatever is still queued, such as the error sent to a
// rejected join.
func (c *Connection) flushQueued() {
	n := len(c.send)
	for i := 0; i < n; i++ {
		if !c.writeMessage(<-c.send) {
			return
		}
	}
}

// writeCloseMessage sends a close frame to the peer
func (c *Connection) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("error writing close message", zap.Error(err))
		}
	}
}

// writeMessage encodes and writes one message per frame
func (c *Connection) writeMessage(msg protocol.Message) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline", zap.Error(err))
		return false
	}

	data, err := c.hub.codec.Encode(msg)
	if err != nil {
		c.logger.Error("error encoding message", zap.String("kind", string(msg.Kind)), zap.Error(err))
		return true
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Warn("error creating writer", zap.Error(err))
		return false
	}

	if !c.writeMessageContent(w, data) {
		return false
	}

	return c.closeWriter(w)
}

// writeMessageContent writes the encoded message
func (c *Connection) writeMessageContent(w io.WriteCloser, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		c.logger.Warn("error writing message", zap.Error(err))
		return false
	}
	return true
}

// closeWriter closes the message writer
func (c *Connection) closeWriter(w io.WriteCloser) bool {
	if err := w.Close(); err != nil {
		c.logger.Warn("error closing writer", zap.Error(err))
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Connection) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("error writing ping message", zap.Error(err))
		return false
	}
	return true
}
