// Package client implements the interactive group chat client: it joins the
// group over a WebSocket, keeps the membership alive with heartbeats, prints
// what arrives and turns typed commands into messages.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

const (
	// DefaultHeartbeatInterval keeps members well inside the server's
	// default liveness timeout.
	DefaultHeartbeatInterval = 15 * time.Second

	writeWait = 10 * time.Second
)

// ErrClosed is returned when sending on a finished session.
var ErrClosed = errors.New("client: session closed")

// Config describes how to reach the server and who to join as.
type Config struct {
	ID                string
	URL               string
	Origin            string
	HeartbeatInterval time.Duration
}

// Session is one joined connection to the chat server.
type Session struct {
	id        string
	conn      *websocket.Conn
	codec     protocol.Codec
	heartbeat time.Duration
	logger    *zap.Logger

	writeMu sync.Mutex

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	members []protocol.MemberInfo
	joined  bool
	reason  error

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to cfg.URL, sends JOIN and starts the heartbeat and receive
// goroutines. Output for the user goes to out.
func Dial(ctx context.Context, cfg Config, out io.Writer, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	headers := http.Header{}
	if cfg.Origin != "" {
		headers.Set("Origin", cfg.Origin)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.URL, err)
	}

	s := &Session{
		id:        cfg.ID,
		conn:      conn,
		codec:     protocol.JSONCodec{},
		heartbeat: cfg.HeartbeatInterval,
		logger:    logger.With(zap.String("member", cfg.ID)),
		out:       out,
		done:      make(chan struct{}),
	}

	join := protocol.NewJoin(cfg.ID, fmt.Sprintf("Joining from %s", conn.LocalAddr()))
	if err := s.send(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("client: send join: %w", err)
	}

	s.wg.Add(2)
	go s.receiveLoop()
	go s.heartbeatLoop()
	return s, nil
}

// ID returns the member id this session joined as.
func (s *Session) ID() string { return s.id }

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, or nil after a plain quit.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Members returns the last member list received from the server.
func (s *Session) Members() []protocol.MemberInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.MemberInfo(nil), s.members...)
}

// Joined reports whether the server has listed this session as a member.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// Broadcast sends text to every other member.
func (s *Session) Broadcast(text string) error {
	return s.send(protocol.NewBroadcast(s.id, text))
}

// Private sends text to one member.
func (s *Session) Private(recipient, text string) error {
	return s.send(protocol.NewPrivate(s.id, recipient, text))
}

// Quit leaves the group and closes the connection. It is safe to call more
// than once and from any goroutine.
func (s *Session) Quit() {
	s.finish(nil, true)
}

// Wait blocks until the background goroutines have stopped.
func (s *Session) Wait() {
	s.wg.Wait()
}

// finish ends the session once. LEAVE is sent only when leave is set.
func (s *Session) finish(reason error, leave bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		if leave {
			if err := s.send(protocol.NewLeave(s.id)); err != nil {
				s.logger.Debug("could not send leave", zap.Error(err))
			}
		}

		s.writeMu.Lock()
		close(s.done)
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		_ = s.conn.Close()
	})
}

// send writes one message. Writes from the heartbeat goroutine and the
// command loop are serialized.
func (s *Session) send(msg protocol.Message) error {
	data, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.send(protocol.NewHeartbeat(s.id)); err != nil {
				if !errors.Is(err, ErrClosed) {
					s.logger.Warn("error sending heartbeat", zap.Error(err))
				}
				return
			}
		}
	}
}

func (s *Session) receiveLoop() {
	defer s.wg.Done()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Info("connection to server lost", zap.Error(err))
				s.printf("Disconnected from server.\n")
				s.finish(fmt.Errorf("client: connection lost: %w", err), false)
			}
			return
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Warn("ignoring malformed message from server", zap.Error(err))
			continue
		}

		if !s.handle(msg) {
			return
		}
	}
}

// handle applies one inbound message and reports whether to keep reading.
func (s *Session) handle(msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindMemberList:
		s.mu.Lock()
		s.members = msg.Members
		for _, m := range msg.Members {
			if m.ID == s.id {
				s.joined = true
			}
		}
		s.mu.Unlock()

	case protocol.KindError:
		s.render(msg)
		if msg.IsDuplicateID() {
			s.printf("Exiting due to duplicate user ID...\n")
			// The server drops the connection after rejecting a
			// duplicate, so LEAVE only goes out if we were listed.
			s.finish(fmt.Errorf("client: %s", msg.Content), s.Joined())
			return false
		}
		return true

	case protocol.KindHeartbeat, protocol.KindJoin, protocol.KindLeave:
		s.logger.Debug("ignoring message", zap.String("kind", string(msg.Kind)))
		return true
	}

	s.render(msg)
	return true
}

func (s *Session) render(msg protocol.Message) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := RenderMessage(s.out, msg); err != nil {
		s.logger.Debug("error writing output", zap.Error(err))
	}
}

func (s *Session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// Run reads commands from in until quit, end of input, ctx cancellation or
// the session ending on its own.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-s.done:
				return
			}
		}
	}()

	s.printf("%s\n", Help)
	for {
		select {
		case <-ctx.Done():
			s.Quit()
			return ctx.Err()

		case <-s.done:
			return s.Err()

		case line, ok := <-lines:
			if !ok {
				s.Quit()
				return nil
			}
			if quit := s.execute(line); quit {
				s.Quit()
				return nil
			}
		}
	}
}

// execute runs one command line and reports whether the user asked to quit.
func (s *Session) execute(line string) bool {
	cmd, err := ParseCommand(line)
	switch {
	case errors.Is(err, ErrEmpty):
		return false
	case err != nil:
		s.printf("%v\n", err)
		return false
	}

	switch cmd.Kind {
	case CmdBroadcast:
		err = s.Broadcast(cmd.Text)
	case CmdPrivate:
		err = s.Private(cmd.Recipient, cmd.Text)
	case CmdMembers:
		s.outMu.Lock()
		err = RenderMembers(s.out, s.Members())
		s.outMu.Unlock()
	case CmdHelp:
		s.printf("%s\n", Help)
	case CmdQuit:
		return true
	}

	if err != nil {
		s.logger.Warn("command failed", zap.String("command", string(cmd.Kind)), zap.Error(err))
		s.printf("Error: %v\n", err)
	}
	return false
}
