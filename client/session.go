// Package client implements the chat session controller that applications
// embed: it owns one websocket connection to the relay, reconnects with
// capped exponential backoff, replays room membership after every reconnect
// and keeps a local ordered view of received messages.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ChatApp/logger"
	"ChatApp/service/relay"
	errs "ChatApp/tools/errs"

	"github.com/gorilla/websocket"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Config struct {
	URL   string // ws endpoint, e.g. ws://localhost:5000/ws
	Token string // access token appended as ?token=

	BackoffBase time.Duration // first retry delay, defaults to 1s
	BackoffMax  time.Duration // delay cap, defaults to 5s
	MaxRetries  int           // consecutive failed attempts before giving up, defaults to 5

	Dialer *websocket.Dialer
}

func (c *Config) norm() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Session is the per-client state machine:
// Disconnected -> Connecting -> Connected -> (Disconnected on loss).
type Session struct {
	cfg Config

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	desired map[string]struct{} // rooms the application wants to be in
	msgs    []relay.Message     // append-only local message view
	seen    map[string]struct{} // message ids already in msgs
	err     error               // terminal error, set before done closes

	writeMu sync.Mutex // gorilla conns forbid concurrent writers

	notices   chan relay.ServerFrame // presence/typing/error frames for the app
	done      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Session {
	cfg.norm()
	return &Session{
		cfg:     cfg,
		desired: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
		notices: make(chan relay.ServerFrame, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

// Run drives the connect/read/reconnect loop until ctx is cancelled, the
// retry budget is exhausted or the server rejects the session for good.
// Blocking; run it on its own goroutine. The terminal condition is reported
// through Err after Done is closed, never as a panic.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		s.setState(StateDisconnected)
		close(s.done)
	}()

	attempts := 0
	for {
		if ctx.Err() != nil || s.isClosing() {
			return
		}

		s.setState(StateConnecting)
		conn, _, err := s.cfg.Dialer.DialContext(ctx, s.dialURL(), nil)
		if err != nil {
			attempts++
			logger.Debugf("[session] dial failed (attempt %d/%d): %v", attempts, s.cfg.MaxRetries, err)
			if attempts >= s.cfg.MaxRetries {
				s.setErr(errs.ErrRetryExhausted.WithDetail(err.Error()))
				return
			}
			if !s.backoffWait(ctx, attempts) {
				return
			}
			continue
		}

		attempts = 0
		s.attach(conn)
		s.setState(StateConnected)
		s.replayMemberships()

		fatal := s.readLoop(ctx, conn)
		s.detach(conn)
		s.setState(StateDisconnected)
		if fatal != nil {
			s.setErr(fatal)
			return
		}
		if ctx.Err() != nil || s.isClosing() {
			return // torn down by the caller, not a transport failure
		}
		// Transport lost: fall through into the reconnect path.
		attempts++
		if attempts >= s.cfg.MaxRetries {
			s.setErr(errs.ErrRetryExhausted)
			return
		}
		if !s.backoffWait(ctx, attempts) {
			return
		}
	}
}

// Done is closed once the session reaches its terminal Disconnected state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close requests the terminal Disconnected state: the current connection is
// torn down, any backoff wait aborts and Run returns. Safe to call from any
// goroutine, repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Err returns the terminal error (nil after a plain cancellation).
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notices delivers presence, typing and error frames. Frames are dropped
// when the application does not drain the channel.
func (s *Session) Notices() <-chan relay.ServerFrame { return s.notices }

// Messages returns a copy of the local time-ordered message view.
func (s *Session) Messages() []relay.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]relay.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// JoinRoom records the desired membership and joins immediately when
// connected. The desired set is what gets replayed after a reconnect.
func (s *Session) JoinRoom(room string) error {
	s.mu.Lock()
	s.desired[room] = struct{}{}
	conn := s.connIfConnected()
	s.mu.Unlock()
	if conn == nil {
		return nil // joined on next (re)connect
	}
	return s.writeFrame(conn, relay.ClientFrame{Action: relay.ActionJoinRoom, ChatID: room})
}

func (s *Session) LeaveRoom(room string) error {
	s.mu.Lock()
	delete(s.desired, room)
	conn := s.connIfConnected()
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return s.writeFrame(conn, relay.ClientFrame{Action: relay.ActionLeaveRoom, ChatID: room})
}

// Send fails fast when the session is not connected; nothing is ever queued
// for later delivery.
func (s *Session) Send(room, content string) error {
	s.mu.Lock()
	conn := s.connIfConnected()
	s.mu.Unlock()
	if conn == nil {
		return errs.ErrNotConnected
	}
	return s.writeFrame(conn, relay.ClientFrame{Action: relay.ActionSendMessage, ChatID: room, Content: content})
}

func (s *Session) Typing(room string) error {
	s.mu.Lock()
	conn := s.connIfConnected()
	s.mu.Unlock()
	if conn == nil {
		return errs.ErrNotConnected
	}
	return s.writeFrame(conn, relay.ClientFrame{Action: relay.ActionUserTyping, ChatID: room})
}

// ---- internals ----

func (s *Session) dialURL() string {
	if s.cfg.Token == "" {
		return s.cfg.URL
	}
	return s.cfg.URL + "?token=" + s.cfg.Token
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// connIfConnected must be called with mu held.
func (s *Session) connIfConnected() *websocket.Conn {
	if s.state != StateConnected {
		return nil
	}
	return s.conn
}

func (s *Session) writeFrame(conn *websocket.Conn, f relay.ClientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errs.WrapMsg(err, "encode frame")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errs.ErrTransportLost.WithDetail(err.Error())
	}
	return nil
}

// replayMemberships re-issues join for every desired room. Required after a
// reconnect: the server drops membership when a connection dies, so without
// replay this client would silently stop receiving room traffic.
func (s *Session) replayMemberships() {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.desired))
	for room := range s.desired {
		rooms = append(rooms, room)
	}
	conn := s.conn
	s.mu.Unlock()

	for _, room := range rooms {
		if err := s.writeFrame(conn, relay.ClientFrame{Action: relay.ActionJoinRoom, ChatID: room}); err != nil {
			logger.Debugf("[session] replay join room=%s: %v", room, err)
			return
		}
	}
}

// readLoop consumes server frames until the transport drops. A non-nil
// return is a terminal condition (evicted or auth-rejected): reconnecting
// would either fight our replacement or fail the same way again.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// ReadMessage blocks with no context; closing the conn is the only way
	// to unblock it when the caller cancels or closes the session.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.closing:
			_ = conn.Close()
		case <-readDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, relay.CloseReplaced) {
				return errs.ErrTransportLost.WithDetail("session replaced by another connection")
			}
			if websocket.IsCloseError(err, relay.CloseAuthRequired) {
				return errs.ErrAuthRequired
			}
			return nil
		}

		var frame relay.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Debugf("[session] bad server frame: %v", err)
			continue
		}

		if frame.Action == relay.ActionReceiveMessage {
			var msg relay.Message
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				continue
			}
			s.appendMessage(msg)
			continue
		}

		select {
		case s.notices <- frame:
		default:
		}
	}
}

func (s *Session) appendMessage(msg relay.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[msg.ID]; dup {
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.msgs = append(s.msgs, msg)
}

// backoffWait sleeps for the capped exponential delay; false means the wait
// was cancelled.
func (s *Session) backoffWait(ctx context.Context, attempt int) bool {
	delay := s.cfg.BackoffBase << (attempt - 1)
	if delay > s.cfg.BackoffMax || delay <= 0 {
		delay = s.cfg.BackoffMax
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	case <-timer.C:
		return true
	}
}
