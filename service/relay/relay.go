package relay

import (
	"context"
	"time"

	"ChatApp/logger"
	errs "ChatApp/tools/errs"
	"ChatApp/tools/ids"
)

// MessagePublisher hands accepted messages to the durable store pipeline.
// Must not block the relay goroutine for long; the NATS publisher buffers.
type MessagePublisher interface {
	PublishMessage(m Message) error
}

type Config struct {
	Sink      PresenceSink     // optional presence mirror
	Publisher MessagePublisher // optional persistence pipeline
	QueueSize int              // inbound event queue, defaults to 1024
	Clock     func() time.Time // injectable for tests, defaults to time.Now
}

func (c *Config) norm() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Relay is the single-writer actor owning the room directory and connection
// registry. Every mutation flows through one ordered event queue consumed by
// one goroutine, which is what gives sends their per-room ordering and makes
// disconnect cleanup race-free against concurrent joins.
type Relay struct {
	cfg    Config
	events chan event
	dir    *RoomDirectory
	reg    *ConnRegistry

	sink PresenceSink
	pub  MessagePublisher
}

func New(cfg Config) *Relay {
	cfg.norm()
	return &Relay{
		cfg:    cfg,
		events: make(chan event, cfg.QueueSize),
		dir:    NewRoomDirectory(),
		reg:    NewConnRegistry(),
		sink:   cfg.Sink,
		pub:    cfg.Publisher,
	}
}

// Run consumes events until ctx is cancelled. On shutdown every live
// connection is kicked so peers observe a clean close.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.reg.each(func(user string, conn Conn) {
				conn.Kick(CloseGoingAway, "server shutting down")
			})
			return
		case ev := <-r.events:
			r.dispatch(ev)
		}
	}
}

func (r *Relay) dispatch(ev event) {
	switch ev.kind {
	case eventRegister:
		r.handleRegister(ev)
	case eventJoin:
		r.handleJoin(ev)
	case eventLeave:
		r.handleLeave(ev)
	case eventSend:
		r.handleSend(ev)
	case eventTyping:
		r.handleTyping(ev)
	case eventDisconnect:
		r.handleDisconnect(ev)
	case eventInspect:
		ev.inspect(r.dir, r.reg)
	}
}

// ---- public API: every call enqueues onto the single-writer queue ----

// Register binds the authenticated identity to its freshly-opened
// connection. A previous connection for the same identity is evicted.
func (r *Relay) Register(user Identity, conn Conn) {
	r.events <- event{kind: eventRegister, user: user, conn: conn}
}

func (r *Relay) Join(user Identity, room string) {
	r.events <- event{kind: eventJoin, user: user, room: room}
}

func (r *Relay) Leave(user Identity, room string) {
	r.events <- event{kind: eventLeave, user: user, room: room}
}

func (r *Relay) Send(user Identity, room, content string) {
	r.events <- event{kind: eventSend, user: user, room: room, content: content}
}

func (r *Relay) Typing(user Identity, room string) {
	r.events <- event{kind: eventTyping, user: user, room: room}
}

// Disconnect reports that conn closed. Cleanup only runs when conn still is
// the identity's current handle; a stale handle's disconnect is ignored.
func (r *Relay) Disconnect(user Identity, conn Conn) {
	r.events <- event{kind: eventDisconnect, user: user, conn: conn}
}

// ---- handlers, relay goroutine only ----

func (r *Relay) handleRegister(ev event) {
	if evicted := r.reg.Bind(ev.user.ID, ev.conn); evicted != nil {
		logger.Infof("[relay] user=%s replaced connection, evicting old", ev.user.ID)
		evicted.Kick(CloseReplaced, "signed in from another connection")
	}
}

func (r *Relay) handleJoin(ev event) {
	if !r.dir.Join(ev.room, ev.user.ID) {
		return // already a member, join is idempotent
	}
	count := r.dir.Count(ev.room)
	logger.Debugf("[relay] user=%s joined room=%s count=%d", ev.user.ID, ev.room, count)
	r.notifyPresence(ev.room, ev.user.ID, PresenceJoined, count, r.dir.Members(ev.room))
}

func (r *Relay) handleLeave(ev event) {
	remaining, ok := r.dir.Leave(ev.room, ev.user.ID)
	if !ok {
		return // not a member, leave is a no-op
	}
	logger.Debugf("[relay] user=%s left room=%s remaining=%d", ev.user.ID, ev.room, remaining)
	r.notifyPresence(ev.room, ev.user.ID, PresenceLeft, remaining, r.dir.Members(ev.room))
}

func (r *Relay) handleSend(ev event) {
	if !r.dir.IsMember(ev.room, ev.user.ID) {
		// Reject, notify the sender only, no fan-out.
		if conn, ok := r.reg.Get(ev.user.ID); ok {
			conn.Enqueue(EncodeFrame(ActionError, errorNotice{
				Code: errs.ErrNotAMember.Code,
				Msg:  errs.ErrNotAMember.Msg,
			}))
		}
		return
	}

	msg := Message{
		ID:         ids.GenerateString(),
		Seq:        r.dir.NextSeq(ev.room),
		ChatID:     ev.room,
		Content:    ev.content,
		SenderID:   ev.user.ID,
		SenderName: ev.user.Name,
		Timestamp:  r.cfg.Clock(),
	}

	// Recipient set is the membership at this instant; members without a
	// live connection are skipped, delivery is at-most-once.
	raw := EncodeFrame(ActionReceiveMessage, msg)
	var slow []string
	for _, uid := range r.dir.Members(ev.room) {
		conn, ok := r.reg.Get(uid)
		if !ok {
			continue
		}
		if !conn.Enqueue(raw) {
			slow = append(slow, uid)
		}
	}

	// A full outbound buffer means the peer stopped draining; it is kicked
	// and cleaned up like any dead connection.
	for _, uid := range slow {
		conn, ok := r.reg.Get(uid)
		if !ok {
			continue
		}
		logger.Warnf("[relay] kick slow consumer user=%s room=%s", uid, ev.room)
		conn.Kick(CloseSlowConsumer, "outbound buffer overflowed")
		r.dropConn(uid, conn)
	}

	if r.pub != nil {
		if err := r.pub.PublishMessage(msg); err != nil {
			logger.Errorf("[relay] publish message id=%s: %v", msg.ID, err)
		}
	}
}

func (r *Relay) handleTyping(ev event) {
	if !r.dir.IsMember(ev.room, ev.user.ID) {
		return
	}
	raw := EncodeFrame(ActionTyping, typingNotice{ChatID: ev.room, UserName: ev.user.Name})
	for _, uid := range r.dir.Members(ev.room) {
		if uid == ev.user.ID {
			continue
		}
		if conn, ok := r.reg.Get(uid); ok {
			conn.Enqueue(raw)
		}
	}
}

func (r *Relay) handleDisconnect(ev event) {
	if !r.reg.Unbind(ev.user.ID, ev.conn) {
		return // stale handle: a newer connection owns this identity
	}
	r.clearMemberships(ev.user.ID)
	logger.Debugf("[relay] user=%s disconnected, memberships cleaned", ev.user.ID)
}

// dropConn force-disconnects conn: unbind plus membership cleanup. No-op
// when conn is no longer the user's current handle.
func (r *Relay) dropConn(user string, conn Conn) {
	if !r.reg.Unbind(user, conn) {
		return
	}
	r.clearMemberships(user)
}

func (r *Relay) clearMemberships(user string) {
	for _, room := range r.dir.RoomsOf(user) {
		remaining, ok := r.dir.Leave(room, user)
		if !ok {
			continue
		}
		r.notifyPresence(room, user, PresenceLeft, remaining, r.dir.Members(room))
	}
}

// ---- synchronous views, answered on the relay goroutine ----

func (r *Relay) inspectSync(fn func(dir *RoomDirectory, reg *ConnRegistry)) {
	done := make(chan struct{})
	r.events <- event{kind: eventInspect, inspect: func(dir *RoomDirectory, reg *ConnRegistry) {
		fn(dir, reg)
		close(done)
	}}
	<-done
}

// Members returns the room's current membership in join order.
func (r *Relay) Members(room string) []string {
	var out []string
	r.inspectSync(func(dir *RoomDirectory, _ *ConnRegistry) {
		out = dir.Members(room)
	})
	return out
}

// RoomCountOf returns how many members a room currently has.
func (r *Relay) RoomCountOf(room string) int {
	var n int
	r.inspectSync(func(dir *RoomDirectory, _ *ConnRegistry) {
		n = dir.Count(room)
	})
	return n
}

// Connected reports whether the identity has a live connection.
func (r *Relay) Connected(user string) bool {
	var ok bool
	r.inspectSync(func(_ *RoomDirectory, reg *ConnRegistry) {
		_, ok = reg.Get(user)
	})
	return ok
}
