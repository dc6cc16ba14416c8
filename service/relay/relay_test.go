package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeConn records everything the relay delivers to it.
type fakeConn struct {
	mu       sync.Mutex
	frames   []ServerFrame
	kicks    int
	kickCode int
	full     bool // when set, Enqueue reports a full buffer
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (c *fakeConn) Enqueue(data []byte) bool {
	if data == nil {
		return true
	}
	c.mu.Lock()
	full := c.full
	c.mu.Unlock()
	if full {
		return false
	}
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		panic("relay emitted an undecodable frame: " + err.Error())
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) Kick(code int, reason string) {
	c.mu.Lock()
	c.kicks++
	if c.kicks == 1 {
		c.kickCode = code
	}
	c.mu.Unlock()
}

func (c *fakeConn) kickedWith() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kicks, c.kickCode
}

func (c *fakeConn) byAction(action string) []ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ServerFrame
	for _, f := range c.frames {
		if f.Action == action {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) messages(t *testing.T) []Message {
	t.Helper()
	var out []Message
	for _, f := range c.byAction(ActionReceiveMessage) {
		var m Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			t.Fatalf("decode message payload: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) kicked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kicks
}

// recordingSink captures presence events in emission order.
type recordingSink struct {
	mu     sync.Mutex
	events []PresenceEvent
}

func (s *recordingSink) Presence(ev PresenceEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) all() []PresenceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PresenceEvent(nil), s.events...)
}

// recordingPublisher captures the persistence pipeline's input.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []Message
}

func (p *recordingPublisher) PublishMessage(m Message) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, m)
	p.mu.Unlock()
	return nil
}

func startRelay(t *testing.T, cfg Config) *Relay {
	t.Helper()
	r := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	return r
}

// sync waits until every previously enqueued event has been processed.
func (r *Relay) sync() {
	r.inspectSync(func(*RoomDirectory, *ConnRegistry) {})
}

var (
	alice = Identity{ID: "alice", Name: "Alice"}
	bob   = Identity{ID: "bob", Name: "Bob"}
	carol = Identity{ID: "carol", Name: "Carol"}
)

func TestSendFansOutToAllMembers(t *testing.T) {
	r := startRelay(t, Config{Clock: func() time.Time { return time.Unix(1700000000, 0) }})

	ca, cb, cc := newFakeConn(), newFakeConn(), newFakeConn()
	r.Register(alice, ca)
	r.Register(bob, cb)
	r.Register(carol, cc)
	r.Join(alice, "room-1")
	r.Join(bob, "room-1")
	r.Send(alice, "room-1", "hi")
	r.sync()

	am, bm := ca.messages(t), cb.messages(t)
	if len(am) != 1 || len(bm) != 1 {
		t.Fatalf("message counts = (%d, %d), want (1, 1)", len(am), len(bm))
	}
	if am[0].ID == "" || am[0].ID != bm[0].ID {
		t.Fatalf("recipients saw ids %q and %q, want one identical id", am[0].ID, bm[0].ID)
	}
	if am[0].SenderID != "alice" || am[0].SenderName != "Alice" || am[0].Content != "hi" {
		t.Fatalf("unexpected message: %+v", am[0])
	}
	if am[0].Seq != 1 {
		t.Fatalf("seq = %d, want 1", am[0].Seq)
	}
	if got := cc.messages(t); len(got) != 0 {
		t.Fatalf("carol never joined but received %d messages", len(got))
	}
}

func TestSendRequiresMembership(t *testing.T) {
	r := startRelay(t, Config{})

	ca, cb := newFakeConn(), newFakeConn()
	r.Register(alice, ca)
	r.Register(bob, cb)
	r.Join(bob, "room-1")
	r.Send(alice, "room-1", "sneaky")
	r.sync()

	errFrames := ca.byAction(ActionError)
	if len(errFrames) != 1 {
		t.Fatalf("sender error frames = %d, want 1", len(errFrames))
	}
	var notice errorNotice
	if err := json.Unmarshal(errFrames[0].Data, &notice); err != nil {
		t.Fatalf("decode error notice: %v", err)
	}
	if notice.Code != 1400 {
		t.Fatalf("error code = %d, want 1400 (not a member)", notice.Code)
	}
	if got := cb.messages(t); len(got) != 0 {
		t.Fatalf("rejected send must produce no fan-out, bob got %d", len(got))
	}
}

func TestDisconnectCleansEveryRoom(t *testing.T) {
	sink := &recordingSink{}
	r := startRelay(t, Config{Sink: sink})

	ca, cb := newFakeConn(), newFakeConn()
	r.Register(alice, ca)
	r.Register(bob, cb)
	r.Join(alice, "room-1")
	r.Join(alice, "room-2")
	r.Join(bob, "room-1")
	r.Disconnect(alice, ca)
	r.sync()

	if r.Connected("alice") {
		t.Fatal("alice must be gone from the registry")
	}
	for _, room := range []string{"room-1", "room-2"} {
		for _, id := range r.Members(room) {
			if id == "alice" {
				t.Fatalf("alice still member of %s after disconnect", room)
			}
		}
	}

	// Sole remaining member sends; fan-out set must be {bob}.
	r.Send(bob, "room-1", "anyone here?")
	r.sync()
	if got := cb.messages(t); len(got) != 1 {
		t.Fatalf("bob messages = %d, want 1", len(got))
	}
	if got := ca.messages(t); len(got) != 0 {
		t.Fatalf("disconnected alice received %d messages", len(got))
	}

	// Each implicit leave produced a presence transition.
	var left int
	for _, ev := range sink.all() {
		if ev.Kind == PresenceLeft && ev.UserID == "alice" {
			left++
		}
	}
	if left != 2 {
		t.Fatalf("left events for alice = %d, want 2 (one per room)", left)
	}
}

func TestRegisterReplacementEvictsOnce(t *testing.T) {
	r := startRelay(t, Config{})

	oldConn, newConn := newFakeConn(), newFakeConn()
	r.Register(alice, oldConn)
	r.Join(alice, "room-1")
	r.Register(alice, newConn)
	r.sync()

	if got := oldConn.kicked(); got != 1 {
		t.Fatalf("old conn kicked %d times, want exactly 1", got)
	}

	// The evicted handle's read loop reports a late disconnect; it must not
	// tear down the replacement's registration or memberships.
	r.Disconnect(alice, oldConn)
	r.Send(alice, "room-1", "still here")
	r.sync()

	if !r.Connected("alice") {
		t.Fatal("stale disconnect must not unbind the new conn")
	}
	msgs := newConn.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("new conn messages = %d, want 1 (no duplicate via old conn)", len(msgs))
	}
	if got := oldConn.messages(t); len(got) != 0 {
		t.Fatalf("evicted conn received %d messages", len(got))
	}
}

func TestJoinPresenceCountsAndOrder(t *testing.T) {
	sink := &recordingSink{}
	r := startRelay(t, Config{Sink: sink})

	ca, cb := newFakeConn(), newFakeConn()
	r.Register(alice, ca)
	r.Register(bob, cb)
	r.Join(alice, "room-1")
	r.Join(bob, "room-1")
	r.Join(bob, "room-1") // idempotent, no second event
	r.sync()

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("presence events = %d, want 2", len(events))
	}
	if events[0].UserID != "alice" || events[0].UserCount != 1 {
		t.Fatalf("first event = %+v, want alice count 1", events[0])
	}
	if events[1].UserID != "bob" || events[1].UserCount != 2 {
		t.Fatalf("second event = %+v, want bob count 2", events[1])
	}

	// The joiner sees its own join; alice saw both.
	if got := len(ca.byAction(ActionUserJoined)); got != 2 {
		t.Fatalf("alice saw %d join frames, want 2", got)
	}
	if got := len(cb.byAction(ActionUserJoined)); got != 1 {
		t.Fatalf("bob saw %d join frames, want 1", got)
	}
}

func TestTypingGoesToOthersOnly(t *testing.T) {
	r := startRelay(t, Config{})

	ca, cb := newFakeConn(), newFakeConn()
	r.Register(alice, ca)
	r.Register(bob, cb)
	r.Join(alice, "room-1")
	r.Join(bob, "room-1")
	r.Typing(alice, "room-1")
	r.Typing(carol, "room-1") // not a member: silently ignored
	r.sync()

	if got := len(ca.byAction(ActionTyping)); got != 0 {
		t.Fatalf("typer received %d typing frames, want 0", got)
	}
	frames := cb.byAction(ActionTyping)
	if len(frames) != 1 {
		t.Fatalf("bob typing frames = %d, want 1", len(frames))
	}
	var n typingNotice
	if err := json.Unmarshal(frames[0].Data, &n); err != nil {
		t.Fatalf("decode typing notice: %v", err)
	}
	if n.UserName != "Alice" {
		t.Fatalf("typing userName = %q, want resolved display name", n.UserName)
	}
}

func TestOfflineMemberSkippedSilently(t *testing.T) {
	r := startRelay(t, Config{})

	cb := newFakeConn()
	r.Register(bob, cb)
	// Alice is a member without any live connection.
	r.Join(alice, "room-1")
	r.Join(bob, "room-1")
	r.Send(bob, "room-1", "hello?")
	r.sync()

	if got := cb.messages(t); len(got) != 1 {
		t.Fatalf("bob messages = %d, want 1", len(got))
	}
}

func TestSlowConsumerKickedAndCleaned(t *testing.T) {
	r := startRelay(t, Config{})

	ca, cb := newFakeConn(), newFakeConn()
	cb.full = true
	r.Register(alice, ca)
	r.Register(bob, cb)
	r.Join(alice, "room-1")
	r.Join(bob, "room-1")
	r.Join(bob, "room-2")
	r.Send(alice, "room-1", "hi")
	r.sync()

	kicks, code := cb.kickedWith()
	if kicks != 1 {
		t.Fatalf("slow conn kicked %d times, want exactly 1", kicks)
	}
	if code != CloseSlowConsumer {
		t.Fatalf("close code = %d, want %d", code, CloseSlowConsumer)
	}

	// Kicked like any dead connection: gone from registry and every room.
	if r.Connected("bob") {
		t.Fatal("slow consumer must be unbound")
	}
	for _, room := range []string{"room-1", "room-2"} {
		for _, id := range r.Members(room) {
			if id == "bob" {
				t.Fatalf("bob still member of %s after slow-consumer kick", room)
			}
		}
	}

	// The healthy member got the message, then saw bob leave.
	if got := ca.messages(t); len(got) != 1 {
		t.Fatalf("alice messages = %d, want 1", len(got))
	}
	if got := len(ca.byAction(ActionUserLeft)); got != 1 {
		t.Fatalf("alice saw %d left frames, want 1", got)
	}
}

func TestShutdownKicksGoingAway(t *testing.T) {
	r := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	c := newFakeConn()
	r.Register(alice, c)
	r.sync()
	cancel()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if kicks, code := c.kickedWith(); kicks == 1 {
			if code != CloseGoingAway {
				t.Fatalf("close code = %d, want %d", code, CloseGoingAway)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("shutdown never kicked the live connection")
}

func TestPerRoomSeqMonotonic(t *testing.T) {
	pub := &recordingPublisher{}
	r := startRelay(t, Config{Publisher: pub})

	ca := newFakeConn()
	r.Register(alice, ca)
	r.Join(alice, "room-1")
	r.Join(alice, "room-2")
	r.Send(alice, "room-1", "a")
	r.Send(alice, "room-1", "b")
	r.Send(alice, "room-2", "c")
	r.Send(alice, "room-1", "d")
	r.sync()

	bySeq := map[string][]int64{}
	pub.mu.Lock()
	for _, m := range pub.msgs {
		bySeq[m.ChatID] = append(bySeq[m.ChatID], m.Seq)
	}
	pub.mu.Unlock()

	wantRoom1 := []int64{1, 2, 3}
	for i, s := range bySeq["room-1"] {
		if s != wantRoom1[i] {
			t.Fatalf("room-1 seqs = %v, want %v", bySeq["room-1"], wantRoom1)
		}
	}
	if len(bySeq["room-2"]) != 1 || bySeq["room-2"][0] != 1 {
		t.Fatalf("room-2 seqs = %v, want [1]", bySeq["room-2"])
	}
}
