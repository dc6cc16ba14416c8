package relay

// Conn is one live transport connection, exclusively owned by the registry
// once bound. Enqueue must never block: implementations buffer writes behind
// a single writer goroutine. Kick closes the peer with a close code exactly
// once; repeated calls are no-ops.
type Conn interface {
	Enqueue(data []byte) bool
	Kick(code int, reason string)
}

// Close codes sent on Kick. Clients treat Replaced and AuthRequired as
// terminal; GoingAway and SlowConsumer are reconnectable.
const (
	CloseGoingAway    = 1001 // RFC 6455 going-away, sent on server shutdown
	CloseReplaced     = 4000 // a newer connection bound the same identity
	CloseAuthRequired = 4001 // handshake failed identity resolution
	CloseSlowConsumer = 4002 // outbound buffer overflowed
)

// ConnRegistry maps a durable identity to its single current connection.
// Last connection wins; the previous handle is handed back for eviction.
// Plain data structure, relay-goroutine access only.
type ConnRegistry struct {
	conns map[string]Conn
}

func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]Conn)}
}

// Bind registers conn as the user's current connection and returns the
// replaced handle, if any. The caller kicks the evicted handle; Bind itself
// never performs I/O.
func (r *ConnRegistry) Bind(user string, conn Conn) (evicted Conn) {
	old, ok := r.conns[user]
	r.conns[user] = conn
	if ok && old != conn {
		return old
	}
	return nil
}

// Unbind removes the binding only when conn still is the current handle, so
// a late disconnect from an evicted connection cannot unbind its successor.
func (r *ConnRegistry) Unbind(user string, conn Conn) bool {
	cur, ok := r.conns[user]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, user)
	return true
}

func (r *ConnRegistry) Get(user string) (Conn, bool) {
	c, ok := r.conns[user]
	return c, ok
}

func (r *ConnRegistry) Len() int { return len(r.conns) }

func (r *ConnRegistry) each(fn func(user string, conn Conn)) {
	for user, conn := range r.conns {
		fn(user, conn)
	}
}
