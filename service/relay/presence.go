package relay

// PresenceSink receives every presence transition the relay derives. Invoked
// synchronously on the relay goroutine; implementations must not block.
type PresenceSink interface {
	Presence(ev PresenceEvent)
}

// notifyPresence derives the PresenceEvent for one membership transition and
// delivers it to the given recipients and the configured sink. Called at the
// point of mutation, so observers always see a room's join before any
// message fanned out to that room.
func (r *Relay) notifyPresence(room string, user string, kind PresenceKind, count int, recipients []string) {
	ev := PresenceEvent{ChatID: room, UserID: user, Kind: kind, UserCount: count}

	action := ActionUserJoined
	if kind == PresenceLeft {
		action = ActionUserLeft
	}
	raw := EncodeFrame(action, ev)
	for _, uid := range recipients {
		if conn, ok := r.reg.Get(uid); ok {
			conn.Enqueue(raw)
		}
	}

	if r.sink != nil {
		r.sink.Presence(ev)
	}
}
