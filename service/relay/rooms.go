package relay

// RoomDirectory maps rooms to their member identities plus the reverse
// identity-to-rooms index used for O(rooms-of-user) cleanup on disconnect.
// It is a plain data structure: all access happens on the relay goroutine.
type RoomDirectory struct {
	byRoom map[string]*roomState
	byUser map[string]map[string]struct{}
}

type roomState struct {
	members map[string]struct{}
	order   []string // join order, drives deterministic fan-out
	seq     int64
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		byRoom: make(map[string]*roomState),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Join adds user to room. Returns false when the user was already a member.
// The room entry is created on first join.
func (d *RoomDirectory) Join(room, user string) bool {
	st := d.byRoom[room]
	if st == nil {
		st = &roomState{members: make(map[string]struct{})}
		d.byRoom[room] = st
	}
	if _, ok := st.members[user]; ok {
		return false
	}
	st.members[user] = struct{}{}
	st.order = append(st.order, user)

	rooms := d.byUser[user]
	if rooms == nil {
		rooms = make(map[string]struct{})
		d.byUser[user] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Leave removes user from room, dropping the room entry once empty. Returns
// the remaining member count and whether the user actually was a member.
func (d *RoomDirectory) Leave(room, user string) (int, bool) {
	st := d.byRoom[room]
	if st == nil {
		return 0, false
	}
	if _, ok := st.members[user]; !ok {
		return len(st.members), false
	}
	delete(st.members, user)
	for i, id := range st.order {
		if id == user {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}

	if rooms := d.byUser[user]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(d.byUser, user)
		}
	}

	if len(st.members) == 0 {
		delete(d.byRoom, room)
		return 0, true
	}
	return len(st.members), true
}

// Members returns the room's member ids in join order. The returned slice is
// a copy: the caller fans out while the directory may mutate on later events.
func (d *RoomDirectory) Members(room string) []string {
	st := d.byRoom[room]
	if st == nil {
		return nil
	}
	out := make([]string, len(st.order))
	copy(out, st.order)
	return out
}

func (d *RoomDirectory) IsMember(room, user string) bool {
	st := d.byRoom[room]
	if st == nil {
		return false
	}
	_, ok := st.members[user]
	return ok
}

func (d *RoomDirectory) Count(room string) int {
	st := d.byRoom[room]
	if st == nil {
		return 0
	}
	return len(st.members)
}

// RoomsOf returns every room the user participates in.
func (d *RoomDirectory) RoomsOf(user string) []string {
	rooms := d.byUser[user]
	out := make([]string, 0, len(rooms))
	for room := range rooms {
		out = append(out, room)
	}
	return out
}

// NextSeq allocates the next per-room message sequence number. Rooms that
// were emptied and recreated restart at 1; the snowflake message id keeps
// global ordering.
func (d *RoomDirectory) NextSeq(room string) int64 {
	st := d.byRoom[room]
	if st == nil {
		return 0
	}
	st.seq++
	return st.seq
}

func (d *RoomDirectory) RoomCount() int { return len(d.byRoom) }
