package relay

import (
	"context"
	"encoding/json"
	"time"

	"ChatApp/logger"
)

// Inbound actions accepted over the websocket.
const (
	ActionJoinRoom    = "join_room"
	ActionLeaveRoom   = "leave_room"
	ActionSendMessage = "send_message"
	ActionUserTyping  = "user_typing"
)

// Outbound actions fanned out to room members.
const (
	ActionReceiveMessage = "receive_message"
	ActionUserJoined     = "user_joined"
	ActionUserLeft       = "user_left"
	ActionTyping         = "user_typing"
	ActionError          = "error"
)

// Identity is the durable client identity resolved before any event is
// accepted. Name is resolved server-side and is the only display name the
// relay ever fans out.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IdentityResolver authenticates a connecting transport and yields the
// caller's Identity. Implemented by the user service.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// ClientFrame is one decoded inbound websocket frame.
type ClientFrame struct {
	Action  string `json:"action"`
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// ServerFrame is the envelope for every outbound frame.
type ServerFrame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Message is the transient relay message. The relay assigns ID, Seq and
// Timestamp at receipt; durability belongs to the message store.
type Message struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	ChatID     string    `json:"chatId"`
	Content    string    `json:"content"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
	IsEdited   bool      `json:"isEdited"`
}

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceEvent is derived from a membership mutation, never stored.
type PresenceEvent struct {
	ChatID    string       `json:"chatId"`
	UserID    string       `json:"userId"`
	Kind      PresenceKind `json:"-"`
	UserCount int          `json:"userCount"`
}

type typingNotice struct {
	ChatID   string `json:"chatId"`
	UserName string `json:"userName"`
}

type errorNotice struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// EncodeFrame marshals an outbound frame. Payloads are our own structs, so a
// marshal failure is a programming error; it is logged and yields nil, which
// conn enqueue treats as a no-op.
func EncodeFrame(action string, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[relay] encode %s payload: %v", action, err)
		return nil
	}
	raw, err := json.Marshal(ServerFrame{Action: action, Data: data})
	if err != nil {
		logger.Errorf("[relay] encode %s frame: %v", action, err)
		return nil
	}
	return raw
}

type eventKind int

const (
	eventRegister eventKind = iota
	eventJoin
	eventLeave
	eventSend
	eventTyping
	eventDisconnect
	eventInspect
)

// event is one unit of work for the relay's single-writer loop.
type event struct {
	kind    eventKind
	user    Identity
	room    string
	content string
	conn    Conn
	inspect func(dir *RoomDirectory, reg *ConnRegistry)
}
