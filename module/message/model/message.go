package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const CollMessages = "messages"

// Message is the durable record of a relayed message. The relay-assigned id
// is kept so replays from the pipeline stay idempotent.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RelayID    string             `bson:"relay_id" json:"id"`
	ChatID     primitive.ObjectID `bson:"chat" json:"chatId"`
	SenderID   primitive.ObjectID `bson:"sender" json:"senderId"`
	SenderName string             `bson:"sender_name" json:"senderName"`
	Content    string             `bson:"content" json:"content"`
	Seq        int64              `bson:"seq" json:"seq"`
	IsEdited   bool               `bson:"is_edited" json:"isEdited"`
	EditedAt   *time.Time         `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"timestamp"`
}

// Pagination mirrors the shape the frontend consumes.
type Pagination struct {
	Total       int64 `json:"total"`
	Pages       int64 `json:"pages"`
	CurrentPage int64 `json:"currentPage"`
}
