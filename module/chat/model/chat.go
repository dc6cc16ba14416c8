package model

import (
	"time"

	usermodel "ChatApp/module/user/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const CollChats = "chats"

type Chat struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Participants    []primitive.ObjectID `bson:"participants" json:"participantIds"`
	Name            string               `bson:"name,omitempty" json:"name,omitempty"`
	IsGroup         bool                 `bson:"is_group" json:"isGroup"`
	LastMessage     string               `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	LastMessageTime time.Time            `bson:"last_message_time" json:"lastMessageTime"`
	CreatedAt       time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time            `bson:"updated_at" json:"updatedAt"`
}

// View is a chat with its participant profiles populated.
type View struct {
	Chat         `bson:",inline"`
	Participants []usermodel.Public `json:"participants"`
}
