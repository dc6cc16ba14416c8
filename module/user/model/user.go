package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const CollUsers = "users"

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Name      string             `bson:"name" json:"name"`
	Password  string             `bson:"password,omitempty" json:"-"`
	GoogleID  string             `bson:"google_id,omitempty" json:"-"`
	Avatar    string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio       string             `bson:"bio,omitempty" json:"bio,omitempty"`
	IsOnline  bool               `bson:"is_online" json:"isOnline"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Public is the projection safe to hand to other users.
type Public struct {
	ID     primitive.ObjectID `bson:"_id" json:"id"`
	Name   string             `bson:"name" json:"name"`
	Email  string             `bson:"email" json:"email"`
	Avatar string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

func (u User) Public() Public {
	return Public{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}
