package service

import (
	"context"
	"time"

	chatmodel "ChatApp/module/chat/model"
	usermodel "ChatApp/module/user/model"
	errs "ChatApp/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Service struct {
	chats *mongo.Collection
	users *mongo.Collection
}

func New(chats, users *mongo.Collection) *Service {
	return &Service{chats: chats, users: users}
}

// ListForUser returns the caller's chats newest-activity first, with
// participant profiles populated.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]chatmodel.View, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, errs.ErrBadRequest.WithDetail("invalid user id")
	}

	cur, err := s.chats.Find(ctx,
		bson.M{"participants": oid},
		options.Find().SetSort(bson.D{{Key: "last_message_time", Value: -1}}),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "find chats")
	}
	defer cur.Close(ctx)

	var chats []chatmodel.Chat
	if err := cur.All(ctx, &chats); err != nil {
		return nil, errs.WrapMsg(err, "decode chats")
	}
	return s.populate(ctx, chats)
}

// CreateDirect returns the existing direct chat for the pair when one
// exists; otherwise it creates it.
func (s *Service) CreateDirect(ctx context.Context, userID, otherUserID string) (chatmodel.View, bool, error) {
	me, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return chatmodel.View{}, false, errs.ErrBadRequest.WithDetail("invalid user id")
	}
	other, err := primitive.ObjectIDFromHex(otherUserID)
	if err != nil {
		return chatmodel.View{}, false, errs.ErrBadRequest.WithDetail("invalid other user id")
	}
	if me == other {
		return chatmodel.View{}, false, errs.ErrBadRequest.WithDetail("cannot chat with yourself")
	}
	if n, err := s.users.CountDocuments(ctx, bson.M{"_id": other}); err != nil || n == 0 {
		return chatmodel.View{}, false, errs.ErrNotFound.WithDetail("other user not found")
	}

	var existing chatmodel.Chat
	err = s.chats.FindOne(ctx, bson.M{
		"participants": bson.M{"$all": []primitive.ObjectID{me, other}},
		"is_group":     false,
	}).Decode(&existing)
	if err == nil {
		views, perr := s.populate(ctx, []chatmodel.Chat{existing})
		if perr != nil {
			return chatmodel.View{}, false, perr
		}
		return views[0], false, nil
	}
	if err != mongo.ErrNoDocuments {
		return chatmodel.View{}, false, errs.WrapMsg(err, "find chat")
	}

	now := time.Now()
	chat := chatmodel.Chat{
		ID:              primitive.NewObjectID(),
		Participants:    []primitive.ObjectID{me, other},
		IsGroup:         false,
		LastMessageTime: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.chats.InsertOne(ctx, chat); err != nil {
		return chatmodel.View{}, false, errs.WrapMsg(err, "insert chat")
	}
	views, err := s.populate(ctx, []chatmodel.Chat{chat})
	if err != nil {
		return chatmodel.View{}, false, err
	}
	return views[0], true, nil
}

// IsParticipant guards message history and search access.
func (s *Service) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	cid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return false, errs.ErrBadRequest.WithDetail("invalid chat id")
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, errs.ErrBadRequest.WithDetail("invalid user id")
	}
	n, err := s.chats.CountDocuments(ctx, bson.M{"_id": cid, "participants": uid})
	if err != nil {
		return false, errs.WrapMsg(err, "check participant")
	}
	return n > 0, nil
}

// ChatIDsOf returns every chat id the user participates in (search scope).
func (s *Service) ChatIDsOf(ctx context.Context, userID string) ([]primitive.ObjectID, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, errs.ErrBadRequest.WithDetail("invalid user id")
	}
	cur, err := s.chats.Find(ctx, bson.M{"participants": uid},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find chats")
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.WrapMsg(err, "decode chat id")
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// TouchLastMessage bumps a chat's activity marker; called by the message
// store consumer after persisting a relayed message.
func (s *Service) TouchLastMessage(ctx context.Context, chatID, preview string, at time.Time) error {
	cid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return errs.ErrBadRequest.WithDetail("invalid chat id")
	}
	_, err = s.chats.UpdateByID(ctx, cid, bson.M{"$set": bson.M{
		"last_message":      preview,
		"last_message_time": at,
		"updated_at":        time.Now(),
	}})
	return errs.Wrap(err)
}

func (s *Service) populate(ctx context.Context, chats []chatmodel.Chat) ([]chatmodel.View, error) {
	idSet := map[primitive.ObjectID]struct{}{}
	for _, c := range chats {
		for _, p := range c.Participants {
			idSet[p] = struct{}{}
		}
	}
	ids := make([]primitive.ObjectID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	profiles := map[primitive.ObjectID]usermodel.Public{}
	if len(ids) > 0 {
		cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return nil, errs.WrapMsg(err, "find participants")
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var u usermodel.User
			if err := cur.Decode(&u); err != nil {
				return nil, errs.WrapMsg(err, "decode participant")
			}
			profiles[u.ID] = u.Public()
		}
		if err := cur.Err(); err != nil {
			return nil, errs.Wrap(err)
		}
	}

	views := make([]chatmodel.View, 0, len(chats))
	for _, c := range chats {
		v := chatmodel.View{Chat: c}
		for _, p := range c.Participants {
			if pub, ok := profiles[p]; ok {
				v.Participants = append(v.Participants, pub)
			}
		}
		views = append(views, v)
	}
	return views, nil
}
