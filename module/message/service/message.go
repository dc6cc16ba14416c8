package service

import (
	"context"

	msgmodel "ChatApp/module/message/model"
	"ChatApp/service/relay"
	errs "ChatApp/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Service struct {
	coll *mongo.Collection
}

func New(coll *mongo.Collection) *Service {
	return &Service{coll: coll}
}

// History pages through a chat's messages. Pages count backwards from the
// newest message; the returned slice is ascending so the client appends.
func (s *Service) History(ctx context.Context, chatID string, page, limit int64) ([]msgmodel.Message, msgmodel.Pagination, error) {
	cid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, msgmodel.Pagination{}, errs.ErrBadRequest.WithDetail("invalid chat id")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := bson.M{"chat": cid}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, msgmodel.Pagination{}, errs.WrapMsg(err, "count messages")
	}

	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page-1)*limit).
		SetLimit(limit))
	if err != nil {
		return nil, msgmodel.Pagination{}, errs.WrapMsg(err, "find messages")
	}
	defer cur.Close(ctx)

	var desc []msgmodel.Message
	if err := cur.All(ctx, &desc); err != nil {
		return nil, msgmodel.Pagination{}, errs.WrapMsg(err, "decode messages")
	}

	// Reverse into ascending order.
	asc := make([]msgmodel.Message, len(desc))
	for i, m := range desc {
		asc[len(desc)-1-i] = m
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return asc, msgmodel.Pagination{Total: total, Pages: pages, CurrentPage: page}, nil
}

// Search runs a case-insensitive content match scoped to the given chat ids
// (the caller's chats), capped at 50 hits, newest first.
func (s *Service) Search(ctx context.Context, q string, chatIDs []primitive.ObjectID) ([]msgmodel.Message, error) {
	if q == "" || len(chatIDs) == 0 {
		return []msgmodel.Message{}, nil
	}
	filter := bson.M{
		"chat":    bson.M{"$in": chatIDs},
		"content": bson.M{"$regex": q, "$options": "i"},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(50))
	if err != nil {
		return nil, errs.WrapMsg(err, "search messages")
	}
	defer cur.Close(ctx)

	var out []msgmodel.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages")
	}
	return out, nil
}

// SaveRelayed persists one message from the relay pipeline. Upsert on the
// relay id keeps redelivery idempotent.
func (s *Service) SaveRelayed(ctx context.Context, m relay.Message) error {
	cid, err := primitive.ObjectIDFromHex(m.ChatID)
	if err != nil {
		return errs.ErrBadRequest.WithDetail("invalid chat id on relayed message")
	}
	sid, err := primitive.ObjectIDFromHex(m.SenderID)
	if err != nil {
		return errs.ErrBadRequest.WithDetail("invalid sender id on relayed message")
	}

	doc := msgmodel.Message{
		RelayID:    m.ID,
		ChatID:     cid,
		SenderID:   sid,
		SenderName: m.SenderName,
		Content:    m.Content,
		Seq:        m.Seq,
		IsEdited:   m.IsEdited,
		CreatedAt:  m.Timestamp,
	}
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"relay_id": m.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	return errs.Wrap(err)
}
