package service

import (
	"context"
	"strings"
	"time"

	usermodel "ChatApp/module/user/model"
	"ChatApp/service/relay"
	errs "ChatApp/tools/errs"
	jwtlib "ChatApp/tools/security"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// Service owns the users collection and token issuance. It doubles as the
// relay's identity resolver: a websocket token resolves to the stored user,
// never to client-supplied display fields.
type Service struct {
	coll    *mongo.Collection
	jwtOpts jwtlib.Options
}

func New(coll *mongo.Collection, jwtOpts jwtlib.Options) *Service {
	return &Service{coll: coll, jwtOpts: jwtOpts}
}

type UpdateParams struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio"`
}

func (s *Service) Register(ctx context.Context, email, name, password string) (usermodel.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || name == "" || len(password) < 6 {
		return usermodel.User{}, "", errs.ErrBadRequest.WithDetail("email, name and a 6+ char password are required")
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return usermodel.User{}, "", errs.WrapMsg(err, "count users")
	}
	if n > 0 {
		return usermodel.User{}, "", errs.ErrConflict.WithDetail("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return usermodel.User{}, "", errs.WrapMsg(err, "hash password")
	}

	now := time.Now()
	u := usermodel.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Name:      name,
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		return usermodel.User{}, "", errs.WrapMsg(err, "insert user")
	}

	token, _, err := jwtlib.Generate(s.jwtOpts, u.ID.Hex())
	if err != nil {
		return usermodel.User{}, "", errs.WrapMsg(err, "issue token")
	}
	return u, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (usermodel.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var u usermodel.User
	err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		// Same error for unknown email and bad password.
		return usermodel.User{}, "", errs.ErrUnauthorized.WithDetail("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return usermodel.User{}, "", errs.ErrUnauthorized.WithDetail("invalid credentials")
	}

	token, _, err := jwtlib.Generate(s.jwtOpts, u.ID.Hex())
	if err != nil {
		return usermodel.User{}, "", errs.WrapMsg(err, "issue token")
	}
	return u, token, nil
}

// LoginGoogle upserts a Google-authenticated user and issues a token. The
// frontend completes the OAuth flow and posts the verified profile; an
// existing account with the same email gets the Google id linked to it.
func (s *Service) LoginGoogle(ctx context.Context, googleID, email, name, avatar string) (usermodel.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if googleID == "" || email == "" || name == "" {
		return usermodel.User{}, "", errs.ErrBadRequest.WithDetail("googleId, email and name are required")
	}

	var u usermodel.User
	err := s.coll.FindOne(ctx, bson.M{"$or": []bson.M{
		{"google_id": googleID},
		{"email": email},
	}}).Decode(&u)
	switch {
	case err == mongo.ErrNoDocuments:
		now := time.Now()
		u = usermodel.User{
			ID:        primitive.NewObjectID(),
			GoogleID:  googleID,
			Email:     email,
			Name:      name,
			Avatar:    avatar,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.coll.InsertOne(ctx, u); err != nil {
			return usermodel.User{}, "", errs.WrapMsg(err, "insert user")
		}
	case err != nil:
		return usermodel.User{}, "", errs.WrapMsg(err, "find user")
	case u.GoogleID == "":
		set := bson.M{"google_id": googleID, "updated_at": time.Now()}
		if avatar != "" {
			set["avatar"] = avatar
		}
		err = s.coll.FindOneAndUpdate(ctx,
			bson.M{"_id": u.ID},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&u)
		if err != nil {
			return usermodel.User{}, "", errs.WrapMsg(err, "link google account")
		}
	}

	token, _, err := jwtlib.Generate(s.jwtOpts, u.ID.Hex())
	if err != nil {
		return usermodel.User{}, "", errs.WrapMsg(err, "issue token")
	}
	return u, token, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (usermodel.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return usermodel.User{}, errs.ErrBadRequest.WithDetail("invalid user id")
	}
	var u usermodel.User
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&u); err != nil {
		return usermodel.User{}, errs.ErrNotFound.WithDetail("user not found")
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p UpdateParams) (usermodel.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return usermodel.User{}, errs.ErrBadRequest.WithDetail("invalid user id")
	}

	set := bson.M{"updated_at": time.Now()}
	if p.Name != nil && *p.Name != "" {
		set["name"] = *p.Name
	}
	if p.Avatar != nil {
		set["avatar"] = *p.Avatar
	}
	if p.Bio != nil {
		set["bio"] = *p.Bio
	}

	var u usermodel.User
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return usermodel.User{}, errs.ErrNotFound.WithDetail("user not found")
	}
	return u, nil
}

// Search matches name or email by case-insensitive substring, excluding the
// caller, capped at 10 results.
func (s *Service) Search(ctx context.Context, q, excludeID string) ([]usermodel.Public, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []usermodel.Public{}, nil
	}
	filter := bson.M{
		"$or": []bson.M{
			{"name": bson.M{"$regex": q, "$options": "i"}},
			{"email": bson.M{"$regex": q, "$options": "i"}},
		},
	}
	if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}

	cur, err := s.coll.Find(ctx, filter, options.Find().SetLimit(10))
	if err != nil {
		return nil, errs.WrapMsg(err, "search users")
	}
	defer cur.Close(ctx)

	out := []usermodel.Public{}
	for cur.Next(ctx) {
		var u usermodel.User
		if err := cur.Decode(&u); err != nil {
			return nil, errs.WrapMsg(err, "decode user")
		}
		out = append(out, u.Public())
	}
	return out, cur.Err()
}

// Resolve implements relay.IdentityResolver.
func (s *Service) Resolve(ctx context.Context, token string) (relay.Identity, error) {
	if token == "" {
		return relay.Identity{}, errs.ErrAuthRequired
	}
	userID, err := jwtlib.Verify(s.jwtOpts, token)
	if err != nil {
		return relay.Identity{}, errs.ErrAuthRequired.WithDetail("token rejected")
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return relay.Identity{}, errs.ErrAuthRequired.WithDetail("unknown user")
	}
	return relay.Identity{ID: u.ID.Hex(), Name: u.Name}, nil
}
