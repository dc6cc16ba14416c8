package storage

import (
	"context"
	"time"

	"ChatApp/logger"
	"ChatApp/service/relay"
	"ChatApp/tools/safe"

	"github.com/redis/go-redis/v9"
)

const (
	keyRoomPrefix = "online:room:" // set of member ids per room
	keyUserPrefix = "online:user:" // per-user online flag with TTL
)

// Room membership leave: remove the member and drop the whole set once it is
// empty, in one round trip.
var luaLeaveRoom = redis.NewScript(`
local k = KEYS[1]
redis.call('SREM', k, ARGV[1])
local n = redis.call('SCARD', k)
if n == 0 then
  redis.call('DEL', k)
end
return n
`)

// Store mirrors the relay's presence state into redis so the REST API can
// answer online-count queries without touching the relay goroutine.
type Store struct {
	rdb     redis.UniversalClient
	userTTL time.Duration
}

func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, userTTL: 2 * time.Hour}
}

func (s *Store) MarkOnline(ctx context.Context, userID string) error {
	return s.rdb.Set(ctx, keyUserPrefix+userID, "1", s.userTTL).Err()
}

func (s *Store) MarkOffline(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, keyUserPrefix+userID).Err()
}

func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyUserPrefix+userID).Result()
	return n > 0, err
}

func (s *Store) JoinRoom(ctx context.Context, roomID, userID string) (int64, error) {
	key := keyRoomPrefix + roomID
	if err := s.rdb.SAdd(ctx, key, userID).Err(); err != nil {
		return 0, err
	}
	return s.rdb.SCard(ctx, key).Result()
}

func (s *Store) LeaveRoom(ctx context.Context, roomID, userID string) (int64, error) {
	return luaLeaveRoom.Run(ctx, s.rdb, []string{keyRoomPrefix + roomID}, userID).Int64()
}

func (s *Store) RoomCount(ctx context.Context, roomID string) (int64, error) {
	return s.rdb.SCard(ctx, keyRoomPrefix+roomID).Result()
}

// Presence implements relay.PresenceSink. The relay invokes sinks on its
// event goroutine, so the redis write happens on a spawned goroutine with a
// short deadline; presence mirroring is best effort.
func (s *Store) Presence(ev relay.PresenceEvent) {
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var err error
		switch ev.Kind {
		case relay.PresenceJoined:
			_, err = s.JoinRoom(ctx, ev.ChatID, ev.UserID)
			if err == nil {
				err = s.MarkOnline(ctx, ev.UserID)
			}
		case relay.PresenceLeft:
			_, err = s.LeaveRoom(ctx, ev.ChatID, ev.UserID)
		}
		if err != nil {
			logger.Warnf("[online] mirror presence room=%s user=%s: %v", ev.ChatID, ev.UserID, err)
		}
	})
}
