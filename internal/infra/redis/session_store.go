package redis

import (
	"context"
	"log/slog"
	"time"

	"quizly-game-service/internal/app"
	"quizly-game-service/internal/domain"
	"quizly-game-service/internal/infra/memory"

	"github.com/redis/go-redis/v9"
)

const (
	roomsKey      = "quiz:rooms"
	markerTimeout = 2 * time.Second
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Room state lives in process; the question cycle holds timers and connections
//     that cannot be shared across instances.
//   - Redis marks room liveness (quiz:room:{id}) and keeps the set of rooms this
//     instance hosts (quiz:rooms), so operators and other instances can see them.
//   - Markers are written after the registry lock is released, so a slow or absent
//     Redis never stalls matchmaking.
type SessionStore struct {
	*memory.SessionStore
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		SessionStore: memory.NewSessionStore(),
		client:       client,
		ttl:          ttl,
	}
}

func (s *SessionStore) Create(id string, options *domain.GameOptions, maxPlayers int) (*app.Session, error) {
	session, err := s.SessionStore.Create(id, options, maxPlayers)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), maxPlayers, s.ttl)
	pipe.SAdd(ctx, roomsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("mark room live", "room", id, "err", err)
	}
	return session, nil
}

func (s *SessionStore) Delete(id string) {
	if _, ok := s.SessionStore.Get(id); !ok {
		return
	}
	s.SessionStore.Delete(id)

	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, roomsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("clear room marker", "room", id, "err", err)
	}
}

// Touch refreshes the liveness marker of every hosted room.
func (s *SessionStore) Touch(ctx context.Context) error {
	rooms := s.Snapshot()
	if len(rooms) == 0 || s.ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, session := range rooms {
		pipe.Expire(ctx, s.key(session.ID()), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) key(id string) string {
	return "quiz:room:" + id
}
