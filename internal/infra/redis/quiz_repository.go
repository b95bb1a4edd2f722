package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"quizly-game-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches stored quizzes from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, ownerID, quizID string) (domain.StoredQuiz, error)
}

// QuizRepository caches stored quizzes in Redis and falls back to a loader on cache miss.
// Quizzes are stored as JSON: SET quiz:{ownerID}:{quizID} {json} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, ownerID, quizID string) (domain.StoredQuiz, error) {
	key := r.key(ownerID, quizID)
	if quiz, ok := r.cached(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, key); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, ownerID, quizID)
		if err != nil {
			return domain.StoredQuiz{}, err
		}

		data, err := json.Marshal(quiz)
		if err == nil {
			err = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		if err != nil {
			slog.Warn("cache stored quiz", "key", key, "err", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.StoredQuiz{}, err
	}
	return result.(domain.StoredQuiz), nil
}

func (r *QuizRepository) cached(ctx context.Context, key string) (domain.StoredQuiz, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("read stored quiz cache", "key", key, "err", err)
		}
		return domain.StoredQuiz{}, false
	}
	var quiz domain.StoredQuiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.StoredQuiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(ownerID, quizID string) string {
	return "quiz:" + ownerID + ":" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
