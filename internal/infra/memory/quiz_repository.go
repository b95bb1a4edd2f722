package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quizly-game-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches stored quizzes from a backing store (e.g., document DB).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, ownerID, quizID string) (domain.StoredQuiz, error)
}

// QuizRepository caches stored quizzes with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.StoredQuiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, ownerID, quizID string) (domain.StoredQuiz, error) {
	key := ownerID + "/" + quizID
	if quiz, ok := r.cached(key); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if quiz, ok := r.cached(key); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, ownerID, quizID)
		if err != nil {
			return domain.StoredQuiz{}, err
		}
		r.mu.Lock()
		r.cache[key] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.StoredQuiz{}, err
	}
	return result.(domain.StoredQuiz), nil
}

func (r *QuizRepository) cached(key string) (domain.StoredQuiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.StoredQuiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.StoredQuiz
}

func NewStaticQuizLoader(quizzes ...domain.StoredQuiz) *StaticQuizLoader {
	l := &StaticQuizLoader{quizzes: make(map[string]domain.StoredQuiz, len(quizzes))}
	for _, quiz := range quizzes {
		l.quizzes[quiz.OwnerID+"/"+quiz.ID] = quiz
	}
	return l
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, ownerID, quizID string) (domain.StoredQuiz, error) {
	if quiz, ok := l.quizzes[ownerID+"/"+quizID]; ok {
		return quiz, nil
	}
	return domain.StoredQuiz{}, domain.ErrQuizNotFound
}
