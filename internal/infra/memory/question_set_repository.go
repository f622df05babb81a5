package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuestionSetLoader produces a question set for a document (e.g., an AI provider).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, req domain.GenerateRequest) (domain.QuestionSet, error)
}

// QuestionSetRepository caches generated sets with TTL to avoid repeated provider calls
// for the same document and options.
type QuestionSetRepository struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionSetRepository(loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, req domain.GenerateRequest) (domain.QuestionSet, error) {
	key := app.QuestionSetKey(req)
	if set, ok := r.lookup(key); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if set, ok := r.lookup(key); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, req)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		// placeholders stand in for a provider outage and invalid sets would fail
		// every room; both are retried against the provider next time
		if set.IsPlaceholder || app.ValidateQuestionSet(set.Questions) != nil {
			return set, nil
		}

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[key] = cachedSet{set: set, expiresAt: expiresAt}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (r *QuestionSetRepository) lookup(key string) (domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

// StaticQuestionSetLoader always returns the same set (useful for tests/demos).
type StaticQuestionSetLoader struct {
	set domain.QuestionSet
}

func NewStaticQuestionSetLoader(questions []domain.Question) *StaticQuestionSetLoader {
	return &StaticQuestionSetLoader{set: domain.QuestionSet{Questions: questions}}
}

func (l *StaticQuestionSetLoader) LoadQuestionSet(_ context.Context, req domain.GenerateRequest) (domain.QuestionSet, error) {
	questions := l.set.Questions
	if req.Count > 0 && req.Count < len(questions) {
		questions = questions[:req.Count]
	}
	return domain.QuestionSet{Questions: append([]domain.Question(nil), questions...)}, nil
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
