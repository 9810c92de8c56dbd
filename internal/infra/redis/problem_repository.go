package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const problemBankKey = "quiz:problems"

// ProblemRepository caches the problem bank in Redis as one JSON value and
// falls back to a loader on cache miss.
type ProblemRepository struct {
	client *redis.Client
	loader memory.ProblemLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewProblemRepository(client *redis.Client, loader memory.ProblemLoader, ttl time.Duration) *ProblemRepository {
	return &ProblemRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ProblemRepository) GetProblems(ctx context.Context, count int) ([]domain.Problem, error) {
	bank, err := r.bank(ctx)
	if err != nil {
		return nil, err
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return memory.SampleProblems(bank, count, r.rnd.Intn)
}

func (r *ProblemRepository) bank(ctx context.Context) ([]domain.Problem, error) {
	if bank, ok := r.cached(ctx); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(problemBankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := r.cached(ctx); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadProblems(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(bank); err == nil {
			_ = r.client.Set(ctx, problemBankKey, raw, r.ttlWithJitter()).Err()
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

func (r *ProblemRepository) cached(ctx context.Context) ([]domain.Problem, bool) {
	raw, err := r.client.Get(ctx, problemBankKey).Bytes()
	if err != nil {
		return nil, false
	}
	var bank []domain.Problem
	if err := json.Unmarshal(raw, &bank); err != nil || len(bank) == 0 {
		return nil, false
	}
	return bank, true
}

func (r *ProblemRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
