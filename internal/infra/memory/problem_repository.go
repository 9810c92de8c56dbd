package memory

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ProblemLoader fetches the problem bank from a backing store (e.g., Postgres).
type ProblemLoader interface {
	LoadProblems(ctx context.Context) ([]domain.Problem, error)
}

const bankKey = "bank"

// ProblemRepository caches the problem bank with TTL to avoid repeated DB hits
// and draws a random problem set per game.
type ProblemRepository struct {
	loader ProblemLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache cachedBank
}

type cachedBank struct {
	problems  []domain.Problem
	expiresAt time.Time
}

func NewProblemRepository(loader ProblemLoader, ttl time.Duration) *ProblemRepository {
	return &ProblemRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetProblems returns count problems drawn from the bank, or the whole bank
// when it holds fewer.
func (r *ProblemRepository) GetProblems(ctx context.Context, count int) ([]domain.Problem, error) {
	bank, err := r.bank(ctx)
	if err != nil {
		return nil, err
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return SampleProblems(bank, count, r.rnd.Intn)
}

func (r *ProblemRepository) bank(ctx context.Context) ([]domain.Problem, error) {
	now := r.clock()

	r.mu.RLock()
	if r.cache.problems != nil && r.cache.expiresAt.After(now) {
		bank := r.cache.problems
		r.mu.RUnlock()
		return bank, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(bankKey, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.cache.problems != nil && r.cache.expiresAt.After(now) {
			bank := r.cache.problems
			r.mu.RUnlock()
			return bank, nil
		}
		r.mu.RUnlock()

		bank, err := r.loader.LoadProblems(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache = cachedBank{
			problems:  bank,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

func (r *ProblemRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// SampleProblems draws count distinct problems in random order. intn must
// behave like rand.Intn.
func SampleProblems(bank []domain.Problem, count int, intn func(int) int) ([]domain.Problem, error) {
	if len(bank) == 0 {
		return nil, domain.NewError(domain.CodeProblemNotFound, "problems", nil)
	}
	if count <= 0 || count > len(bank) {
		count = len(bank)
	}
	idx := make([]int, len(bank))
	for i := range idx {
		idx[i] = i
	}
	// partial Fisher-Yates
	out := make([]domain.Problem, 0, count)
	for i := 0; i < count; i++ {
		j := i + intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, bank[idx[i]])
	}
	return out, nil
}

// StaticProblemLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticProblemLoader struct {
	problems []domain.Problem
}

func NewStaticProblemLoader(problems []domain.Problem) *StaticProblemLoader {
	return &StaticProblemLoader{problems: problems}
}

func (l *StaticProblemLoader) LoadProblems(_ context.Context) ([]domain.Problem, error) {
	if len(l.problems) == 0 {
		return nil, domain.NewError(domain.CodeProblemNotFound, "problems", nil)
	}
	out := make([]domain.Problem, len(l.problems))
	copy(out, l.problems)
	return out, nil
}

type problemFile struct {
	Problems []domain.Problem `yaml:"problems"`
}

// LoadProblemFile reads a YAML problem bank into a static loader.
func LoadProblemFile(path string) (*StaticProblemLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}
	var file problemFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse problem file: %w", err)
	}
	return NewStaticProblemLoader(file.Problems), nil
}
