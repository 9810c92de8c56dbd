package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"arena-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProblemLoader loads the problem bank from JSONB rows in Postgres.
type ProblemLoader struct {
	pool *pgxpool.Pool
}

func NewProblemLoader(pool *pgxpool.Pool) *ProblemLoader {
	return &ProblemLoader{pool: pool}
}

func (l *ProblemLoader) LoadProblems(ctx context.Context) ([]domain.Problem, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM problems ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load problems: %w", err)
	}
	defer rows.Close()

	var bank []domain.Problem
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problem, err := decodeProblem(raw)
		if err != nil {
			return nil, err
		}
		bank = append(bank, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load problems: %w", err)
	}
	if len(bank) == 0 {
		return nil, domain.NewError(domain.CodeProblemNotFound, "problems", nil)
	}
	return bank, nil
}

func decodeProblem(raw []byte) (domain.Problem, error) {
	var problem domain.Problem
	if err := json.Unmarshal(raw, &problem); err != nil {
		return domain.Problem{}, fmt.Errorf("unmarshal problem: %w", err)
	}
	return problem, nil
}
