package postgres

import (
	"context"
	"fmt"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type submissionHistoryRow struct {
	bun.BaseModel `bun:"table:submission_histories,alias:sh"`

	ID          int64         `bun:"id,pk,autoincrement"`
	UserID      string        `bun:"user_id,notnull"`
	ProblemID   int64         `bun:"problem_id,notnull"`
	Round       int           `bun:"round,notnull"`
	Answer      domain.Answer `bun:"answer,type:jsonb"`
	SubmitTime  int           `bun:"submit_time,notnull"`
	SubmittedAt time.Time     `bun:"submitted_at,notnull"`
}

type gameResultRow struct {
	bun.BaseModel `bun:"table:game_results,alias:gr"`

	ID         int64         `bun:"id,pk,autoincrement"`
	RoomID     string        `bun:"room_id,notnull"`
	Ranking    []domain.Rank `bun:"ranking,type:jsonb"`
	FinishedAt time.Time     `bun:"finished_at,notnull"`
}

// ResultStore persists finished-game data with bun.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) SendSubmissionHistory(ctx context.Context, userID string, history []domain.Submission) error {
	rows := historyRows(userID, history)
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert submission history: %w", err)
	}
	return nil
}

func (s *ResultStore) SendFinalResult(ctx context.Context, result domain.GameResult) error {
	row := gameResultRow{
		RoomID:     result.RoomID,
		Ranking:    result.Ranking,
		FinishedAt: result.FinishedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}
	return nil
}

// GameResults returns the stored results of a room, oldest first.
func (s *ResultStore) GameResults(ctx context.Context, roomID string) ([]domain.GameResult, error) {
	var rows []gameResultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select game results: %w", err)
	}
	out := make([]domain.GameResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.GameResult{RoomID: row.RoomID, Ranking: row.Ranking, FinishedAt: row.FinishedAt})
	}
	return out, nil
}

// SubmissionHistory returns every stored submission of a user.
func (s *ResultStore) SubmissionHistory(ctx context.Context, userID string) ([]domain.Submission, error) {
	var rows []submissionHistoryRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select submission history: %w", err)
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Submission{
			UserID:      row.UserID,
			ProblemID:   row.ProblemID,
			Round:       row.Round,
			Answer:      row.Answer,
			SubmitTime:  row.SubmitTime,
			SubmittedAt: row.SubmittedAt,
		})
	}
	return out, nil
}

func historyRows(userID string, history []domain.Submission) []submissionHistoryRow {
	rows := make([]submissionHistoryRow, 0, len(history))
	for _, sub := range history {
		rows = append(rows, submissionHistoryRow{
			UserID:      userID,
			ProblemID:   sub.ProblemID,
			Round:       sub.Round,
			Answer:      sub.Answer,
			SubmitTime:  sub.SubmitTime,
			SubmittedAt: sub.SubmittedAt,
		})
	}
	return rows
}
