package memory

import (
	"context"
	"sync"

	"arena-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// EventRecorder keeps published events in memory and logs them. It is the
// event channel when no broker is configured.
type EventRecorder struct {
	log *zap.Logger

	mu      sync.Mutex
	started []domain.GameStarted
}

func NewEventRecorder(log *zap.Logger) *EventRecorder {
	return &EventRecorder{log: log}
}

func (r *EventRecorder) PublishGameStarted(_ context.Context, evt domain.GameStarted) error {
	r.mu.Lock()
	r.started = append(r.started, evt)
	r.mu.Unlock()
	r.log.Info("game started event", zap.String("room_id", evt.RoomID))
	return nil
}

// Started returns every recorded start event.
func (r *EventRecorder) Started() []domain.GameStarted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GameStarted(nil), r.started...)
}

// ResultRecorder keeps finished-game data in memory and logs it. It is the
// result sink when neither RabbitMQ nor Postgres is configured.
type ResultRecorder struct {
	log *zap.Logger

	mu        sync.Mutex
	histories map[string][][]domain.Submission
	results   []domain.GameResult
}

func NewResultRecorder(log *zap.Logger) *ResultRecorder {
	return &ResultRecorder{log: log, histories: make(map[string][][]domain.Submission)}
}

func (r *ResultRecorder) SendSubmissionHistory(_ context.Context, userID string, history []domain.Submission) error {
	r.mu.Lock()
	r.histories[userID] = append(r.histories[userID], append([]domain.Submission(nil), history...))
	r.mu.Unlock()
	r.log.Info("submission history", zap.String("user_id", userID), zap.Int("submissions", len(history)))
	return nil
}

func (r *ResultRecorder) SendFinalResult(_ context.Context, result domain.GameResult) error {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
	r.log.Info("final result", zap.String("room_id", result.RoomID), zap.Int("ranked", len(result.Ranking)))
	return nil
}

// Histories returns each history batch sent for userID.
func (r *ResultRecorder) Histories(userID string) [][]domain.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.Submission(nil), r.histories[userID]...)
}

// HistoryCalls counts history sends across all users.
func (r *ResultRecorder) HistoryCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, batches := range r.histories {
		n += len(batches)
	}
	return n
}

// Results returns every final result sent.
func (r *ResultRecorder) Results() []domain.GameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GameResult(nil), r.results...)
}
