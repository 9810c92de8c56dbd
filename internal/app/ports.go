package app

import (
	"context"

	"arena-quiz-service/internal/domain"
)

// RoomRepository abstracts where live rooms are registered (in-memory, Redis, etc).
// Each call must be atomic on its own; it never shares a lock with room operations.
type RoomRepository interface {
	// Add fails with domain.ErrRoomExists when the id is taken.
	Add(room *Room) error
	Get(roomID string) (*Room, bool)
	Delete(roomID string) bool
	DeleteIfEmpty(roomID string) bool
	List() []*Room
}

// ProblemProvider supplies the problem set for a new game.
type ProblemProvider interface {
	GetProblems(ctx context.Context, count int) ([]domain.Problem, error)
}

// EventPublisher announces room lifecycle events to the outside world.
type EventPublisher interface {
	PublishGameStarted(ctx context.Context, evt domain.GameStarted) error
}

// ResultSink receives finished-game data.
type ResultSink interface {
	SendSubmissionHistory(ctx context.Context, userID string, history []domain.Submission) error
	SendFinalResult(ctx context.Context, result domain.GameResult) error
}

// RoomRefresher is implemented by repositories that mirror room summaries
// elsewhere and need to hear about roster or state changes.
type RoomRefresher interface {
	Refresh(ctx context.Context, roomID string)
}

// RoomDirectory is implemented by repositories that can list rooms owned by
// other instances.
type RoomDirectory interface {
	Summaries(ctx context.Context) ([]domain.RoomSummary, error)
}
