package app

import (
	"context"
	"fmt"

	"arena-quiz-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// historyFanout bounds concurrent history sends per finalize.
const historyFanout = 4

// ResultFinalizer flushes a finished game to the result sink and closes the room.
type ResultFinalizer struct {
	sink ResultSink
	log  *zap.Logger
}

func NewResultFinalizer(sink ResultSink, log *zap.Logger) *ResultFinalizer {
	return &ResultFinalizer{sink: sink, log: log}
}

// Finalize forwards every non-empty player history and the final ranking, then
// moves the room to FINISHED. Only the first successful call sends anything;
// later calls report false. A sink failure releases the claim so the caller
// may retry.
func (f *ResultFinalizer) Finalize(ctx context.Context, room *Room, ranking []domain.Rank) (bool, error) {
	players, ok := room.claimFinalize()
	if !ok {
		f.log.Debug("finalize skipped, already claimed", zap.String("room_id", room.ID()))
		return false, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyFanout)
	for _, p := range players {
		g.Go(func() error {
			if err := f.sink.SendSubmissionHistory(gctx, p.UserID, p.Solved); err != nil {
				return fmt.Errorf("send history for %s: %w", p.UserID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		room.releaseFinalize()
		return false, err
	}

	result := domain.GameResult{RoomID: room.ID(), Ranking: ranking, FinishedAt: room.now()}
	if err := f.sink.SendFinalResult(ctx, result); err != nil {
		room.releaseFinalize()
		return false, fmt.Errorf("send final result: %w", err)
	}

	room.completeFinalize()
	f.log.Info("game finalized",
		zap.String("room_id", room.ID()),
		zap.Int("histories", len(players)),
		zap.Int("ranked", len(ranking)),
	)
	return true, nil
}

// claimFinalize takes the one-shot finalize flag and returns the players that
// have something to flush.
func (r *Room) claimFinalize() ([]domain.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalizing || r.finalized {
		return nil, false
	}
	r.finalizing = true

	out := make([]domain.Player, 0, len(r.players))
	for _, p := range r.players {
		if len(p.Solved) > 0 {
			out = append(out, snapshot(p))
		}
	}
	return out, true
}

func (r *Room) releaseFinalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizing = false
}

func (r *Room) completeFinalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizing = false
	r.finalized = true
	r.finishLocked()
}

type multiSink []ResultSink

// MultiSink forwards to every sink in order and stops at the first failure.
func MultiSink(sinks ...ResultSink) ResultSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multiSink(sinks)
}

func (m multiSink) SendSubmissionHistory(ctx context.Context, userID string, history []domain.Submission) error {
	for _, s := range m {
		if err := s.SendSubmissionHistory(ctx, userID, history); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) SendFinalResult(ctx context.Context, result domain.GameResult) error {
	for _, s := range m {
		if err := s.SendFinalResult(ctx, result); err != nil {
			return err
		}
	}
	return nil
}
