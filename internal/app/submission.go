package app

import (
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/scoring"
)

// RecordSubmission appends an answer to the history of the player holding
// sessionID. The submission is stamped with the round and problem active at
// receipt. It does not score. Once the round has been scored for the player
// further answers fail with ErrAlreadyAnswered.
func (r *Room) RecordSubmission(sessionID string, answer domain.Answer, submitTime int) (domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, p := r.playerBySessionLocked(sessionID)
	if p == nil {
		return domain.Submission{}, domain.NewError(domain.CodeUserNotFound, "sessionId", sessionID)
	}
	problem, err := r.currentProblemLocked()
	if err != nil {
		return domain.Submission{}, err
	}
	if _, done := r.scored[roundKey{userID: p.UserID, round: r.round}]; done {
		return domain.Submission{}, domain.NewError(domain.CodeAlreadyAnswered, "round", r.round)
	}

	sub := domain.Submission{
		UserID:      p.UserID,
		ProblemID:   problem.ID,
		Round:       r.round,
		Answer:      answer,
		SubmitTime:  submitTime,
		SubmittedAt: r.now(),
	}
	p.Solved = append(p.Solved, sub)
	return sub, nil
}

// MarkSolution scores a recorded submission against the active problem and
// folds the result into the scoreboard and leaderboard. Reading the round,
// scoring and updating the board happen in one critical section.
//
// Each player scores at most once per round; a second or replayed submission
// fails with ErrAlreadyAnswered. A late submission fails with
// ErrSubmitTimeExceeded, leaves streak and scoreboard untouched and does not
// use up the round.
func (r *Room) MarkSolution(sub domain.Submission) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, p := r.playerLocked(sub.UserID)
	if p == nil {
		return 0, domain.NewError(domain.CodeUserNotFound, "userId", sub.UserID)
	}
	problem, err := r.currentProblemLocked()
	if err != nil {
		return 0, err
	}
	if sub.Round != r.round || sub.ProblemID != problem.ID {
		return 0, domain.NewError(domain.CodeStaleSubmission, "round", sub.Round)
	}
	key := roundKey{userID: p.UserID, round: r.round}
	if _, done := r.scored[key]; done {
		return 0, domain.NewError(domain.CodeAlreadyAnswered, "round", r.round)
	}

	correct := scoring.IsCorrect(problem, sub.Answer)
	score, err := scoring.Score(correct, p.StreakCount, sub.SubmitTime)
	if err != nil {
		return 0, err
	}

	r.scored[key] = struct{}{}
	if correct {
		p.StreakCount++
	} else {
		p.StreakCount = 0
	}
	r.ensureScoreLocked(p).score += score
	r.rankLocked()
	r.broadcastLocked(RoomEvent{Type: EventLeaderboard, Payload: r.leaderboardLocked()})
	return score, nil
}
