package app

import "arena-quiz-service/internal/domain"

// Connect binds a live session handle to a rostered player.
func (r *Room) Connect(userID, sessionID string) (domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, p := r.playerLocked(userID)
	if p == nil {
		return domain.Player{}, domain.NewError(domain.CodeUserNotFound, "userId", userID)
	}
	p.SessionID = sessionID
	return snapshot(p), nil
}

// PlayerBySession resolves the player holding a session handle.
func (r *Room) PlayerBySession(sessionID string) (domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, p := r.playerBySessionLocked(sessionID)
	if p == nil {
		return domain.Player{}, domain.NewError(domain.CodeUserNotFound, "sessionId", sessionID)
	}
	return snapshot(p), nil
}

func (r *Room) playerLocked(userID string) (int, *domain.Player) {
	for i, p := range r.players {
		if p.UserID == userID {
			return i, p
		}
	}
	return -1, nil
}

// playerBySessionLocked skips players that never connected.
func (r *Room) playerBySessionLocked(sessionID string) (int, *domain.Player) {
	if sessionID == "" {
		return -1, nil
	}
	for i, p := range r.players {
		if p.SessionID == sessionID {
			return i, p
		}
	}
	return -1, nil
}
