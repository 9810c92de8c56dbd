package app

import "arena-quiz-service/internal/domain"

// EventType names a room event pushed to subscribers.
type EventType string

const (
	EventRoster      EventType = "roster"
	EventStarted     EventType = "gameStarted"
	EventRound       EventType = "round"
	EventLeaderboard EventType = "leaderboard"
	EventFinished    EventType = "gameFinished"
)

// RoomEvent is a state change fanned out to everyone watching a room.
type RoomEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// StartedPayload carries the sanitized problem set when a game starts.
type StartedPayload struct {
	RoomID   string               `json:"roomId"`
	Problems []domain.ProblemView `json:"problems"`
	Round    int                  `json:"round"`
}

// RoundView is the active round with its problem, answer keys stripped.
type RoundView struct {
	Round   int                `json:"round"`
	Problem domain.ProblemView `json:"problem"`
}

const subscriberBuffer = 16

// Subscribe returns a channel of room events. The caller must invoke the
// returned cancel function to avoid leaks.
func (r *Room) Subscribe() (<-chan RoomEvent, func()) {
	ch := make(chan RoomEvent, subscriberBuffer)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	ch <- RoomEvent{Type: EventRoster, Payload: r.rosterLocked()}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// closeSubscribers ends every subscription, used when the room is deleted.
func (r *Room) closeSubscribers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
}

// broadcastLocked never blocks: a full subscriber loses its oldest event.
func (r *Room) broadcastLocked(evt RoomEvent) {
	for ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}
