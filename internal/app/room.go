package app

import (
	"sort"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
)

const minMaxPlayer = 1

// Room is the in-memory aggregate of one game: roster, problems, round,
// scoreboard and leaderboard. Every exported method runs inside the room's own
// lock; rooms never share a lock with each other or with the registry.
type Room struct {
	id        string
	title     string
	password  string
	maxPlayer int
	playRound int
	createdAt time.Time
	now       func() time.Time

	mu             sync.Mutex
	state          domain.RoomState
	hostID         string
	hostname       string
	round          int
	roundStartedAt time.Time
	problems       []domain.Problem
	players        []*domain.Player // join order
	nextSeq        int
	joinSeq        map[string]int
	scores         map[string]*scoreEntry
	scored         map[roundKey]struct{}
	leaderboard    []domain.Rank
	finalizing     bool
	finalized      bool
	finishedAt     time.Time
	subscribers    map[chan RoomEvent]struct{}
}

// roundKey identifies one player's answer slot in one round.
type roundKey struct {
	userID string
	round  int
}

type scoreEntry struct {
	userID   string
	username string
	score    int
	seq      int
}

// NewRoom builds a WAITING room with the creator as its sole player and host.
func NewRoom(id, hostID, hostname string, spec domain.RoomSpec) *Room {
	return NewRoomWithClock(id, hostID, hostname, spec, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(id, hostID, hostname string, spec domain.RoomSpec, now func() time.Time) *Room {
	maxPlayer := spec.MaxPlayer
	if maxPlayer < minMaxPlayer {
		maxPlayer = minMaxPlayer
	}
	r := &Room{
		id:          id,
		title:       spec.Title,
		password:    spec.Password,
		maxPlayer:   maxPlayer,
		playRound:   spec.PlayRound,
		createdAt:   now(),
		now:         now,
		state:       domain.StateWaiting,
		hostID:      hostID,
		hostname:    hostname,
		joinSeq:     make(map[string]int),
		scores:      make(map[string]*scoreEntry),
		scored:      make(map[roundKey]struct{}),
		subscribers: make(map[chan RoomEvent]struct{}),
	}
	r.addLocked(hostID, hostname, true)
	return r
}

func (r *Room) ID() string           { return r.id }
func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) PlayRound() int       { return r.playRound }

// State returns the lifecycle state.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Round returns the active round index.
func (r *Room) Round() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round
}

// IsHost reports whether userID currently holds the host seat.
func (r *Room) IsHost(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID == userID
}

// IsEmpty reports whether the roster has no players.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}

// Players returns roster snapshots in join order.
func (r *Room) Players() []domain.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// Summary projects the room for the lobby listing.
func (r *Room) Summary() domain.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomSummary{
		RoomID:    r.id,
		Title:     r.title,
		HostID:    r.hostID,
		Hostname:  r.hostname,
		MaxPlayer: r.maxPlayer,
		CurPlayer: len(r.players),
		IsLocked:  r.password != "",
		State:     r.state,
	}
}

// Join adds a player while the room is still in its lobby. A user already on
// the roster only has their username refreshed.
func (r *Room) Join(password, userID, username string) (domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateWaiting {
		return domain.Player{}, domain.NewError(domain.CodeGameAlreadyStarted, "roomId", r.id)
	}
	if r.password != "" && password != r.password {
		return domain.Player{}, domain.NewError(domain.CodeInvalidPassword, "password", nil)
	}
	if _, p := r.playerLocked(userID); p != nil {
		p.Username = username
		r.broadcastLocked(RoomEvent{Type: EventRoster, Payload: r.rosterLocked()})
		return snapshot(p), nil
	}
	if len(r.players) >= r.maxPlayer {
		return domain.Player{}, domain.NewError(domain.CodeRoomFull, "maxPlayer", r.maxPlayer)
	}
	p := r.addLocked(userID, username, len(r.players) == 0)
	return snapshot(p), nil
}

// CheckStart validates that userID may start the game now, without changing
// anything. Start re-checks under the same lock it mutates with.
func (r *Room) CheckStart(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkStartLocked(userID)
}

// Start moves the room to IN_PROGRESS at round 0 with the given problem set.
// The problems are treated as read-only from here on.
func (r *Room) Start(problems []domain.Problem, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartLocked(userID); err != nil {
		return err
	}
	if len(problems) == 0 {
		return domain.NewError(domain.CodeProblemNotFound, "problems", nil)
	}

	r.problems = append([]domain.Problem(nil), problems...)
	r.round = 0
	r.state = domain.StateInProgress
	r.roundStartedAt = r.now()
	for _, p := range r.players {
		r.ensureScoreLocked(p)
	}
	r.rankLocked()

	r.broadcastLocked(RoomEvent{Type: EventStarted, Payload: StartedPayload{
		RoomID:   r.id,
		Problems: domain.Views(r.problems),
		Round:    r.round,
	}})
	return nil
}

// CurrentProblem returns the active problem and its round index.
func (r *Room) CurrentProblem() (domain.Problem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.currentProblemLocked()
	return p, r.round, err
}

// AdvanceRound moves the host's room to the next problem. It reports false
// when the active round is already the last one; the round index is left
// unchanged in that case.
func (r *Room) AdvanceRound(userID string) (RoundView, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateInProgress {
		return RoundView{}, false, domain.NewError(domain.CodeProblemNotFound, "round", r.round)
	}
	if r.hostID != userID {
		return RoundView{}, false, domain.NewError(domain.CodeNotHost, "userId", userID)
	}
	if r.round+1 >= len(r.problems) {
		return RoundView{}, false, nil
	}

	r.round++
	r.roundStartedAt = r.now()
	view := RoundView{Round: r.round, Problem: r.problems[r.round].View()}
	r.broadcastLocked(RoomEvent{Type: EventRound, Payload: view})
	return view, true, nil
}

// RoundElapsed returns whole seconds since the active round started.
func (r *Room) RoundElapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != domain.StateInProgress {
		return 0
	}
	return int(r.now().Sub(r.roundStartedAt) / time.Second)
}

// ExitSession removes the player bound to sessionID. Lookup and removal
// happen under one lock so the host seat is never vacant or doubled.
func (r *Room) ExitSession(sessionID string) (domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, p := r.playerBySessionLocked(sessionID)
	if p == nil {
		return domain.Player{}, domain.NewError(domain.CodeUserNotFound, "sessionId", sessionID)
	}
	return r.removeLocked(i), nil
}

// RotateHost hands the host seat to the earliest-joined player.
func (r *Room) RotateHost() (domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) == 0 {
		return domain.Player{}, domain.NewError(domain.CodeUserNotFound, "newHost", nil)
	}
	for _, p := range r.players {
		p.IsHost = false
	}
	r.promoteLocked(r.players[0])
	r.broadcastLocked(RoomEvent{Type: EventRoster, Payload: r.rosterLocked()})
	return snapshot(r.players[0]), nil
}

// Finish moves the room to FINISHED. It reports false when the room was
// already finished.
func (r *Room) Finish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishLocked()
}

// FinishedBefore reports whether the room finished before t.
func (r *Room) FinishedBefore(t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == domain.StateFinished && r.finishedAt.Before(t)
}

// Leaderboard returns the current ranking.
func (r *Room) Leaderboard() domain.Leaderboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaderboardLocked()
}

func (r *Room) checkStartLocked(userID string) error {
	if r.state != domain.StateWaiting {
		return domain.NewError(domain.CodeGameAlreadyStarted, "roomId", r.id)
	}
	if r.hostID != userID {
		return domain.NewError(domain.CodeNotHost, "userId", userID)
	}
	return nil
}

func (r *Room) currentProblemLocked() (domain.Problem, error) {
	if r.state != domain.StateInProgress || r.round < 0 || r.round >= len(r.problems) {
		return domain.Problem{}, domain.NewError(domain.CodeProblemNotFound, "round", r.round)
	}
	return r.problems[r.round], nil
}

func (r *Room) addLocked(userID, username string, host bool) *domain.Player {
	if _, ok := r.joinSeq[userID]; !ok {
		r.nextSeq++
		r.joinSeq[userID] = r.nextSeq
	}
	p := &domain.Player{
		UserID:   userID,
		Username: username,
		JoinedAt: r.now(),
	}
	r.players = append(r.players, p)
	if host {
		r.promoteLocked(p)
	}
	r.broadcastLocked(RoomEvent{Type: EventRoster, Payload: r.rosterLocked()})
	return p
}

func (r *Room) removeLocked(i int) domain.Player {
	p := r.players[i]
	exited := snapshot(p)
	r.players = append(r.players[:i], r.players[i+1:]...)

	if p.IsHost {
		p.IsHost = false
		if len(r.players) > 0 {
			r.promoteLocked(r.players[0])
		} else {
			r.hostID = ""
			r.hostname = ""
		}
	}
	r.broadcastLocked(RoomEvent{Type: EventRoster, Payload: r.rosterLocked()})
	return exited
}

func (r *Room) promoteLocked(p *domain.Player) {
	p.IsHost = true
	r.hostID = p.UserID
	r.hostname = p.Username
}

func (r *Room) finishLocked() bool {
	if r.state == domain.StateFinished {
		return false
	}
	r.state = domain.StateFinished
	r.finishedAt = r.now()
	r.broadcastLocked(RoomEvent{Type: EventFinished, Payload: r.leaderboardLocked()})
	return true
}

func (r *Room) ensureScoreLocked(p *domain.Player) *scoreEntry {
	entry, ok := r.scores[p.UserID]
	if !ok {
		entry = &scoreEntry{userID: p.UserID, username: p.Username, seq: r.joinSeq[p.UserID]}
		r.scores[p.UserID] = entry
	}
	return entry
}

// rankLocked rebuilds the leaderboard: score descending, ties by join order,
// equal scores share a place.
func (r *Room) rankLocked() {
	entries := make([]*scoreEntry, 0, len(r.scores))
	for _, e := range r.scores {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].seq < entries[j].seq
	})

	ranks := make([]domain.Rank, 0, len(entries))
	place := 0
	for i, e := range entries {
		if i == 0 || e.score != entries[i-1].score {
			place = i + 1
		}
		ranks = append(ranks, domain.Rank{
			Place:    place,
			UserID:   e.userID,
			Username: e.username,
			Score:    e.score,
		})
	}
	r.leaderboard = ranks
}

func (r *Room) leaderboardLocked() domain.Leaderboard {
	entries := make([]domain.Rank, len(r.leaderboard))
	copy(entries, r.leaderboard)
	return domain.Leaderboard{
		RoomID:    r.id,
		Entries:   entries,
		UpdatedAt: r.now(),
	}
}

func (r *Room) rosterLocked() []domain.Player {
	out := make([]domain.Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, snapshot(p))
	}
	return out
}

func snapshot(p *domain.Player) domain.Player {
	cp := *p
	cp.Solved = append([]domain.Submission(nil), p.Solved...)
	return cp
}
