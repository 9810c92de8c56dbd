package domain

import "time"

// RoomState is the lifecycle state of a game room.
type RoomState string

const (
	StateWaiting    RoomState = "WAITING"
	StateInProgress RoomState = "IN_PROGRESS"
	StateFinished   RoomState = "FINISHED"
)

// RoomSpec carries the creator-supplied room settings.
type RoomSpec struct {
	Title     string `json:"title"`
	MaxPlayer int    `json:"maxPlayer"`
	Password  string `json:"password,omitempty"`
	PlayRound int    `json:"playRound"` // number of problems drawn at start
}

// RoomSummary is the lobby projection of a room.
type RoomSummary struct {
	RoomID    string    `json:"roomId"`
	Title     string    `json:"title"`
	HostID    string    `json:"hostId"`
	Hostname  string    `json:"hostname"`
	MaxPlayer int       `json:"maxPlayer"`
	CurPlayer int       `json:"curPlayer"`
	IsLocked  bool      `json:"isLock"`
	State     RoomState `json:"state"`
}

// Player is a room participant. Values handed out by the engine are
// snapshots; the room owns the live record.
type Player struct {
	UserID      string       `json:"userId"`
	Username    string       `json:"username"`
	SessionID   string       `json:"-"`
	IsHost      bool         `json:"isHost"`
	StreakCount int          `json:"streakCount"`
	Solved      []Submission `json:"solved,omitempty"`
	JoinedAt    time.Time    `json:"joinedAt"`
}

// Answer is a submitted answer payload: position to choice id for choice
// based problems, free text for short answers.
type Answer struct {
	Choices map[int]int `json:"solve,omitempty"`
	Text    string      `json:"solveText,omitempty"`
}

// Submission is one recorded answer. It is never mutated after creation.
type Submission struct {
	UserID      string    `json:"userId"`
	ProblemID   int64     `json:"problemId"`
	Round       int       `json:"round"`
	Answer      Answer    `json:"answer"`
	SubmitTime  int       `json:"submitTime"` // seconds since round start
	SubmittedAt time.Time `json:"submittedAt"`
}

// Rank is one leaderboard row.
type Rank struct {
	Place    int    `json:"place"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID    string    `json:"roomId"`
	Entries   []Rank    `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GameResult is the final ranking forwarded to the result sink.
type GameResult struct {
	RoomID     string    `json:"roomId"`
	Ranking    []Rank    `json:"gameRank"`
	FinishedAt time.Time `json:"finishedAt"`
}

// GameStarted is published when a room leaves the lobby.
type GameStarted struct {
	RoomID    string    `json:"roomId"`
	StartedAt time.Time `json:"startedAt"`
}
