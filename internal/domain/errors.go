package domain

import "fmt"

// Code is a stable, client-facing business error code.
type Code string

const (
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeRoomExists         Code = "ROOM_EXISTS"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeGameAlreadyStarted Code = "GAME_ALREADY_STARTED"
	CodeNotHost            Code = "NOT_HOST"
	CodeInvalidPassword    Code = "INVALID_PASSWORD"
	CodeRoomFull           Code = "ROOM_FULL"
	CodeProblemNotFound    Code = "PROBLEM_NOT_FOUND"
	CodeSubmitTimeExceeded Code = "SUBMIT_TIME_EXCEEDED"
	CodeStaleSubmission    Code = "STALE_SUBMISSION"
	CodeAlreadyAnswered    Code = "ALREADY_ANSWERED"
)

var messages = map[Code]string{
	CodeRoomNotFound:       "room not found",
	CodeRoomExists:         "room id already in use",
	CodeUserNotFound:       "user not found in room",
	CodeGameAlreadyStarted: "game already started",
	CodeNotHost:            "only the host can do this",
	CodeInvalidPassword:    "invalid room password",
	CodeRoomFull:           "room is full",
	CodeProblemNotFound:    "problem not found",
	CodeSubmitTimeExceeded: "submit time exceeded",
	CodeStaleSubmission:    "submission does not match the current round",
	CodeAlreadyAnswered:    "round already answered",
}

// Error is a recoverable business failure. It carries the offending value and
// field so the transport layer can shape a client response.
type Error struct {
	Code  Code
	Field string
	Value any
}

// NewError builds a business error for the given code.
func NewError(code Code, field string, value any) *Error {
	return &Error{Code: code, Field: field, Value: value}
}

func (e *Error) Error() string {
	msg, ok := messages[e.Code]
	if !ok {
		msg = string(e.Code)
	}
	if e.Field == "" {
		return msg
	}
	if e.Value == nil {
		return fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	return fmt.Sprintf("%s (%s=%v)", msg, e.Field, e.Value)
}

// Is matches any *Error with the same code, so callers can use errors.Is
// against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	// ErrRoomNotFound is returned when no room is registered under an id.
	ErrRoomNotFound = &Error{Code: CodeRoomNotFound}
	// ErrRoomExists is returned by a room repository on id collision.
	ErrRoomExists = &Error{Code: CodeRoomExists}
	// ErrUserNotFound is returned when a user or session is not on the roster.
	ErrUserNotFound = &Error{Code: CodeUserNotFound}
	// ErrGameAlreadyStarted is returned when a lobby-only action hits a running game.
	ErrGameAlreadyStarted = &Error{Code: CodeGameAlreadyStarted}
	// ErrNotHost is returned when a non-host attempts a host action.
	ErrNotHost = &Error{Code: CodeNotHost}
	// ErrInvalidPassword is returned when a join password does not match.
	ErrInvalidPassword = &Error{Code: CodeInvalidPassword}
	// ErrRoomFull is returned when the roster is at capacity.
	ErrRoomFull = &Error{Code: CodeRoomFull}
	// ErrProblemNotFound indicates missing problem content or no active problem.
	ErrProblemNotFound = &Error{Code: CodeProblemNotFound}
	// ErrSubmitTimeExceeded is returned when an answer arrives after the allowed time.
	ErrSubmitTimeExceeded = &Error{Code: CodeSubmitTimeExceeded}
	// ErrStaleSubmission is returned when a submission targets a round that is no longer active.
	ErrStaleSubmission = &Error{Code: CodeStaleSubmission}
	// ErrAlreadyAnswered is returned when a player already scored the active round.
	ErrAlreadyAnswered = &Error{Code: CodeAlreadyAnswered}
)
