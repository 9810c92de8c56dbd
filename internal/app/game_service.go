package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arena-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// Settings are room defaults applied when a creator leaves a field empty.
type Settings struct {
	MaxPlayer int
	PlayRound int
}

const (
	defaultMaxPlayer = 8
	defaultPlayRound = 5
)

// GameService contains the room use cases consumed by the transport layer.
type GameService struct {
	registry  *RoomRegistry
	problems  ProblemProvider
	events    EventPublisher
	finalizer *ResultFinalizer
	settings  Settings
	log       *zap.Logger
}

func NewGameService(registry *RoomRegistry, problems ProblemProvider, events EventPublisher, sink ResultSink, settings Settings, log *zap.Logger) *GameService {
	if settings.MaxPlayer <= 0 {
		settings.MaxPlayer = defaultMaxPlayer
	}
	if settings.PlayRound <= 0 {
		settings.PlayRound = defaultPlayRound
	}
	return &GameService{
		registry:  registry,
		problems:  problems,
		events:    events,
		finalizer: NewResultFinalizer(sink, log),
		settings:  settings,
		log:       log,
	}
}

// CreateRoom registers a room with the creator seated as host.
func (s *GameService) CreateRoom(_ context.Context, hostID, hostname string, spec domain.RoomSpec) (string, error) {
	if spec.MaxPlayer <= 0 {
		spec.MaxPlayer = s.settings.MaxPlayer
	}
	if spec.PlayRound <= 0 {
		spec.PlayRound = s.settings.PlayRound
	}
	room, err := s.registry.Create(hostID, hostname, spec)
	if err != nil {
		return "", err
	}
	s.log.Info("room created",
		zap.String("room_id", room.ID()),
		zap.String("host_id", hostID),
		zap.Int("max_player", spec.MaxPlayer),
	)
	return room.ID(), nil
}

// JoinRoom seats a player in a room's lobby.
func (s *GameService) JoinRoom(ctx context.Context, roomID, password, userID, username string) error {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return err
	}
	if _, err := room.Join(password, userID, username); err != nil {
		return err
	}
	s.registry.Touch(ctx, roomID)
	s.log.Info("player joined", zap.String("room_id", roomID), zap.String("user_id", userID))
	return nil
}

// ConnectPlayer binds a transport session to a rostered player.
func (s *GameService) ConnectPlayer(_ context.Context, roomID, userID, sessionID string) (domain.Player, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return domain.Player{}, err
	}
	return room.Connect(userID, sessionID)
}

// StartGame fetches the problem set and starts round 0. The returned problems
// have their answer keys stripped.
func (s *GameService) StartGame(ctx context.Context, roomID, userID string) ([]domain.ProblemView, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return nil, err
	}
	// Reject non-hosts before paying for a problem fetch.
	if err := room.CheckStart(userID); err != nil {
		return nil, err
	}

	problems, err := s.problems.GetProblems(ctx, room.PlayRound())
	if err != nil {
		if errors.Is(err, domain.ErrProblemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch problems: %w", err)
	}
	if len(problems) == 0 {
		return nil, domain.NewError(domain.CodeProblemNotFound, "problems", nil)
	}
	if err := room.Start(problems, userID); err != nil {
		return nil, err
	}
	s.registry.Touch(ctx, roomID)

	evt := domain.GameStarted{RoomID: roomID, StartedAt: time.Now()}
	if err := s.events.PublishGameStarted(ctx, evt); err != nil {
		s.log.Warn("publish game started failed", zap.String("room_id", roomID), zap.Error(err))
	}
	s.log.Info("game started", zap.String("room_id", roomID), zap.Int("problems", len(problems)))
	return domain.Views(problems), nil
}

// SubmitAnswer records an answer from the player bound to sessionID.
func (s *GameService) SubmitAnswer(_ context.Context, roomID, sessionID string, answer domain.Answer, submitTime int) (domain.Submission, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return domain.Submission{}, err
	}
	return room.RecordSubmission(sessionID, answer, submitTime)
}

// MarkSolution scores a recorded submission and returns the points it earned.
func (s *GameService) MarkSolution(_ context.Context, roomID string, sub domain.Submission) (int, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return 0, err
	}
	return room.MarkSolution(sub)
}

// ExitRoom removes the player bound to sessionID. An emptied room is dropped
// from the registry.
func (s *GameService) ExitRoom(ctx context.Context, roomID, sessionID string) (domain.Player, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return domain.Player{}, err
	}
	player, err := room.ExitSession(sessionID)
	if err != nil {
		return domain.Player{}, err
	}
	if room.IsEmpty() && s.registry.DeleteIfEmpty(roomID) {
		s.log.Info("empty room removed", zap.String("room_id", roomID))
		return player, nil
	}
	s.registry.Touch(ctx, roomID)
	return player, nil
}

// RotateHost hands the host seat to the earliest-joined remaining player.
func (s *GameService) RotateHost(_ context.Context, roomID string) (domain.Player, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return domain.Player{}, err
	}
	return room.RotateHost()
}

// ListRooms projects every registered room, including rooms other instances
// share through the repository. A directory failure degrades to local rooms.
func (s *GameService) ListRooms(ctx context.Context) []domain.RoomSummary {
	rooms, err := s.registry.ListShared(ctx)
	if err != nil {
		s.log.Warn("list shared rooms failed", zap.Error(err))
	}
	return rooms
}

// DeleteRoom removes a room permanently.
func (s *GameService) DeleteRoom(_ context.Context, roomID string) error {
	if err := s.registry.Delete(roomID); err != nil {
		return err
	}
	s.log.Info("room deleted", zap.String("room_id", roomID))
	return nil
}

// NextRound advances the host's room. After the last round the game is
// finalized and finished is true.
func (s *GameService) NextRound(ctx context.Context, roomID, userID string) (RoundView, bool, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return RoundView{}, false, err
	}
	view, more, err := room.AdvanceRound(userID)
	if err != nil {
		return RoundView{}, false, err
	}
	if more {
		return view, false, nil
	}
	if err := s.finalize(ctx, room); err != nil {
		return RoundView{}, false, err
	}
	return RoundView{}, true, nil
}

// FinishGame finalizes a running game on the host's request.
func (s *GameService) FinishGame(ctx context.Context, roomID, userID string) (domain.Leaderboard, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if !room.IsHost(userID) {
		return domain.Leaderboard{}, domain.NewError(domain.CodeNotHost, "userId", userID)
	}
	if err := s.finalize(ctx, room); err != nil {
		return domain.Leaderboard{}, err
	}
	return room.Leaderboard(), nil
}

// Finalize flushes a room's results with an explicit ranking.
func (s *GameService) Finalize(ctx context.Context, roomID string, ranking []domain.Rank) (bool, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return false, err
	}
	return s.finalizer.Finalize(ctx, room, ranking)
}

func (s *GameService) finalize(ctx context.Context, room *Room) error {
	done, err := s.finalizer.Finalize(ctx, room, room.Leaderboard().Entries)
	if done {
		s.registry.Touch(ctx, room.ID())
	}
	return err
}

// Leaderboard returns a room's current ranking.
func (s *GameService) Leaderboard(_ context.Context, roomID string) (domain.Leaderboard, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return room.Leaderboard(), nil
}

// RoundElapsed returns whole seconds since the room's active round started.
func (s *GameService) RoundElapsed(roomID string) (int, error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return 0, err
	}
	return room.RoundElapsed(), nil
}

// Subscribe returns a channel that receives room events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(_ context.Context, roomID string) (<-chan RoomEvent, func(), error) {
	room, err := s.registry.Find(roomID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := room.Subscribe()
	return ch, cancel, nil
}

// SweepFinished drops rooms that finished more than olderThan ago.
func (s *GameService) SweepFinished(olderThan time.Duration) int {
	removed := s.registry.SweepFinished(s.registry.now().Add(-olderThan))
	if removed > 0 {
		s.log.Info("finished rooms swept", zap.Int("removed", removed))
	}
	return removed
}
