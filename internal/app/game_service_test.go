package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedProblems hands out the same ordered set every time.
type fixedProblems struct {
	problems []domain.Problem
	calls    atomic.Int32
}

func (f *fixedProblems) GetProblems(_ context.Context, count int) ([]domain.Problem, error) {
	f.calls.Add(1)
	if len(f.problems) == 0 {
		return nil, nil
	}
	if count > len(f.problems) {
		count = len(f.problems)
	}
	return append([]domain.Problem(nil), f.problems[:count]...), nil
}

type testEnv struct {
	service  *app.GameService
	rooms    *memory.RoomStore
	problems *fixedProblems
	events   *memory.EventRecorder
	results  *memory.ResultRecorder
}

func newTestEnv(t *testing.T, problems ...domain.Problem) *testEnv {
	t.Helper()
	log := zap.NewNop()
	env := &testEnv{
		rooms:    memory.NewRoomStore(),
		problems: &fixedProblems{problems: problems},
		events:   memory.NewEventRecorder(log),
		results:  memory.NewResultRecorder(log),
	}
	env.service = app.NewGameService(
		app.NewRoomRegistry(env.rooms),
		env.problems,
		env.events,
		env.results,
		app.Settings{MaxPlayer: 4, PlayRound: len(problems)},
		log,
	)
	return env
}

func TestGameService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service

	roomID, err := svc.CreateRoom(ctx, "U1", "alice", domain.RoomSpec{Title: "quiz night", MaxPlayer: 2})
	require.NoError(t, err)
	require.NotEmpty(t, roomID)

	require.NoError(t, svc.JoinRoom(ctx, roomID, "", "U2", "bob"))
	_, err = svc.ConnectPlayer(ctx, roomID, "U1", "sess-alice")
	require.NoError(t, err)
	bob, err := svc.ConnectPlayer(ctx, roomID, "U2", "sess-bob")
	require.NoError(t, err)
	require.False(t, bob.IsHost)

	views, err := svc.StartGame(ctx, roomID, "U1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Len(t, env.events.Started(), 1)
	require.Equal(t, roomID, env.events.Started()[0].RoomID)

	sub, err := svc.SubmitAnswer(ctx, roomID, "sess-bob", domain.Answer{Choices: map[int]int{1: 5}}, 5)
	require.NoError(t, err)
	require.Equal(t, "U2", sub.UserID)

	score, err := svc.MarkSolution(ctx, roomID, sub)
	require.NoError(t, err)
	require.Equal(t, 250, score)

	lb, err := svc.Leaderboard(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	require.Equal(t, domain.Rank{Place: 1, UserID: "U2", Username: "bob", Score: 250}, lb.Entries[0])
	require.Equal(t, 2, lb.Entries[1].Place)
}

func TestGameService_StreakBonus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5), mcProblem(2, 4), mcProblem(3, 5), mcProblem(4, 5))
	svc := env.service
	roomID := startedRoom(t, env)

	answer := func(choice, submitTime int) int {
		sub, err := svc.SubmitAnswer(ctx, roomID, "s1", domain.Answer{Choices: map[int]int{1: choice}}, submitTime)
		require.NoError(t, err)
		score, err := svc.MarkSolution(ctx, roomID, sub)
		require.NoError(t, err)
		return score
	}
	advance := func() {
		_, finished, err := svc.NextRound(ctx, roomID, "u1")
		require.NoError(t, err)
		require.False(t, finished)
	}

	require.Equal(t, 300, answer(5, 0)) // streak 0
	advance()
	require.Equal(t, 275, answer(4, 10)) // streak 1
	advance()
	require.Equal(t, 0, answer(4, 1)) // wrong, streak resets
	advance()
	require.Equal(t, 200, answer(5, 10))

	lb, err := svc.Leaderboard(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, 775, lb.Entries[0].Score)
}

func TestGameService_SubmitTimeExceededAbortsScoring(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service
	roomID := startedRoom(t, env)

	sub, err := svc.SubmitAnswer(ctx, roomID, "s1", domain.Answer{Choices: map[int]int{1: 5}}, 31)
	require.NoError(t, err, "late answers are still recorded")

	_, err = svc.MarkSolution(ctx, roomID, sub)
	requireCode(t, err, domain.ErrSubmitTimeExceeded)

	lb, err := svc.Leaderboard(ctx, roomID)
	require.NoError(t, err)
	require.Zero(t, lb.Entries[0].Score)

	onTime, err := svc.SubmitAnswer(ctx, roomID, "s1", domain.Answer{Choices: map[int]int{1: 5}}, 30)
	require.NoError(t, err)
	score, err := svc.MarkSolution(ctx, roomID, onTime)
	require.NoError(t, err)
	require.Zero(t, score, "streak untouched by the rejected answer")
}

func TestGameService_OneScorePerRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5), mcProblem(2, 5))
	svc := env.service
	roomID := startedRoom(t, env)
	correct := domain.Answer{Choices: map[int]int{1: 5}}

	sub, err := svc.SubmitAnswer(ctx, roomID, "s1", correct, 0)
	require.NoError(t, err)
	score, err := svc.MarkSolution(ctx, roomID, sub)
	require.NoError(t, err)
	require.Equal(t, 300, score)

	// answering the same round again
	_, err = svc.SubmitAnswer(ctx, roomID, "s1", correct, 1)
	requireCode(t, err, domain.ErrAlreadyAnswered)

	// replaying the scored submission
	for i := 0; i < 2; i++ {
		_, err = svc.MarkSolution(ctx, roomID, sub)
		requireCode(t, err, domain.ErrAlreadyAnswered)
	}

	lb, err := svc.Leaderboard(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, 300, lb.Entries[0].Score)

	// the streak advanced once, and the next round is open again
	_, _, err = svc.NextRound(ctx, roomID, "u1")
	require.NoError(t, err)
	next, err := svc.SubmitAnswer(ctx, roomID, "s1", correct, 0)
	require.NoError(t, err)
	score, err = svc.MarkSolution(ctx, roomID, next)
	require.NoError(t, err)
	require.Equal(t, 375, score)

	_, finished, err := svc.NextRound(ctx, roomID, "u1")
	require.NoError(t, err)
	require.True(t, finished)
	require.Len(t, env.results.Histories("u1"), 1)
	require.Len(t, env.results.Histories("u1")[0], 2, "history holds one entry per round")
}

func TestGameService_ConcurrentScoringOfOneRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service
	roomID := startedRoom(t, env)

	sub, err := svc.SubmitAnswer(ctx, roomID, "s1", domain.Answer{Choices: map[int]int{1: 5}}, 0)
	require.NoError(t, err)

	var scoredOnce atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.MarkSolution(ctx, roomID, sub); err == nil {
				scoredOnce.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), scoredOnce.Load())
	lb, err := svc.Leaderboard(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, 300, lb.Entries[0].Score)
}

func TestGameService_MarkSolutionErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service

	_, err := svc.MarkSolution(ctx, "missing", domain.Submission{})
	requireCode(t, err, domain.ErrRoomNotFound)

	roomID, err := svc.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{})
	require.NoError(t, err)

	_, err = svc.MarkSolution(ctx, roomID, domain.Submission{UserID: "u1"})
	requireCode(t, err, domain.ErrProblemNotFound)

	_, err = svc.MarkSolution(ctx, roomID, domain.Submission{UserID: "ghost"})
	requireCode(t, err, domain.ErrUserNotFound)
}

func TestGameService_StartGame(t *testing.T) {
	ctx := context.Background()

	t.Run("non host skips problem fetch", func(t *testing.T) {
		env := newTestEnv(t, mcProblem(1, 5))
		roomID, err := env.service.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{})
		require.NoError(t, err)
		require.NoError(t, env.service.JoinRoom(ctx, roomID, "", "u2", "bob"))

		_, err = env.service.StartGame(ctx, roomID, "u2")
		requireCode(t, err, domain.ErrNotHost)
		require.Zero(t, env.problems.calls.Load())
	})

	t.Run("empty problem set", func(t *testing.T) {
		env := newTestEnv(t)
		roomID, err := env.service.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{})
		require.NoError(t, err)

		_, err = env.service.StartGame(ctx, roomID, "u1")
		requireCode(t, err, domain.ErrProblemNotFound)
		require.Empty(t, env.events.Started())
	})

	t.Run("unknown room", func(t *testing.T) {
		env := newTestEnv(t, mcProblem(1, 5))
		_, err := env.service.StartGame(ctx, "nope", "u1")
		requireCode(t, err, domain.ErrRoomNotFound)
	})
}

func TestGameService_FinalizeOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service
	roomID := startedRoom(t, env)

	sub, err := svc.SubmitAnswer(ctx, roomID, "s1", domain.Answer{Choices: map[int]int{1: 5}}, 0)
	require.NoError(t, err)
	_, err = svc.MarkSolution(ctx, roomID, sub)
	require.NoError(t, err)

	_, finished, err := svc.NextRound(ctx, roomID, "u1")
	require.NoError(t, err)
	require.True(t, finished)

	sent, err := svc.Finalize(ctx, roomID, nil)
	require.NoError(t, err)
	require.False(t, sent)

	_, err = svc.FinishGame(ctx, roomID, "u1")
	require.NoError(t, err)

	require.Equal(t, 1, env.results.HistoryCalls())
	require.Len(t, env.results.Histories("u1"), 1)
	require.Len(t, env.results.Results(), 1)
	require.Equal(t, 300, env.results.Results()[0].Ranking[0].Score)

	rooms := svc.ListRooms(ctx)
	require.Len(t, rooms, 1)
	require.Equal(t, domain.StateFinished, rooms[0].State)
}

func TestGameService_FinishGameRequiresHost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	roomID := startedRoom(t, env)

	_, err := env.service.FinishGame(ctx, roomID, "someone-else")
	requireCode(t, err, domain.ErrNotHost)
	require.Empty(t, env.results.Results())
}

type flakySink struct {
	*memory.ResultRecorder
	failures atomic.Int32
}

func (f *flakySink) SendFinalResult(ctx context.Context, result domain.GameResult) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("broker down")
	}
	return f.ResultRecorder.SendFinalResult(ctx, result)
}

func TestResultFinalizer_ReleasesClaimOnFailure(t *testing.T) {
	ctx := context.Background()
	sink := &flakySink{ResultRecorder: memory.NewResultRecorder(zap.NewNop())}
	sink.failures.Store(1)
	finalizer := app.NewResultFinalizer(sink, zap.NewNop())

	room := app.NewRoom("room-1", "u1", "alice", domain.RoomSpec{MaxPlayer: 2})
	require.NoError(t, room.Start([]domain.Problem{mcProblem(1, 5)}, "u1"))

	_, err := finalizer.Finalize(ctx, room, room.Leaderboard().Entries)
	require.Error(t, err)
	require.Equal(t, domain.StateInProgress, room.State())

	sent, err := finalizer.Finalize(ctx, room, room.Leaderboard().Entries)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, domain.StateFinished, room.State())
	require.Len(t, sink.Results(), 1)
}

func TestGameService_ConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service

	const players = 16
	roomID, err := svc.CreateRoom(ctx, "p0", "player-0", domain.RoomSpec{MaxPlayer: players})
	require.NoError(t, err)
	for i := 1; i < players; i++ {
		require.NoError(t, svc.JoinRoom(ctx, roomID, "", fmt.Sprintf("p%d", i), fmt.Sprintf("player-%d", i)))
	}
	for i := 0; i < players; i++ {
		_, err := svc.ConnectPlayer(ctx, roomID, fmt.Sprintf("p%d", i), fmt.Sprintf("s%d", i))
		require.NoError(t, err)
	}
	_, err = svc.StartGame(ctx, roomID, "p0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, players)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := svc.SubmitAnswer(ctx, roomID, fmt.Sprintf("s%d", i), domain.Answer{Choices: map[int]int{1: 5}}, i)
			if err != nil {
				errs <- err
				return
			}
			if _, err := svc.MarkSolution(ctx, roomID, sub); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	lb, err := svc.Leaderboard(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, players)
	total := 0
	for i, e := range lb.Entries {
		total += e.Score
		require.Equal(t, i+1, e.Place)
		require.Equal(t, fmt.Sprintf("p%d", i), e.UserID, "faster answers rank higher")
	}
	want := 0
	for i := 0; i < players; i++ {
		want += 10 * (30 - i)
	}
	require.Equal(t, want, total)
}

func TestGameService_ExitRoom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service

	roomID, err := svc.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{})
	require.NoError(t, err)
	require.NoError(t, svc.JoinRoom(ctx, roomID, "", "u2", "bob"))
	_, err = svc.ConnectPlayer(ctx, roomID, "u1", "s1")
	require.NoError(t, err)
	_, err = svc.ConnectPlayer(ctx, roomID, "u2", "s2")
	require.NoError(t, err)

	_, err = svc.ExitRoom(ctx, roomID, "unknown")
	requireCode(t, err, domain.ErrUserNotFound)

	exited, err := svc.ExitRoom(ctx, roomID, "s1")
	require.NoError(t, err)
	require.True(t, exited.IsHost)

	host, err := svc.RotateHost(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, "u2", host.UserID)

	_, err = svc.ExitRoom(ctx, roomID, "s2")
	require.NoError(t, err)
	_, ok := env.rooms.Get(roomID)
	require.False(t, ok, "empty room dropped from registry")

	_, err = svc.RotateHost(ctx, roomID)
	requireCode(t, err, domain.ErrRoomNotFound)
}

func TestGameService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	svc := env.service

	first, err := svc.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{Title: "one", Password: "pw"})
	require.NoError(t, err)
	_, err = svc.CreateRoom(ctx, "u2", "bob", domain.RoomSpec{Title: "two"})
	require.NoError(t, err)

	rooms := svc.ListRooms(ctx)
	require.Len(t, rooms, 2)
	for _, r := range rooms {
		require.Equal(t, 1, r.CurPlayer)
		require.Equal(t, 4, r.MaxPlayer, "default capacity applied")
		if r.RoomID == first {
			require.True(t, r.IsLocked)
			require.Equal(t, "alice", r.Hostname)
		}
	}

	require.NoError(t, svc.DeleteRoom(ctx, first))
	requireCode(t, svc.DeleteRoom(ctx, first), domain.ErrRoomNotFound)
	require.Len(t, svc.ListRooms(ctx), 1)

	requireCode(t, svc.JoinRoom(ctx, first, "pw", "u3", "carol"), domain.ErrRoomNotFound)
}

func TestGameService_SweepFinished(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, mcProblem(1, 5))
	roomID := startedRoom(t, env)

	require.Zero(t, env.service.SweepFinished(0), "running rooms are kept")

	_, err := env.service.FinishGame(ctx, roomID, "u1")
	require.NoError(t, err)
	require.Zero(t, env.service.SweepFinished(time.Hour))

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, env.service.SweepFinished(time.Millisecond))
	require.Empty(t, env.service.ListRooms(ctx))
}

func TestRoomRegistry_RetriesIDCollision(t *testing.T) {
	store := memory.NewRoomStore()
	require.NoError(t, store.Add(app.NewRoom("dup", "x", "x", domain.RoomSpec{MaxPlayer: 1})))

	ids := []string{"dup", "dup", "fresh"}
	calls := 0
	registry := app.NewRoomRegistryWithIDs(store, func() string {
		id := ids[calls]
		calls++
		return id
	}, time.Now)

	room, err := registry.Create("u1", "alice", domain.RoomSpec{MaxPlayer: 2})
	require.NoError(t, err)
	require.Equal(t, "fresh", room.ID())
	require.Equal(t, 3, calls)
}

// startedRoom creates a one-player room hosted by u1 on session s1 and starts it.
func startedRoom(t *testing.T, env *testEnv) string {
	t.Helper()
	ctx := context.Background()
	roomID, err := env.service.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{Title: "solo"})
	require.NoError(t, err)
	_, err = env.service.ConnectPlayer(ctx, roomID, "u1", "s1")
	require.NoError(t, err)
	_, err = env.service.StartGame(ctx, roomID, "u1")
	require.NoError(t, err)
	return roomID
}

// sharedStore is an in-memory repository that also exposes a room directory.
type sharedStore struct {
	*memory.RoomStore
	summaries []domain.RoomSummary
	err       error
}

func (s *sharedStore) Summaries(context.Context) ([]domain.RoomSummary, error) {
	return s.summaries, s.err
}

func TestGameService_ListRoomsMergesSharedDirectory(t *testing.T) {
	ctx := context.Background()
	store := &sharedStore{RoomStore: memory.NewRoomStore()}
	log := zap.NewNop()
	svc := app.NewGameService(
		app.NewRoomRegistryWithIDs(store, func() string { return "local" }, time.Now),
		&fixedProblems{},
		memory.NewEventRecorder(log),
		memory.NewResultRecorder(log),
		app.Settings{MaxPlayer: 4, PlayRound: 1},
		log,
	)
	_, err := svc.CreateRoom(ctx, "u1", "alice", domain.RoomSpec{Title: "here"})
	require.NoError(t, err)

	store.summaries = []domain.RoomSummary{
		{RoomID: "remote-b", Title: "elsewhere", CurPlayer: 2},
		{RoomID: "local", Title: "stale copy"},
		{RoomID: "remote-a", Title: "elsewhere too", CurPlayer: 1},
	}
	rooms := svc.ListRooms(ctx)
	require.Len(t, rooms, 3)
	require.Equal(t, "local", rooms[0].RoomID)
	require.Equal(t, "here", rooms[0].Title, "live room wins over its mirrored copy")
	require.Equal(t, "remote-a", rooms[1].RoomID)
	require.Equal(t, "remote-b", rooms[2].RoomID)

	store.err = errors.New("directory down")
	rooms = svc.ListRooms(ctx)
	require.Len(t, rooms, 1)
	require.Equal(t, "local", rooms[0].RoomID)
}
