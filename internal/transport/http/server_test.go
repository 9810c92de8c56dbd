package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	service *app.GameService
	results *memory.ResultRecorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	problems := memory.NewProblemRepository(memory.NewStaticProblemLoader(sampleProblems()), time.Minute)
	results := memory.NewResultRecorder(log)
	service := app.NewGameService(
		app.NewRoomRegistry(memory.NewRoomStore()),
		problems,
		memory.NewEventRecorder(log),
		results,
		app.Settings{MaxPlayer: 4, PlayRound: 1},
		log,
	)

	mux := http.NewServeMux()
	NewRoomHandler(service, log).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(service, log).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testServer{Server: server, service: service, results: results}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) createRoom(t *testing.T, body map[string]any) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/rooms", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room: status %d", resp.StatusCode)
	}
	var created createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return created.RoomID
}

func sampleProblems() []domain.Problem {
	return []domain.Problem{
		{
			ID:      1,
			Title:   "Sum",
			Type:    domain.MultipleChoice,
			Content: "What is 2 + 3?",
			Choices: []domain.Choice{{ID: 4, Text: "4"}, {ID: 5, Text: "5"}},
			Answers: []domain.AnswerKey{{CorrectChoiceID: 5}},
		},
	}
}
