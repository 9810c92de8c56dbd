package http

import (
	"context"
	"encoding/json"
	"net/http"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSHandler struct {
	service  *app.GameService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerResult struct {
	ProblemID  int64 `json:"problemId"`
	Round      int   `json:"round"`
	SubmitTime int   `json:"submitTime"`
	Awarded    int   `json:"awarded"`
}

type roundResult struct {
	Finished bool           `json:"finished"`
	Round    *app.RoundView `json:"round,omitempty"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades a rostered player's connection and drives the game from
// its messages. Players join over REST first; the socket binds a fresh
// session to them and the player leaves the room when it closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	userID := r.URL.Query().Get("userId")
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	player, err := h.service.ConnectPlayer(r.Context(), roomID, userID, sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), roomID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()
	defer func() {
		// the request context is gone once the client hung up
		if _, err := h.service.ExitRoom(context.Background(), roomID, sessionID); err != nil {
			h.log.Debug("exit after disconnect", zap.String("room_id", roomID), zap.Error(err))
		}
	}()

	log := h.log.With(zap.String("room_id", roomID), zap.String("user_id", userID))
	log.Info("player connected")

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case evt, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(evt.Type), Payload: evt.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "connected", Payload: player}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply, ok := h.handle(r.Context(), roomID, userID, sessionID, inbound); ok {
			send <- reply
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	log.Info("player disconnected")
}

// handle runs one inbound command. Room-wide effects reach the client through
// its event subscription; only the direct reply is returned here.
func (h *WSHandler) handle(ctx context.Context, roomID, userID, sessionID string, in inboundMessage) (outboundMessage, bool) {
	switch in.Type {
	case "start":
		if _, err := h.service.StartGame(ctx, roomID, userID); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage{}, false
	case "answer":
		var answer domain.Answer
		if err := json.Unmarshal(in.Payload, &answer); err != nil {
			return outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}, true
		}
		return h.answer(ctx, roomID, sessionID, answer), true
	case "next":
		view, finished, err := h.service.NextRound(ctx, roomID, userID)
		if err != nil {
			return errorMessage(err), true
		}
		if finished {
			return outboundMessage{Type: "roundResult", Payload: roundResult{Finished: true}}, true
		}
		return outboundMessage{Type: "roundResult", Payload: roundResult{Round: &view}}, true
	case "finish":
		lb, err := h.service.FinishGame(ctx, roomID, userID)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage{Type: "leaderboard", Payload: lb}, true
	case "rotateHost":
		if _, err := h.service.RotateHost(ctx, roomID); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage{}, false
	case "leaderboard":
		lb, err := h.service.Leaderboard(ctx, roomID)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage{Type: "leaderboard", Payload: lb}, true
	default:
		return outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}, true
	}
}

// answer stamps the submission with the server-side round clock so clients
// cannot claim a faster time.
func (h *WSHandler) answer(ctx context.Context, roomID, sessionID string, answer domain.Answer) outboundMessage {
	elapsed, err := h.service.RoundElapsed(roomID)
	if err != nil {
		return errorMessage(err)
	}
	sub, err := h.service.SubmitAnswer(ctx, roomID, sessionID, answer, elapsed)
	if err != nil {
		return errorMessage(err)
	}
	awarded, err := h.service.MarkSolution(ctx, roomID, sub)
	if err != nil {
		return errorMessage(err)
	}
	return outboundMessage{Type: "answerResult", Payload: answerResult{
		ProblemID:  sub.ProblemID,
		Round:      sub.Round,
		SubmitTime: sub.SubmitTime,
		Awarded:    awarded,
	}}
}

func errorMessage(err error) outboundMessage {
	_, payload := toErrorPayload(err)
	return outboundMessage{Type: "error", Payload: payload}
}
