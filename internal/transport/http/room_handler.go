package http

import (
	"encoding/json"
	"net/http"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// RoomHandler exposes the lobby use cases over REST.
type RoomHandler struct {
	service *app.GameService
	log     *zap.Logger
}

func NewRoomHandler(service *app.GameService, log *zap.Logger) *RoomHandler {
	return &RoomHandler{service: service, log: log}
}

type createRoomRequest struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Title     string `json:"title"`
	MaxPlayer int    `json:"maxPlayer"`
	Password  string `json:"password"`
	PlayRound int    `json:"playRound"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

type joinRoomRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register mounts the room routes on mux.
func (h *RoomHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.create)
	mux.HandleFunc("GET /rooms", h.list)
	mux.HandleFunc("POST /rooms/{roomId}/join", h.join)
	mux.HandleFunc("GET /rooms/{roomId}/leaderboard", h.leaderboard)
	mux.HandleFunc("DELETE /rooms/{roomId}", h.delete)
}

func (h *RoomHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "missing userId or username"})
		return
	}
	if req.MaxPlayer < 0 || req.PlayRound < 0 {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "maxPlayer and playRound must not be negative"})
		return
	}

	roomID, err := h.service.CreateRoom(r.Context(), req.UserID, req.Username, domain.RoomSpec{
		Title:     req.Title,
		MaxPlayer: req.MaxPlayer,
		Password:  req.Password,
		PlayRound: req.PlayRound,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{RoomID: roomID})
}

func (h *RoomHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListRooms(r.Context()))
}

func (h *RoomHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "missing userId or username"})
		return
	}
	if err := h.service.JoinRoom(r.Context(), r.PathValue("roomId"), req.Password, req.UserID, req.Username); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("roomId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *RoomHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRoom(r.Context(), r.PathValue("roomId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := toErrorPayload(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err)
}
