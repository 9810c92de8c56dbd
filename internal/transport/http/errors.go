package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"arena-quiz-service/internal/domain"
)

var statusByCode = map[domain.Code]int{
	domain.CodeRoomNotFound:       http.StatusNotFound,
	domain.CodeUserNotFound:       http.StatusNotFound,
	domain.CodeProblemNotFound:    http.StatusNotFound,
	domain.CodeRoomExists:         http.StatusConflict,
	domain.CodeGameAlreadyStarted: http.StatusConflict,
	domain.CodeRoomFull:           http.StatusConflict,
	domain.CodeStaleSubmission:    http.StatusConflict,
	domain.CodeAlreadyAnswered:    http.StatusConflict,
	domain.CodeNotHost:            http.StatusForbidden,
	domain.CodeInvalidPassword:    http.StatusForbidden,
	domain.CodeSubmitTimeExceeded: http.StatusUnprocessableEntity,
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// toErrorPayload keeps internal error text away from clients.
func toErrorPayload(err error) (int, errorPayload) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		status, ok := statusByCode[derr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		return status, errorPayload{Code: string(derr.Code), Message: derr.Error(), Field: derr.Field}
	}
	return http.StatusInternalServerError, errorPayload{Message: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, payload := toErrorPayload(err)
	writeJSON(w, status, payload)
}
