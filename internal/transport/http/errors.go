package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quizroom-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps domain errors onto an HTTP status and a stable client-facing code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found"
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden, "not_host"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return http.StatusConflict, "already_submitted"
	case errors.Is(err, domain.ErrQuestionOpen):
		return http.StatusConflict, "question_open"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrInvalidQuestionSet):
		return http.StatusUnprocessableEntity, "invalid_question_set"
	case errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound, "participant_not_found"
	case errors.Is(err, domain.ErrInvalidMessage), errors.Is(err, domain.ErrInvalidInput), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrProviderQuota):
		return http.StatusTooManyRequests, "provider_quota"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBadRequest = errors.New("bad request")

func toErrorPayload(err error) errorPayload {
	_, code := errorStatus(err)
	return errorPayload{Code: code, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
}
