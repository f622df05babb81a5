package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// PollHandler is the request/response realtime adapter: clients poll the room
// snapshot (its version tells them whether anything changed) and the chat log.
type PollHandler struct {
	service *app.RoomService
}

func NewPollHandler(service *app.RoomService) *PollHandler {
	return &PollHandler{service: service}
}

func (h *PollHandler) Register(router *mux.Router) {
	game := router.PathPrefix("/api/game").Subrouter()
	game.HandleFunc("/room/{id}", h.Room).Methods(http.MethodGet)
	game.HandleFunc("/join-room", h.Join).Methods(http.MethodPost)
	game.HandleFunc("/start", h.Start).Methods(http.MethodPost)
	game.HandleFunc("/submit-answer", h.SubmitAnswer).Methods(http.MethodPost)
	game.HandleFunc("/next-question", h.NextQuestion).Methods(http.MethodPost)

	socket := router.PathPrefix("/api/socket").Subrouter()
	socket.HandleFunc("/messages/{roomId}", h.Messages).Methods(http.MethodGet)
	socket.HandleFunc("/chat", h.Chat).Methods(http.MethodPost)
	socket.HandleFunc("/join", h.Join).Methods(http.MethodPost)
	socket.HandleFunc("/leave", h.Leave).Methods(http.MethodPost)
}

type pollRequest struct {
	RoomID        string `json:"roomId"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	QuestionID    string `json:"questionId"`
	QuestionIndex *int   `json:"questionIndex"`
	Answer        string `json:"answer"`
	IsAutoSubmit  bool   `json:"isAutoSubmit"`
	Message       string `json:"message"`
}

func decodePollRequest(r *http.Request) (pollRequest, error) {
	var req pollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	if req.RoomID == "" {
		return req, fmt.Errorf("%w: roomId is required", errBadRequest)
	}
	return req, nil
}

// Room returns the current snapshot; clients compare its version with the last one they saw.
func (h *PollHandler) Room(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *PollHandler) Join(w http.ResponseWriter, r *http.Request) {
	req, err := decodePollRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.Join(r.Context(), req.RoomID, req.UserID, req.UserName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PollHandler) Start(w http.ResponseWriter, r *http.Request) {
	req, err := decodePollRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.Start(r.Context(), req.RoomID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitAnswer accepts either questionIndex or the id of the current question.
func (h *PollHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	req, err := decodePollRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := h.questionIndex(r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.SubmitAnswer(r.Context(), req.RoomID, req.UserID, index, req.Answer, req.IsAutoSubmit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PollHandler) questionIndex(r *http.Request, req pollRequest) (int, error) {
	if req.QuestionIndex != nil {
		return *req.QuestionIndex, nil
	}
	if req.QuestionID == "" {
		return 0, fmt.Errorf("%w: questionIndex or questionId is required", errBadRequest)
	}
	snap, err := h.service.Snapshot(r.Context(), req.RoomID)
	if err != nil {
		return 0, err
	}
	if snap.CurrentQuestion == nil || snap.CurrentQuestion.ID != req.QuestionID {
		return 0, fmt.Errorf("%w: question %q is not the current question", domain.ErrInvalidState, req.QuestionID)
	}
	return snap.CurrentQuestionIndex, nil
}

func (h *PollHandler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	req, err := decodePollRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.Advance(r.Context(), req.RoomID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PollHandler) Messages(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: since must be a sequence number", errBadRequest))
			return
		}
		since = n
	}
	messages, err := h.service.ChatSince(r.Context(), mux.Vars(r)["roomId"], since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *PollHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodePollRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.service.SendChat(r.Context(), req.RoomID, req.UserID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *PollHandler) Leave(w http.ResponseWriter, r *http.Request) {
	req, err := decodePollRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Leave(r.Context(), req.RoomID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
