package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

const (
	maxUploadBytes = 20 << 20
	qrSize         = 256
)

// Transport selects the realtime adapter exposed next to the HTTP API.
type Transport string

const (
	TransportPush Transport = "push"
	TransportPoll Transport = "poll"
)

// NewRouter wires the HTTP API and the selected realtime adapter.
func NewRouter(service *app.RoomService, transport Transport) http.Handler {
	router := mux.NewRouter()
	router.Use(logRequests)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := NewAPIHandler(service)
	api.Register(router)

	switch transport {
	case TransportPoll:
		NewPollHandler(service).Register(router)
	default:
		router.HandleFunc("/ws", NewWSHandler(service).ServeWS)
	}
	return router
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s %s", r.Method, r.RequestURI, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// APIHandler serves room creation, invite resolution and results.
type APIHandler struct {
	service *app.RoomService
}

func NewAPIHandler(service *app.RoomService) *APIHandler {
	return &APIHandler{service: service}
}

func (h *APIHandler) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", h.CreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/by-code", h.ResolveInviteCode).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", h.GetRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/qr", h.InviteQR).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/results", h.Results).Methods(http.MethodGet)
	api.HandleFunc("/generate-questions", h.GenerateQuestions).Methods(http.MethodPost)
}

type createRoomRequest struct {
	Questions []domain.Question `json:"questions"`
	TimeLimit int               `json:"timeLimit"`
}

type roomCreated struct {
	RoomID         string `json:"roomId"`
	InviteCode     string `json:"inviteCode"`
	QuestionsCount int    `json:"questionsCount"`
	IsPlaceholder  bool   `json:"isPlaceholder"`
}

func newRoomCreated(snap domain.RoomSnapshot) roomCreated {
	return roomCreated{
		RoomID:         snap.ID,
		InviteCode:     snap.InviteCode,
		QuestionsCount: snap.QuestionCount,
		IsPlaceholder:  snap.IsPlaceholder,
	}
}

func (h *APIHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}
	snap, err := h.service.CreateRoom(r.Context(), req.Questions, req.TimeLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRoomCreated(snap))
}

// GenerateQuestions accepts a multipart PDF upload and opens a room for the generated set.
func (h *APIHandler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}
	file, _, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, fmt.Errorf("%w: PDF file is required", errBadRequest))
		return
	}
	defer file.Close()
	document, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: read upload: %v", errBadRequest, err))
		return
	}

	req := domain.GenerateRequest{
		Document:   document,
		Count:      formInt(r, "questionCount", 5),
		Difficulty: domain.Difficulty(strings.ToLower(strings.TrimSpace(r.FormValue("difficulty")))),
		// 0 means the configured default
		TimeLimitSeconds: formInt(r, "timeLimit", 0),
	}
	if req.Difficulty == "" {
		req.Difficulty = domain.DifficultyMedium
	}
	if raw := r.FormValue("questionTypes"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Kinds); err != nil {
			writeError(w, fmt.Errorf("%w: questionTypes must be a JSON array", errBadRequest))
			return
		}
	} else {
		req.Kinds = []domain.QuestionKind{domain.KindMultipleChoice}
	}

	snap, err := h.service.GenerateRoom(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRoomCreated(snap))
}

func formInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func (h *APIHandler) ResolveInviteCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		writeError(w, fmt.Errorf("%w: code is required", errBadRequest))
		return
	}
	room, err := h.service.FindByInviteCode(code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"roomId": room.ID()})
}

func (h *APIHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// InviteQR renders a PNG QR code pointing at the room's join page under base.
func (h *APIHandler) InviteQR(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.FindByID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	base := strings.TrimRight(r.URL.Query().Get("base"), "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	link := fmt.Sprintf("%s/room/%s?code=%s", base, room.ID(), room.InviteCode())
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, fmt.Errorf("encode qr: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (h *APIHandler) Results(w http.ResponseWriter, r *http.Request) {
	standings, err := h.service.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"finalScores": standings})
}
