package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
)

const (
	defaultTimeLimitSeconds = 30
	maxInviteAttempts       = 16
)

// RoomRegistry abstracts where live rooms are indexed (in-memory, Redis-assisted, etc).
// Implementations hand out the same *Room to every caller.
type RoomRegistry interface {
	// Insert stores room; it returns domain.ErrInviteCodeTaken when the code is in use.
	Insert(room *Room) error
	Get(roomID string) (*Room, bool)
	GetByInviteCode(code string) (*Room, bool)
	Delete(roomID string)
	List() []*Room
}

// RoomArchive persists finished rooms.
type RoomArchive interface {
	SaveRoom(ctx context.Context, record domain.RoomRecord) error
	LoadRoom(ctx context.Context, roomID string) (domain.RoomRecord, error)
}

// QuestionSetRepository produces question sets for documents (from cache/backing provider).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, req domain.GenerateRequest) (domain.QuestionSet, error)
}

// RoomService contains the room lifecycle use cases.
type RoomService struct {
	rooms            RoomRegistry
	hub              *Hub
	archive          RoomArchive
	questionSets     QuestionSetRepository
	timers           TimerFactory
	now              func() time.Time
	inviteCodes      func() (string, error)
	defaultTimeLimit int
	chatHistory      int
}

// Option customizes a RoomService.
type Option func(*RoomService)

// WithArchive records finished rooms in archive.
func WithArchive(archive RoomArchive) Option {
	return func(s *RoomService) { s.archive = archive }
}

// WithQuestionSets enables document-based room generation.
func WithQuestionSets(repo QuestionSetRepository) Option {
	return func(s *RoomService) { s.questionSets = repo }
}

// WithTimerFactory replaces the countdown implementation (tests use manual timers).
func WithTimerFactory(timers TimerFactory) Option {
	return func(s *RoomService) { s.timers = timers }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RoomService) { s.now = now }
}

// WithInviteCodes replaces the invite code source.
func WithInviteCodes(next func() (string, error)) Option {
	return func(s *RoomService) { s.inviteCodes = next }
}

// WithDefaultTimeLimit sets the per-question limit used when a room asks for none.
func WithDefaultTimeLimit(seconds int) Option {
	return func(s *RoomService) {
		if seconds > 0 {
			s.defaultTimeLimit = seconds
		}
	}
}

// WithChatHistory bounds the per-room chat log.
func WithChatHistory(n int) Option {
	return func(s *RoomService) {
		if n > 0 {
			s.chatHistory = n
		}
	}
}

func NewRoomService(rooms RoomRegistry, hub *Hub, opts ...Option) *RoomService {
	s := &RoomService{
		rooms:            rooms,
		hub:              hub,
		timers:           RealTimers,
		now:              time.Now,
		inviteCodes:      NewInviteCode,
		defaultTimeLimit: defaultTimeLimitSeconds,
		chatHistory:      defaultChatHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub(0)
	}
	return s
}

// Hub exposes the event hub for transports and mirrors.
func (s *RoomService) Hub() *Hub {
	return s.hub
}

// CreateRoom validates questions and registers a new waiting room.
func (s *RoomService) CreateRoom(ctx context.Context, questions []domain.Question, timeLimitSeconds int) (domain.RoomSnapshot, error) {
	return s.createRoom(ctx, domain.QuestionSet{Questions: questions}, timeLimitSeconds)
}

// GenerateRoom turns a document into a question set and opens a room for it.
func (s *RoomService) GenerateRoom(ctx context.Context, req domain.GenerateRequest) (domain.RoomSnapshot, error) {
	if s.questionSets == nil {
		return domain.RoomSnapshot{}, errors.New("question generation not configured")
	}
	if err := ValidateGenerateRequest(req); err != nil {
		return domain.RoomSnapshot{}, err
	}
	set, err := s.questionSets.GetQuestionSet(ctx, req)
	if err != nil {
		return domain.RoomSnapshot{}, fmt.Errorf("generate questions: %w", err)
	}
	return s.createRoom(ctx, set, req.TimeLimitSeconds)
}

func (s *RoomService) createRoom(_ context.Context, set domain.QuestionSet, timeLimitSeconds int) (domain.RoomSnapshot, error) {
	if err := ValidateQuestionSet(set.Questions); err != nil {
		return domain.RoomSnapshot{}, err
	}
	if timeLimitSeconds <= 0 {
		timeLimitSeconds = s.defaultTimeLimit
	}

	for attempt := 0; attempt < maxInviteAttempts; attempt++ {
		code, err := s.inviteCodes()
		if err != nil {
			return domain.RoomSnapshot{}, fmt.Errorf("invite code: %w", err)
		}
		room := newRoom(roomParams{
			id:               uuid.NewString(),
			inviteCode:       NormalizeInviteCode(code),
			set:              set,
			timeLimitSeconds: timeLimitSeconds,
			chatHistory:      s.chatHistory,
			timers:           s.timers,
			now:              s.now,
			hub:              s.hub,
		})
		err = s.rooms.Insert(room)
		if errors.Is(err, domain.ErrInviteCodeTaken) {
			continue
		}
		if err != nil {
			return domain.RoomSnapshot{}, err
		}
		return room.snapshot(), nil
	}
	return domain.RoomSnapshot{}, fmt.Errorf("no free invite code after %d attempts: %w", maxInviteAttempts, domain.ErrInviteCodeTaken)
}

// FindByID returns the live room with roomID.
func (s *RoomService) FindByID(roomID string) (*Room, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// FindByInviteCode resolves a case-insensitive invite code to its live room.
func (s *RoomService) FindByInviteCode(code string) (*Room, error) {
	room, ok := s.rooms.GetByInviteCode(NormalizeInviteCode(code))
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// Snapshot returns the authoritative view of a room.
func (s *RoomService) Snapshot(_ context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.snapshot(), nil
}

// Join registers or reconnects a participant.
func (s *RoomService) Join(_ context.Context, roomID, userID, displayName string) (domain.JoinResult, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.JoinResult{}, fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}
	room, err := s.FindByID(roomID)
	if err != nil {
		return domain.JoinResult{}, err
	}
	return room.join(userID, displayName)
}

// Start moves a waiting room to its first question. Host only.
func (s *RoomService) Start(_ context.Context, roomID, requesterID string) (domain.AdvanceResult, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return domain.AdvanceResult{}, err
	}
	return room.start(requesterID)
}

// SubmitAnswer grades and records one answer for the current question.
func (s *RoomService) SubmitAnswer(_ context.Context, roomID, userID string, questionIndex int, answer string, isAutoSubmit bool) (domain.AnswerResult, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return room.submit(userID, questionIndex, answer, isAutoSubmit)
}

// Advance moves to the next question or finishes the quiz. Host only.
// A finished room is handed to the archive when one is configured.
func (s *RoomService) Advance(ctx context.Context, roomID, requesterID string) (domain.AdvanceResult, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return domain.AdvanceResult{}, err
	}
	result, err := room.advance(requesterID)
	if err != nil {
		return domain.AdvanceResult{}, err
	}
	if result.Status == domain.StatusFinished && s.archive != nil {
		if err := s.archive.SaveRoom(ctx, room.record()); err != nil {
			log.Printf("archive: save room %s: %v", roomID, err)
		}
	}
	return result, nil
}

// Leave marks a participant as disconnected; their score is kept.
func (s *RoomService) Leave(_ context.Context, roomID, userID string) error {
	room, err := s.FindByID(roomID)
	if err != nil {
		return err
	}
	return room.leave(userID)
}

// SendChat relays a participant's message to the room.
func (s *RoomService) SendChat(_ context.Context, roomID, userID, body string) (domain.ChatMessage, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return room.sendChat(userID, body)
}

// ChatSince returns retained chat and system lines newer than seq.
func (s *RoomService) ChatSince(_ context.Context, roomID string, seq uint64) ([]domain.ChatMessage, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return nil, err
	}
	return room.chatSince(seq), nil
}

// Subscribe returns an ordered event stream for a room, starting with a snapshot.
// The caller must Close the subscription to avoid leaks.
func (s *RoomService) Subscribe(_ context.Context, roomID, userID string) (*Subscription, error) {
	room, err := s.FindByID(roomID)
	if err != nil {
		return nil, err
	}
	return room.subscribe(userID), nil
}

// Results returns final standings from the live room or, once it is gone, the archive.
func (s *RoomService) Results(ctx context.Context, roomID string) ([]domain.Standing, error) {
	if room, ok := s.rooms.Get(roomID); ok {
		standings, finished := room.finalStandings()
		if !finished {
			return nil, fmt.Errorf("%w: quiz has not finished", domain.ErrInvalidState)
		}
		return standings, nil
	}
	if s.archive == nil {
		return nil, domain.ErrRoomNotFound
	}
	record, err := s.archive.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return record.Standings, nil
}

// ReapIdle discards rooms nobody has been connected to for at least idle.
func (s *RoomService) ReapIdle(_ context.Context, idle time.Duration) int {
	now := s.now()
	reaped := 0
	for _, room := range s.rooms.List() {
		if !room.reapIfIdle(now, idle) {
			continue
		}
		s.rooms.Delete(room.ID())
		s.hub.CloseRoom(room.ID())
		reaped++
	}
	return reaped
}

// RunReaper calls ReapIdle every interval until ctx is done.
func (s *RoomService) RunReaper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ReapIdle(ctx, idle); n > 0 {
				log.Printf("reaper: discarded %d idle rooms", n)
			}
		}
	}
}
