package app

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"quizroom-service/internal/domain"
)

// Room is the single authoritative copy of one quiz session. Every mutation
// goes through the room lock, which gives all operations on a room (including
// timer expiry) one total order; events are published in that order.
type Room struct {
	id               string
	inviteCode       string
	questions        []domain.Question
	timeLimitSeconds int
	timeLimit        time.Duration
	isPlaceholder    bool
	createdAt        time.Time
	now              func() time.Time
	hub              *Hub

	mu           sync.Mutex
	status       domain.RoomStatus
	current      int
	hostUserID   string
	participants map[string]*domain.Participant
	order        []string
	submissions  map[int]map[string]struct{}
	timer        *sessionTimer
	expired      bool
	deadline     time.Time
	startedAt    time.Time
	finishedAt   time.Time
	standings    []domain.Standing
	chat         *chatLog
	seq          uint64
	lastActivity time.Time
	// set once the reaper discarded the room; later joins see a missing room
	reaped bool
}

type roomParams struct {
	id               string
	inviteCode       string
	set              domain.QuestionSet
	timeLimitSeconds int
	chatHistory      int
	timers           TimerFactory
	now              func() time.Time
	hub              *Hub
}

func newRoom(p roomParams) *Room {
	now := p.now
	if now == nil {
		now = time.Now
	}
	created := now()
	return &Room{
		id:               p.id,
		inviteCode:       p.inviteCode,
		questions:        append([]domain.Question(nil), p.set.Questions...),
		timeLimitSeconds: p.timeLimitSeconds,
		timeLimit:        time.Duration(p.timeLimitSeconds) * time.Second,
		isPlaceholder:    p.set.IsPlaceholder,
		createdAt:        created,
		now:              now,
		hub:              p.hub,
		status:           domain.StatusWaiting,
		participants:     make(map[string]*domain.Participant),
		submissions:      make(map[int]map[string]struct{}),
		timer:            newSessionTimer(p.timers),
		chat:             newChatLog(p.chatHistory),
		lastActivity:     created,
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// InviteCode returns the normalized invite code.
func (r *Room) InviteCode() string { return r.inviteCode }

// Status returns the current lifecycle state.
func (r *Room) Status() domain.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Room) join(userID, displayName string) (domain.JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reaped {
		return domain.JoinResult{}, domain.ErrRoomNotFound
	}
	participant, ok := r.participants[userID]
	if !ok && r.status == domain.StatusFinished {
		return domain.JoinResult{}, fmt.Errorf("%w: quiz has finished", domain.ErrInvalidState)
	}

	now := r.now()
	r.lastActivity = now
	displayName = strings.TrimSpace(displayName)

	switch {
	case !ok:
		if displayName == "" {
			displayName = userID
		}
		participant = &domain.Participant{
			UserID:      userID,
			DisplayName: displayName,
			JoinOrder:   len(r.order),
			Connected:   true,
		}
		r.participants[userID] = participant
		r.order = append(r.order, userID)
		if r.hostUserID == "" {
			r.hostUserID = userID
		}
		r.noticeLocked(fmt.Sprintf("%s joined the room", participant.DisplayName))
	case !participant.Connected:
		if displayName != "" {
			participant.DisplayName = displayName
		}
		participant.Connected = true
		r.noticeLocked(fmt.Sprintf("%s reconnected", participant.DisplayName))
	default:
		if displayName != "" {
			participant.DisplayName = displayName
		}
	}
	participant.LastUpdated = now

	r.reassignHostLocked()
	r.ensureTimerLocked()
	r.rosterLocked()

	return domain.JoinResult{
		RoomID: r.id,
		IsHost: r.hostUserID == userID,
		Status: r.status,
	}, nil
}

func (r *Room) start(requesterID string) (domain.AdvanceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requesterID == "" || requesterID != r.hostUserID {
		return domain.AdvanceResult{}, domain.ErrNotHost
	}
	if r.status != domain.StatusWaiting {
		return domain.AdvanceResult{}, fmt.Errorf("%w: quiz is already %s", domain.ErrInvalidState, r.status)
	}

	now := r.now()
	r.status = domain.StatusActive
	r.current = 0
	r.startedAt = now
	r.lastActivity = now
	r.noticeLocked("The quiz has started")
	r.openQuestionLocked()

	return domain.AdvanceResult{
		Status:               r.status,
		CurrentQuestionIndex: r.current,
		IsLastQuestion:       r.current == len(r.questions)-1,
	}, nil
}

func (r *Room) submit(userID string, questionIndex int, answer string, auto bool) (domain.AnswerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.submitLocked(userID, questionIndex, answer, auto)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if r.timer.armed() && r.allConnectedSubmittedLocked() {
		r.timer.cancel()
	}
	r.rosterLocked()
	return result, nil
}

// submitLocked is the only path that records a submission, manual or automatic.
func (r *Room) submitLocked(userID string, questionIndex int, answer string, auto bool) (domain.AnswerResult, error) {
	if r.status != domain.StatusActive {
		return domain.AnswerResult{}, fmt.Errorf("%w: quiz is %s", domain.ErrInvalidState, r.status)
	}
	if questionIndex != r.current {
		return domain.AnswerResult{}, fmt.Errorf("%w: question %d is not the current question", domain.ErrInvalidState, questionIndex)
	}
	participant, ok := r.participants[userID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	submitted := r.submissions[questionIndex]
	if _, dup := submitted[userID]; dup {
		return domain.AnswerResult{}, domain.ErrAlreadySubmitted
	}

	question := r.questions[questionIndex]
	correct, points := Grade(question, answer)

	now := r.now()
	participant.Score += points
	participant.LastUpdated = now
	submitted[userID] = struct{}{}
	r.lastActivity = now

	result := domain.AnswerResult{
		QuestionIndex: questionIndex,
		Correct:       correct,
		Awarded:       points,
		TotalScore:    participant.Score,
		Explanation:   question.Explanation,
		AutoSubmitted: auto,
	}
	r.emitLocked(domain.EventAnswerGraded, userID, result)
	if auto {
		r.noticeLocked(fmt.Sprintf("%s ran out of time", participant.DisplayName))
	} else {
		r.noticeLocked(fmt.Sprintf("%s submitted an answer", participant.DisplayName))
	}
	return result, nil
}

func (r *Room) advance(requesterID string) (domain.AdvanceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requesterID == "" || requesterID != r.hostUserID {
		return domain.AdvanceResult{}, domain.ErrNotHost
	}
	if r.status != domain.StatusActive {
		return domain.AdvanceResult{}, fmt.Errorf("%w: quiz is %s", domain.ErrInvalidState, r.status)
	}
	if !r.expired && !r.allConnectedSubmittedLocked() {
		return domain.AdvanceResult{}, domain.ErrQuestionOpen
	}

	r.timer.cancel()
	// Participants who dropped out without answering still get exactly one record.
	r.autoSubmitPendingLocked()
	r.lastActivity = r.now()

	if r.current == len(r.questions)-1 {
		r.finishLocked()
		return domain.AdvanceResult{
			Status:               r.status,
			CurrentQuestionIndex: r.current,
			IsLastQuestion:       true,
			Standings:            append([]domain.Standing(nil), r.standings...),
		}, nil
	}

	r.current++
	r.noticeLocked(fmt.Sprintf("Question %d started", r.current+1))
	r.openQuestionLocked()
	return domain.AdvanceResult{
		Status:               r.status,
		CurrentQuestionIndex: r.current,
		IsLastQuestion:       r.current == len(r.questions)-1,
	}, nil
}

func (r *Room) leave(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	participant, ok := r.participants[userID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if !participant.Connected {
		return nil
	}
	participant.Connected = false
	participant.LastUpdated = r.now()
	r.lastActivity = participant.LastUpdated
	r.noticeLocked(fmt.Sprintf("%s left the room", participant.DisplayName))

	r.reassignHostLocked()
	if r.timer.armed() && r.allConnectedSubmittedLocked() {
		r.timer.cancel()
	}
	r.rosterLocked()
	return nil
}

func (r *Room) sendChat(userID, body string) (domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participant, ok := r.participants[userID]
	if !ok {
		return domain.ChatMessage{}, domain.ErrParticipantNotFound
	}
	body = strings.TrimSpace(body)
	if body == "" || utf8.RuneCountInString(body) > maxChatRunes {
		return domain.ChatMessage{}, domain.ErrInvalidMessage
	}
	now := r.now()
	r.lastActivity = now
	msg := r.chat.append(userID, participant.DisplayName, body, domain.MessageUser, now)
	r.emitLocked(domain.EventChat, "", msg)
	return msg, nil
}

// expire runs on the timer goroutine.
func (r *Room) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.timer.fired(gen) || r.status != domain.StatusActive {
		return
	}
	r.expired = true
	r.lastActivity = r.now()
	if r.autoSubmitPendingLocked() > 0 {
		r.rosterLocked()
	}
}

func (r *Room) subscribe(userID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := r.hub.Subscribe(r.id, userID)
	sub.deliver(domain.Event{
		RoomID:    r.id,
		Seq:       r.seq,
		Type:      domain.EventSnapshot,
		Recipient: userID,
		Payload:   r.snapshotLocked(),
		At:        r.now(),
	})
	return sub
}

func (r *Room) snapshot() domain.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) chatSince(seq uint64) []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chat.since(seq)
}

func (r *Room) finalStandings() ([]domain.Standing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != domain.StatusFinished {
		return nil, false
	}
	return append([]domain.Standing(nil), r.standings...), true
}

func (r *Room) record() domain.RoomRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make(map[int][]string, len(r.submissions))
	for idx, users := range r.submissions {
		ids := make([]string, 0, len(users))
		for id := range users {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		subs[idx] = ids
	}
	return domain.RoomRecord{
		ID:               r.id,
		InviteCode:       r.inviteCode,
		Questions:        append([]domain.Question(nil), r.questions...),
		TimeLimitSeconds: r.timeLimitSeconds,
		HostUserID:       r.hostUserID,
		Participants:     r.participantsLocked(),
		Submissions:      subs,
		Standings:        append([]domain.Standing(nil), r.standings...),
		IsPlaceholder:    r.isPlaceholder,
		CreatedAt:        r.createdAt,
		StartedAt:        r.startedAt,
		FinishedAt:       r.finishedAt,
	}
}

// idle reports whether nobody is connected and nothing happened for at least d.
// reapIfIdle discards the room when nobody has been connected for at least d.
// The check and the discard happen under one lock so a concurrent join either
// keeps the room alive or sees it gone.
func (r *Room) reapIfIdle(now time.Time, d time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reaped {
		return false
	}
	for _, p := range r.participants {
		if p.Connected {
			return false
		}
	}
	if now.Sub(r.lastActivity) < d {
		return false
	}
	r.reaped = true
	r.timer.cancel()
	return true
}

func (r *Room) openQuestionLocked() {
	r.submissions[r.current] = make(map[string]struct{})
	r.expired = false
	r.deadline = r.now().Add(r.timeLimit)
	r.armTimerLocked(r.timeLimit)

	r.emitLocked(domain.EventQuestionChanged, "", domain.QuestionPayload{
		Index:            r.current,
		QuestionCount:    len(r.questions),
		Question:         r.questions[r.current].Public(),
		TimeLimitSeconds: r.timeLimitSeconds,
		Deadline:         r.deadline,
	})
	r.rosterLocked()
}

func (r *Room) armTimerLocked(d time.Duration) {
	r.timer.arm(d, r.expire)
}

// ensureTimerLocked restarts the countdown for the remaining time when someone
// who still owes an answer connects after the timer was cancelled early.
func (r *Room) ensureTimerLocked() {
	if r.status != domain.StatusActive || r.expired || r.timer.armed() || r.allConnectedSubmittedLocked() {
		return
	}
	remaining := r.deadline.Sub(r.now())
	if remaining <= 0 {
		r.expired = true
		r.autoSubmitPendingLocked()
		return
	}
	r.armTimerLocked(remaining)
}

func (r *Room) autoSubmitPendingLocked() int {
	submitted := r.submissions[r.current]
	n := 0
	for _, userID := range r.order {
		if _, ok := submitted[userID]; ok {
			continue
		}
		if _, err := r.submitLocked(userID, r.current, "", true); err == nil {
			n++
		}
	}
	return n
}

func (r *Room) allConnectedSubmittedLocked() bool {
	submitted := r.submissions[r.current]
	for _, userID := range r.order {
		if !r.participants[userID].Connected {
			continue
		}
		if _, ok := submitted[userID]; !ok {
			return false
		}
	}
	return true
}

func (r *Room) finishLocked() {
	r.timer.cancel()
	r.status = domain.StatusFinished
	r.finishedAt = r.now()
	r.standings = r.standingsLocked()

	r.emitLocked(domain.EventQuizFinished, "", domain.FinishedPayload{
		Standings: append([]domain.Standing(nil), r.standings...),
	})
	r.noticeLocked("The quiz has finished")
	r.rosterLocked()
}

// reassignHostLocked promotes the earliest-joined connected participant when
// the host is gone. With nobody connected the host is kept.
func (r *Room) reassignHostLocked() {
	if host, ok := r.participants[r.hostUserID]; ok && host.Connected {
		return
	}
	for _, userID := range r.order {
		participant := r.participants[userID]
		if !participant.Connected {
			continue
		}
		if userID != r.hostUserID {
			r.hostUserID = userID
			r.noticeLocked(fmt.Sprintf("%s is now the host", participant.DisplayName))
		}
		return
	}
}

func (r *Room) standingsLocked() []domain.Standing {
	views := r.participantsLocked()
	// views are in join order, so a stable sort breaks score ties by join order.
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Score > views[j].Score
	})
	standings := make([]domain.Standing, len(views))
	for i, v := range views {
		standings[i] = domain.Standing{
			Rank:        i + 1,
			UserID:      v.UserID,
			DisplayName: v.DisplayName,
			Score:       v.Score,
		}
	}
	return standings
}

func (r *Room) participantsLocked() []domain.ParticipantView {
	submitted := r.submissions[r.current]
	views := make([]domain.ParticipantView, 0, len(r.order))
	for _, userID := range r.order {
		p := r.participants[userID]
		_, done := submitted[userID]
		views = append(views, domain.ParticipantView{
			UserID:       p.UserID,
			DisplayName:  p.DisplayName,
			Score:        p.Score,
			IsHost:       userID == r.hostUserID,
			Connected:    p.Connected,
			HasSubmitted: r.status == domain.StatusActive && done,
		})
	}
	return views
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		ID:                   r.id,
		InviteCode:           r.inviteCode,
		Status:               r.status,
		CurrentQuestionIndex: r.current,
		QuestionCount:        len(r.questions),
		TimeLimitSeconds:     r.timeLimitSeconds,
		HostUserID:           r.hostUserID,
		Participants:         r.participantsLocked(),
		IsPlaceholder:        r.isPlaceholder,
		Version:              r.seq,
		CreatedAt:            r.createdAt,
	}
	switch r.status {
	case domain.StatusActive:
		q := r.questions[r.current].Public()
		deadline := r.deadline
		snap.CurrentQuestion = &q
		snap.Deadline = &deadline
	case domain.StatusFinished:
		snap.Standings = append([]domain.Standing(nil), r.standings...)
	}
	return snap
}

func (r *Room) rosterLocked() {
	r.emitLocked(domain.EventRosterChanged, "", domain.RosterPayload{
		HostUserID:   r.hostUserID,
		Participants: r.participantsLocked(),
	})
}

func (r *Room) noticeLocked(text string) {
	msg := r.chat.append(domain.SystemSender, systemSenderName, text, domain.MessageSystem, r.now())
	r.emitLocked(domain.EventSystemNotice, "", msg)
}

func (r *Room) emitLocked(typ domain.EventType, recipient string, payload any) {
	r.seq++
	r.hub.Publish(domain.Event{
		RoomID:    r.id,
		Seq:       r.seq,
		Type:      typ,
		Recipient: recipient,
		Payload:   payload,
		At:        r.now(),
	})
}
