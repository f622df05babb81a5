package domain

import "time"

// EventType names an outbound realtime event.
type EventType string

const (
	EventSnapshot        EventType = "snapshot"
	EventRosterChanged   EventType = "roster_changed"
	EventQuestionChanged EventType = "question_changed"
	EventAnswerGraded    EventType = "answer_graded"
	EventQuizFinished    EventType = "quiz_finished"
	EventChat            EventType = "chat"
	EventSystemNotice    EventType = "system_notice"
)

// Event is one room-state change in the room's total order.
// A non-empty Recipient makes the event unicast.
type Event struct {
	RoomID    string    `json:"roomId"`
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Recipient string    `json:"recipient,omitempty"`
	Payload   any       `json:"payload"`
	At        time.Time `json:"at"`
}

// RosterPayload accompanies EventRosterChanged.
type RosterPayload struct {
	HostUserID   string            `json:"hostUserId"`
	Participants []ParticipantView `json:"participants"`
}

// QuestionPayload accompanies EventQuestionChanged.
type QuestionPayload struct {
	Index            int            `json:"currentQuestion"`
	QuestionCount    int            `json:"questionCount"`
	Question         PublicQuestion `json:"question"`
	TimeLimitSeconds int            `json:"timeLimit"`
	Deadline         time.Time      `json:"deadline"`
}

// FinishedPayload accompanies EventQuizFinished.
type FinishedPayload struct {
	Standings []Standing `json:"finalScores"`
}
