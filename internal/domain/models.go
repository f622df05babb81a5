package domain

import "time"

// QuestionKind distinguishes how a question is answered and graded.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindShortAnswer    QuestionKind = "short-answer"
)

// Question is one generated quiz item. It is immutable once a room holds it.
type Question struct {
	ID            string       `json:"id" validate:"required,max=64"`
	Kind          QuestionKind `json:"type" validate:"required,oneof=multiple-choice short-answer"`
	Prompt        string       `json:"question" validate:"required"`
	Choices       []string     `json:"options,omitempty" validate:"omitempty,dive,required"`
	CorrectAnswer string       `json:"correctAnswer" validate:"required"`
	Explanation   string       `json:"explanation,omitempty"`
	Points        int          `json:"points" validate:"gt=0"`
}

// PublicQuestion is the participant-facing view of a question; the answer stays on the server.
type PublicQuestion struct {
	ID      string       `json:"id"`
	Kind    QuestionKind `json:"type"`
	Prompt  string       `json:"question"`
	Choices []string     `json:"options,omitempty"`
	Points  int          `json:"points"`
}

// Public strips grading data from q.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:      q.ID,
		Kind:    q.Kind,
		Prompt:  q.Prompt,
		Choices: append([]string(nil), q.Choices...),
		Points:  q.Points,
	}
}

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// Participant represents a room member and their accumulated score.
type Participant struct {
	UserID      string
	DisplayName string
	Score       int
	JoinOrder   int
	Connected   bool
	LastUpdated time.Time
}

// ParticipantView is a snapshot-friendly roster entry.
type ParticipantView struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
	IsHost       bool   `json:"isHost"`
	Connected    bool   `json:"connected"`
	HasSubmitted bool   `json:"hasSubmitted"`
}

// Standing is one row of the final ranking.
type Standing struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// MessageKind separates participant chat from generated notices.
type MessageKind string

const (
	MessageUser   MessageKind = "message"
	MessageSystem MessageKind = "system"
)

// SystemSender is the sender id used for generated notices.
const SystemSender = "system"

// ChatMessage is an ephemeral chat or system line kept for the room's lifetime.
type ChatMessage struct {
	ID         string      `json:"id"`
	Seq        uint64      `json:"seq"`
	SenderID   string      `json:"userId"`
	SenderName string      `json:"userName"`
	Body       string      `json:"message"`
	SentAt     time.Time   `json:"timestamp"`
	Kind       MessageKind `json:"type"`
}

// JoinResult is returned to a joining participant.
type JoinResult struct {
	RoomID string     `json:"roomId"`
	IsHost bool       `json:"isHost"`
	Status RoomStatus `json:"status"`
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionIndex int    `json:"questionIndex"`
	Correct       bool   `json:"isCorrect"`
	Awarded       int    `json:"points"`
	TotalScore    int    `json:"totalScore"`
	Explanation   string `json:"explanation,omitempty"`
	AutoSubmitted bool   `json:"autoSubmitted"`
}

// AdvanceResult reports where a room ended up after the host advanced it.
type AdvanceResult struct {
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestion"`
	IsLastQuestion       bool       `json:"isLastQuestion"`
	Standings            []Standing `json:"finalScores,omitempty"`
}

// RoomSnapshot is the authoritative, answer-free view of a room that clients reconcile against.
type RoomSnapshot struct {
	ID                   string            `json:"id"`
	InviteCode           string            `json:"inviteCode"`
	Status               RoomStatus        `json:"status"`
	CurrentQuestionIndex int               `json:"currentQuestion"`
	QuestionCount        int               `json:"questionCount"`
	TimeLimitSeconds     int               `json:"timeLimit"`
	HostUserID           string            `json:"hostUserId"`
	Participants         []ParticipantView `json:"participants"`
	CurrentQuestion      *PublicQuestion   `json:"question,omitempty"`
	Deadline             *time.Time        `json:"deadline,omitempty"`
	Standings            []Standing        `json:"finalScores,omitempty"`
	IsPlaceholder        bool              `json:"isPlaceholder"`
	Version              uint64            `json:"version"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// RoomRecord is the durable form of a finished room.
type RoomRecord struct {
	ID               string            `json:"id"`
	InviteCode       string            `json:"inviteCode"`
	Questions        []Question        `json:"questions"`
	TimeLimitSeconds int               `json:"timeLimit"`
	HostUserID       string            `json:"hostUserId"`
	Participants     []ParticipantView `json:"participants"`
	Submissions      map[int][]string  `json:"submissions"`
	Standings        []Standing        `json:"finalScores"`
	IsPlaceholder    bool              `json:"isPlaceholder"`
	CreatedAt        time.Time         `json:"createdAt"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
}

// Difficulty is a generation hint for the question provider.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// GenerateRequest carries a source document and the options for generating a question set.
type GenerateRequest struct {
	Document         []byte         `json:"-"`
	Count            int            `json:"count" validate:"gte=1,lte=50"`
	Kinds            []QuestionKind `json:"kinds" validate:"required,min=1,dive,oneof=multiple-choice short-answer"`
	Difficulty       Difficulty     `json:"difficulty" validate:"required,oneof=easy medium hard"`
	TimeLimitSeconds int            `json:"timeLimit" validate:"gte=0,lte=3600"`
}

// QuestionSet is the output of a generation run.
type QuestionSet struct {
	Questions     []Question `json:"questions"`
	IsPlaceholder bool       `json:"isPlaceholder"`
}
