package app

import (
	"time"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
)

const (
	defaultChatHistory = 200
	maxChatRunes       = 500
	systemSenderName   = "System"
)

// chatLog keeps the most recent chat and system lines of a room.
type chatLog struct {
	limit    int
	seq      uint64
	messages []domain.ChatMessage
}

func newChatLog(limit int) *chatLog {
	if limit <= 0 {
		limit = defaultChatHistory
	}
	return &chatLog{limit: limit}
}

func (l *chatLog) append(senderID, senderName, body string, kind domain.MessageKind, at time.Time) domain.ChatMessage {
	l.seq++
	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		Seq:        l.seq,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		SentAt:     at,
		Kind:       kind,
	}
	l.messages = append(l.messages, msg)
	if over := len(l.messages) - l.limit; over > 0 {
		l.messages = append(l.messages[:0:0], l.messages[over:]...)
	}
	return msg
}

// since returns messages with a sequence number greater than seq.
func (l *chatLog) since(seq uint64) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(l.messages))
	for _, msg := range l.messages {
		if msg.Seq > seq {
			out = append(out, msg)
		}
	}
	return out
}
