package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"quizroom-service/internal/domain"
)

const placeholderCount = 5

// Loader is anything that generates question sets.
type Loader interface {
	LoadQuestionSet(ctx context.Context, req domain.GenerateRequest) (domain.QuestionSet, error)
}

// FallbackLoader substitutes placeholder questions when the provider is out of
// quota or rate limited, or when no provider is configured at all.
type FallbackLoader struct {
	primary   Loader
	available func() bool
}

// NewFallbackLoader wraps primary; available may be nil.
func NewFallbackLoader(primary Loader, available func() bool) *FallbackLoader {
	return &FallbackLoader{primary: primary, available: available}
}

func (l *FallbackLoader) LoadQuestionSet(ctx context.Context, req domain.GenerateRequest) (domain.QuestionSet, error) {
	if l.primary == nil || (l.available != nil && !l.available()) {
		log.Printf("generator: no provider configured, using placeholder questions")
		return Placeholders(), nil
	}
	set, err := l.primary.LoadQuestionSet(ctx, req)
	if errors.Is(err, domain.ErrProviderQuota) {
		log.Printf("generator: %v, using placeholder questions", err)
		return Placeholders(), nil
	}
	return set, err
}

// Placeholders returns the stand-in set served while the provider is unavailable.
func Placeholders() domain.QuestionSet {
	questions := make([]domain.Question, placeholderCount)
	for i := range questions {
		questions[i] = domain.Question{
			ID:            fmt.Sprintf("mock-%d", i+1),
			Kind:          domain.KindMultipleChoice,
			Prompt:        fmt.Sprintf("Placeholder question %d: shown while the question provider is unavailable.", i+1),
			Choices:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
			Explanation:   "This is not a generated question; the provider quota was exhausted.",
			Points:        1,
		}
	}
	return domain.QuestionSet{Questions: questions, IsPlaceholder: true}
}
