package app

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quizroom-service/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateQuestionSet checks the Question invariants for every item of a set.
func ValidateQuestionSet(questions []domain.Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: no questions", domain.ErrInvalidQuestionSet)
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := validate.Struct(q); err != nil {
			return fmt.Errorf("%w: question %d: %v", domain.ErrInvalidQuestionSet, i, err)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", domain.ErrInvalidQuestionSet, q.ID)
		}
		seen[q.ID] = struct{}{}

		switch q.Kind {
		case domain.KindMultipleChoice:
			if len(q.Choices) < 2 {
				return fmt.Errorf("%w: question %d needs at least 2 choices", domain.ErrInvalidQuestionSet, i)
			}
			if _, ok := choiceIndex(q.Choices, q.CorrectAnswer); !ok {
				return fmt.Errorf("%w: question %d correct answer matches no choice", domain.ErrInvalidQuestionSet, i)
			}
		case domain.KindShortAnswer:
			if len(q.Choices) > 0 {
				return fmt.Errorf("%w: short-answer question %d has choices", domain.ErrInvalidQuestionSet, i)
			}
			if strings.TrimSpace(q.CorrectAnswer) == "" {
				return fmt.Errorf("%w: question %d has a blank reference answer", domain.ErrInvalidQuestionSet, i)
			}
		}
	}
	return nil
}

// ValidateGenerateRequest checks generation options before any provider call.
func ValidateGenerateRequest(req domain.GenerateRequest) error {
	if len(req.Document) == 0 {
		return fmt.Errorf("%w: empty document", domain.ErrInvalidQuestionSet)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidQuestionSet, err)
	}
	return nil
}
