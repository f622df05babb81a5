package app

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"quizroom-service/internal/domain"
)

// Grade evaluates answer against q and returns (correct, points). It has no side effects.
//
// Multiple-choice answers may name a choice by its text or by its 0-based index; text wins
// when both would match. Short answers must equal the reference after NFKC normalization,
// whitespace collapsing and case folding. Both kinds pay full points or nothing.
func Grade(q domain.Question, answer string) (bool, int) {
	switch q.Kind {
	case domain.KindMultipleChoice:
		want, ok := choiceIndex(q.Choices, q.CorrectAnswer)
		if !ok {
			return false, 0
		}
		got, ok := choiceIndex(q.Choices, answer)
		if ok && got == want {
			return true, q.Points
		}
	case domain.KindShortAnswer:
		got := normalizeAnswer(answer)
		if got != "" && got == normalizeAnswer(q.CorrectAnswer) {
			return true, q.Points
		}
	}
	return false, 0
}

func choiceIndex(choices []string, value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return -1, false
	}
	for i, choice := range choices {
		if strings.TrimSpace(choice) == value {
			return i, true
		}
	}
	if i, err := strconv.Atoi(value); err == nil && i >= 0 && i < len(choices) {
		return i, true
	}
	return -1, false
}

func normalizeAnswer(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// Casers carry state and are not shared between goroutines.
	return cases.Fold().String(s)
}
