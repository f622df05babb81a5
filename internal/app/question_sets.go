package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"quizroom-service/internal/domain"
)

// QuestionSetKey fingerprints a generation request: the document bytes plus
// every option that changes the produced set. The time limit is a room setting
// and is left out.
func QuestionSetKey(req domain.GenerateRequest) string {
	kinds := make([]string, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	h := sha256.New()
	h.Write(req.Document)
	fmt.Fprintf(h, "|%d|%s|%s", req.Count, strings.Join(kinds, ","), req.Difficulty)
	return hex.EncodeToString(h.Sum(nil))
}
