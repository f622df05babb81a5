package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

const maxDocumentRunes = 60000

// TextExtractor turns an uploaded document into prompt text.
type TextExtractor interface {
	ExtractText(ctx context.Context, document []byte) (string, error)
}

// Config configures an OpenAI-compatible chat completions endpoint.
type Config struct {
	APIURL     string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Generator asks a chat completions model for a question set.
type Generator struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
	maxRetries uint64
	extractor  TextExtractor
}

func NewGenerator(cfg Config, extractor TextExtractor) *Generator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Generator{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: uint64(retries),
		extractor:  extractor,
	}
}

func (g *Generator) IsAvailable() bool {
	return g.apiKey != "" && g.apiURL != ""
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type generatedSet struct {
	Questions []generatedQuestion `json:"questions"`
}

type generatedQuestion struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	Points        int      `json:"points"`
}

const systemPrompt = `You write quiz questions about lecture material. Respond with ONLY valid JSON (no markdown, no code fences) in this format:

{
  "questions": [
    {
      "id": "q1",
      "type": "multiple-choice",
      "question": "Question text?",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correctAnswer": "Option A",
      "explanation": "Why the answer is correct",
      "points": 5
    }
  ]
}

Rules:
- "type" is "multiple-choice" or "short-answer"
- multiple-choice questions have exactly 4 options and correctAnswer repeats the text of one option
- short-answer questions have no options and a correctAnswer of one word or a short phrase
- every question has a unique id, an explanation, and points between 1 and 10
- write in the language of the material`

var difficultyPrompts = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "easy questions about basic concepts and terms",
	domain.DifficultyMedium: "medium questions that check understanding and application of concepts",
	domain.DifficultyHard:   "hard questions that need deeper reasoning and analysis",
}

var kindPrompts = map[domain.QuestionKind]string{
	domain.KindMultipleChoice: "multiple-choice with 4 options",
	domain.KindShortAnswer:    "short-answer, answerable with a word or short phrase",
}

var quotaPattern = regexp.MustCompile(`(?i)quota|rate[ _-]?limit|too many requests`)

// LoadQuestionSet extracts the document text and generates req.Count questions from it.
func (g *Generator) LoadQuestionSet(ctx context.Context, req domain.GenerateRequest) (domain.QuestionSet, error) {
	if !g.IsAvailable() {
		return domain.QuestionSet{}, fmt.Errorf("AI generation is not configured")
	}
	text, err := g.extractor.ExtractText(ctx, req.Document)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("extract document: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req, text)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var content string
	operation := func() error {
		c, err := g.complete(ctx, body)
		if err != nil {
			return err
		}
		content = c
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return domain.QuestionSet{}, err
	}

	var generated generatedSet
	if err := json.Unmarshal([]byte(cleanJSONContent(content)), &generated); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("AI returned invalid JSON: %w", err)
	}
	questions := convertQuestions(generated.Questions, req.Kinds)
	if len(questions) == 0 {
		return domain.QuestionSet{}, fmt.Errorf("%w: AI returned no usable questions", domain.ErrInvalidQuestionSet)
	}
	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}
	return domain.QuestionSet{Questions: questions}, nil
}

// complete performs one chat completions call. Errors that retrying cannot fix are permanent.
func (g *Generator) complete(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", backoff.Permanent(fmt.Errorf("%w: status 429: %s", domain.ErrProviderQuota, truncate(raw)))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(raw))
	case resp.StatusCode != http.StatusOK:
		if quotaPattern.Match(raw) {
			return "", backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrProviderQuota, resp.StatusCode, truncate(raw)))
		}
		return "", backoff.Permanent(fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(raw)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to parse API response: %w", err))
	}
	if chatResp.Error != nil {
		if quotaPattern.MatchString(chatResp.Error.Message) {
			return "", backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrProviderQuota, chatResp.Error.Message))
		}
		return "", backoff.Permanent(fmt.Errorf("API error: %s", chatResp.Error.Message))
	}
	if len(chatResp.Choices) == 0 {
		return "", backoff.Permanent(errors.New("empty response from AI"))
	}
	return chatResp.Choices[0].Message.Content, nil
}

func userPrompt(req domain.GenerateRequest, text string) string {
	kinds := make([]string, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, kindPrompts[k])
	}
	if utf8.RuneCountInString(text) > maxDocumentRunes {
		text = string([]rune(text)[:maxDocumentRunes])
	}
	return fmt.Sprintf(`Create %d questions from the lecture material below.

Question types: %s
Difficulty: %s

Write questions that check whether a learner understood the key concepts.

--- MATERIAL ---
%s`, req.Count, strings.Join(kinds, "; "), difficultyPrompts[req.Difficulty], text)
}

// convertQuestions keeps the requested kinds, repairs ids and points the model got wrong
// and drops items that still fail validation.
func convertQuestions(in []generatedQuestion, kinds []domain.QuestionKind) []domain.Question {
	allowed := make(map[domain.QuestionKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	seen := make(map[string]bool, len(in))
	out := make([]domain.Question, 0, len(in))
	for _, g := range in {
		kind := domain.QuestionKind(strings.TrimSpace(g.Type))
		if !allowed[kind] || strings.TrimSpace(g.Question) == "" {
			continue
		}
		q := domain.Question{
			ID:            strings.TrimSpace(g.ID),
			Kind:          kind,
			Prompt:        strings.TrimSpace(g.Question),
			CorrectAnswer: strings.TrimSpace(g.CorrectAnswer),
			Explanation:   strings.TrimSpace(g.Explanation),
			Points:        g.Points,
		}
		if kind == domain.KindMultipleChoice {
			q.Choices = g.Options
		}
		if q.ID == "" || seen[q.ID] || len(q.ID) > 64 {
			q.ID = fmt.Sprintf("q%d", len(out)+1)
		}
		for seen[q.ID] {
			q.ID += "x"
		}
		if q.Points < 1 {
			q.Points = 1
		}
		if q.Points > 10 {
			q.Points = 10
		}
		// e.g. a correct answer that matches none of the options
		if err := app.ValidateQuestionSet([]domain.Question{q}); err != nil {
			log.Printf("generator: dropping question %q: %v", q.Prompt, err)
			continue
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	return out
}

func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func truncate(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
