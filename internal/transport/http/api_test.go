package http

import (
	"bytes"
	"context"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizroom-service/internal/app"
	"quizroom-service/internal/infra/memory"
)

func TestCreateRoomAndResolveInviteCode(t *testing.T) {
	service := app.NewRoomService(memory.NewRoomRegistry(), nil, app.WithInviteCodes(func() (string, error) { return "AB12CD", nil }))
	server := httptest.NewServer(NewRouter(service, TransportPush))
	defer server.Close()

	var created map[string]any
	postJSON(t, server, "/api/rooms", map[string]any{"questions": sampleQuestions(), "timeLimit": 20}, http.StatusCreated, &created)
	if created["inviteCode"] != "AB12CD" || created["questionsCount"] != float64(1) {
		t.Fatalf("unexpected create response %+v", created)
	}

	var resolved map[string]string
	getJSON(t, server, "/api/rooms/by-code?code=ab12cd", http.StatusOK, &resolved)
	if resolved["roomId"] != created["roomId"] {
		t.Fatalf("expected %v, got %v", created["roomId"], resolved["roomId"])
	}
	getJSON(t, server, "/api/rooms/by-code?code=ZZZZZZ", http.StatusNotFound, nil)

	var errBody map[string]string
	postJSON(t, server, "/api/rooms", map[string]any{"questions": []any{}}, http.StatusUnprocessableEntity, &errBody)
	if errBody["code"] != "invalid_question_set" {
		t.Fatalf("expected invalid_question_set, got %+v", errBody)
	}
}

func TestInviteQRCode(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, TransportPush))
	defer server.Close()

	snap, _ := service.CreateRoom(context.Background(), sampleQuestions(), 30)
	resp, err := http.Get(server.URL + "/api/rooms/" + snap.ID + "/qr?base=https://quiz.example.com")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected qr response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != qrSize {
		t.Fatalf("expected %dpx image, got %d", qrSize, img.Bounds().Dx())
	}
}

func TestResultsRequireFinishedRoom(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, TransportPush))
	defer server.Close()

	ctx := context.Background()
	snap, _ := service.CreateRoom(ctx, sampleQuestions(), 30)
	getJSON(t, server, "/api/rooms/"+snap.ID+"/results", http.StatusConflict, nil)

	_, _ = service.Join(ctx, snap.ID, "alice", "Alice")
	_, _ = service.Start(ctx, snap.ID, "alice")
	_, _ = service.SubmitAnswer(ctx, snap.ID, "alice", 0, "4", false)
	if _, err := service.Advance(ctx, snap.ID, "alice"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	var body struct {
		FinalScores []struct {
			Rank   int    `json:"rank"`
			UserID string `json:"userId"`
			Score  int    `json:"score"`
		} `json:"finalScores"`
	}
	getJSON(t, server, "/api/rooms/"+snap.ID+"/results", http.StatusOK, &body)
	if len(body.FinalScores) != 1 || body.FinalScores[0].Score != 1 || body.FinalScores[0].Rank != 1 {
		t.Fatalf("unexpected results %+v", body.FinalScores)
	}
	getJSON(t, server, "/api/rooms/missing/results", http.StatusNotFound, nil)
}

func TestGenerateQuestionsFromUpload(t *testing.T) {
	repo := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(sampleQuestions()), time.Minute)
	service := app.NewRoomService(memory.NewRoomRegistry(), nil, app.WithQuestionSets(repo))
	server := httptest.NewServer(NewRouter(service, TransportPush))
	defer server.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, _ := form.CreateFormFile("pdf", "lecture.pdf")
	_, _ = part.Write([]byte("%PDF-1.4 lecture"))
	_ = form.WriteField("questionTypes", `["multiple-choice"]`)
	_ = form.WriteField("questionCount", "1")
	_ = form.WriteField("difficulty", "easy")
	_ = form.WriteField("timeLimit", "45")
	_ = form.Close()

	resp, err := http.Post(server.URL+"/api/generate-questions", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var created map[string]any
	decodeResponse(t, resp, "/api/generate-questions", http.StatusCreated, &created)
	if created["questionsCount"] != float64(1) || created["isPlaceholder"] != false {
		t.Fatalf("unexpected response %+v", created)
	}

	snap, err := service.Snapshot(context.Background(), created["roomId"].(string))
	if err != nil || snap.TimeLimitSeconds != 45 {
		t.Fatalf("expected a 45s room, got %+v (%v)", snap, err)
	}
}

func TestGenerateQuestionsRequiresPDF(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, TransportPush))
	defer server.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("questionCount", "3")
	_ = form.Close()

	resp, err := http.Post(server.URL+"/api/generate-questions", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var errBody map[string]string
	decodeResponse(t, resp, "/api/generate-questions", http.StatusBadRequest, &errBody)
	if !strings.Contains(errBody["message"], "PDF") {
		t.Fatalf("expected PDF required message, got %+v", errBody)
	}
}
