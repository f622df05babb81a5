package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPollFlow(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, TransportPoll))
	defer server.Close()

	snap, err := service.CreateRoom(context.Background(), sampleQuestions(), 60)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	var joined map[string]any
	postJSON(t, server, "/api/game/join-room", map[string]any{"roomId": snap.ID, "userId": "alice", "userName": "Alice"}, http.StatusOK, &joined)
	if joined["isHost"] != true {
		t.Fatalf("expected host, got %+v", joined)
	}
	postJSON(t, server, "/api/socket/join", map[string]any{"roomId": snap.ID, "userId": "bob", "userName": "Bob"}, http.StatusOK, nil)

	var errBody map[string]string
	postJSON(t, server, "/api/game/join-room", map[string]any{"roomId": snap.ID, "userId": "  ", "userName": "Nobody"}, http.StatusBadRequest, &errBody)
	if errBody["code"] != "bad_request" {
		t.Fatalf("expected bad_request for a blank user id, got %+v", errBody)
	}
	postJSON(t, server, "/api/game/start", map[string]any{"roomId": snap.ID, "userId": "bob"}, http.StatusForbidden, &errBody)
	if errBody["code"] != "not_host" {
		t.Fatalf("expected not_host, got %+v", errBody)
	}
	postJSON(t, server, "/api/game/start", map[string]any{"roomId": snap.ID, "userId": "alice"}, http.StatusOK, nil)

	var room map[string]any
	getJSON(t, server, "/api/game/room/"+snap.ID, http.StatusOK, &room)
	if room["status"] != "active" {
		t.Fatalf("expected active room, got %v", room["status"])
	}
	version := room["version"].(float64)

	var graded map[string]any
	postJSON(t, server, "/api/game/submit-answer", map[string]any{
		"roomId": snap.ID, "userId": "alice", "questionId": "q1", "answer": "4",
	}, http.StatusOK, &graded)
	if graded["isCorrect"] != true {
		t.Fatalf("expected correct answer, got %+v", graded)
	}
	postJSON(t, server, "/api/game/submit-answer", map[string]any{
		"roomId": snap.ID, "userId": "alice", "questionIndex": 0, "answer": "4",
	}, http.StatusConflict, &errBody)
	if errBody["code"] != "already_submitted" {
		t.Fatalf("expected already_submitted, got %+v", errBody)
	}

	getJSON(t, server, "/api/game/room/"+snap.ID, http.StatusOK, &room)
	if room["version"].(float64) <= version {
		t.Fatalf("expected version to move after a submission")
	}

	postJSON(t, server, "/api/game/next-question", map[string]any{"roomId": snap.ID, "userId": "alice"}, http.StatusConflict, &errBody)
	if errBody["code"] != "question_open" {
		t.Fatalf("expected question_open, got %+v", errBody)
	}
	postJSON(t, server, "/api/game/submit-answer", map[string]any{
		"roomId": snap.ID, "userId": "bob", "questionIndex": 0, "answer": "3",
	}, http.StatusOK, nil)

	var finished map[string]any
	postJSON(t, server, "/api/game/next-question", map[string]any{"roomId": snap.ID, "userId": "alice"}, http.StatusOK, &finished)
	if finished["status"] != "finished" {
		t.Fatalf("expected finished, got %+v", finished)
	}
	scores := finished["finalScores"].([]any)
	if first := scores[0].(map[string]any); first["userId"] != "alice" {
		t.Fatalf("expected alice first, got %+v", first)
	}
}

func TestPollChat(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, TransportPoll))
	defer server.Close()

	snap, _ := service.CreateRoom(context.Background(), sampleQuestions(), 60)
	postJSON(t, server, "/api/socket/join", map[string]any{"roomId": snap.ID, "userId": "alice", "userName": "Alice"}, http.StatusOK, nil)
	postJSON(t, server, "/api/socket/chat", map[string]any{"roomId": snap.ID, "userId": "alice", "message": "hello"}, http.StatusCreated, nil)

	var errBody map[string]string
	postJSON(t, server, "/api/socket/chat", map[string]any{"roomId": snap.ID, "userId": "alice", "message": ""}, http.StatusBadRequest, &errBody)

	var body struct {
		Messages []struct {
			Seq     uint64 `json:"seq"`
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"messages"`
	}
	getJSON(t, server, "/api/socket/messages/"+snap.ID, http.StatusOK, &body)
	if len(body.Messages) != 2 || body.Messages[1].Message != "hello" || body.Messages[0].Type != "system" {
		t.Fatalf("unexpected messages %+v", body.Messages)
	}

	getJSON(t, server, "/api/socket/messages/"+snap.ID+"?since=1", http.StatusOK, &body)
	if len(body.Messages) != 1 {
		t.Fatalf("expected only the newer message, got %+v", body.Messages)
	}

	postJSON(t, server, "/api/socket/leave", map[string]any{"roomId": snap.ID, "userId": "alice"}, http.StatusOK, nil)
	getJSON(t, server, "/api/socket/messages/missing", http.StatusNotFound, nil)
}

func postJSON(t *testing.T, server *httptest.Server, path string, body any, wantStatus int, out any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	decodeResponse(t, resp, path, wantStatus, out)
}

func getJSON(t *testing.T, server *httptest.Server, path string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	decodeResponse(t, resp, path, wantStatus, out)
}

func decodeResponse(t *testing.T, resp *http.Response, path string, wantStatus int, out any) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: expected status %d, got %d", path, wantStatus, resp.StatusCode)
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("%s: decode: %v", path, err)
	}
}
