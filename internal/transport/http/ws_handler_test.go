package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-competition-service/internal/app"
	"quiz-competition-service/internal/domain"
	"quiz-competition-service/internal/generator"
	"quiz-competition-service/internal/infra/memory"
)

// repoSource serves questions straight from the competition row, standing in
// for the Redis cache.
type repoSource struct {
	repo *memory.CompetitionRepository
}

func (s repoSource) Questions(ctx context.Context, competitionID string) ([]domain.Question, error) {
	comp, err := s.repo.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return comp.Questions, nil
}

func newWSServer(t *testing.T) (*httptest.Server, *app.CompetitionService, domain.Competition) {
	t.Helper()
	ctx := context.Background()

	repo := memory.NewCompetitionRepository()
	service := app.NewCompetitionService(repo, memory.NewQueueRepository(), generator.NewStaticGenerator(), 6)

	id, err := service.Create(ctx, "u1", "Alice", "ws test", "", domain.CompetitionPrivate,
		domain.Preferences{Topic: "go", QuestionCount: 3}, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	comp, err := service.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := service.Join(ctx, comp.Code, "u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	comp, err = service.Start(ctx, id, "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	handler := NewWSHandler(service, repoSource{repo: repo}, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service, comp
}

func dialWS(t *testing.T, server *httptest.Server, competitionID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?competitionId=" + competitionID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, _, comp := newWSServer(t)
	conn := dialWS(t, server, comp.ID, "u1")

	_, joined := readNext(conn, t, "joined")
	if joined["userId"] != "u1" {
		t.Fatalf("expected joined payload for u1, got %v", joined)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": "q1",
			"answer":     "true",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	// A graded answer yields the result plus a competition snapshot with the
	// refreshed leaderboard.
	answerSeen := false
	snapshotSeen := false
	for i := 0; i < 4 && !(answerSeen && snapshotSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "answerResult":
			answerSeen = true
			if payload["correct"] != true || payload["questionId"] != "q1" {
				t.Fatalf("expected correct answer for q1, got %v", payload)
			}
		case "competition":
			snapshotSeen = true
		}
	}
	if !answerSeen || !snapshotSeen {
		t.Fatalf("expected answerResult and competition update, got answerResult=%v competition=%v", answerSeen, snapshotSeen)
	}
}

func TestWebSocketChatRoundtrip(t *testing.T) {
	server, _, comp := newWSServer(t)
	alice := dialWS(t, server, comp.ID, "u1")
	bob := dialWS(t, server, comp.ID, "u2")

	readNext(alice, t, "joined")
	readNext(bob, t, "joined")

	chat := map[string]any{
		"type":    "chat",
		"payload": map[string]any{"message": "good luck"},
	}
	if err := alice.WriteJSON(chat); err != nil {
		t.Fatalf("write chat: %v", err)
	}

	for i := 0; i < 4; i++ {
		typ, payload := readNext(bob, t, "")
		if typ != "chat" {
			continue
		}
		if payload["message"] != "good luck" || payload["userId"] != "u1" {
			t.Fatalf("unexpected chat payload: %v", payload)
		}
		return
	}
	t.Fatalf("chat message never reached the other participant")
}

func TestWebSocketRejectsNonParticipants(t *testing.T) {
	server, _, comp := newWSServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?competitionId=" + comp.ID + "&userId=stranger"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake rejection for non-participant")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestWebSocketCompleteAck(t *testing.T) {
	server, _, comp := newWSServer(t)
	conn := dialWS(t, server, comp.ID, "u1")
	readNext(conn, t, "joined")

	complete := map[string]any{
		"type":    "complete",
		"payload": map[string]any{"score": 2, "timeTakenSec": 30},
	}
	if err := conn.WriteJSON(complete); err != nil {
		t.Fatalf("write complete: %v", err)
	}

	for i := 0; i < 4; i++ {
		typ, _ := readNext(conn, t, "")
		if typ == "completed" {
			return
		}
	}
	t.Fatalf("never received completion ack")
}
