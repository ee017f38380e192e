package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-competition-service/internal/domain"
)

func TestHTTPGeneratorDecodesQuestions(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var prefs domain.Preferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			t.Errorf("decode preferences: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"questions": []domain.Question{
				{ID: "q1", Kind: domain.KindTrueFalse, Options: []domain.Option{{ID: "true", Correct: true}}},
			},
		})
	}))
	defer server.Close()

	g := NewHTTPGenerator(server.URL, "key-123", time.Second)
	questions, err := g.Generate(context.Background(), domain.Preferences{Topic: "go"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(questions) != 1 || questions[0].ID != "q1" {
		t.Fatalf("unexpected questions: %+v", questions)
	}
	if gotAuth != "Bearer key-123" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestHTTPGeneratorRejectsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	g := NewHTTPGenerator(server.URL, "", time.Second)
	if _, err := g.Generate(context.Background(), domain.Preferences{}); err == nil {
		t.Fatalf("expected error on non-200 response")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"questions":[]}`))
	}))
	defer empty.Close()

	g = NewHTTPGenerator(empty.URL, "", time.Second)
	if _, err := g.Generate(context.Background(), domain.Preferences{}); err == nil {
		t.Fatalf("expected error on empty question set")
	}
}
