package domain

import (
	"testing"
	"time"
)

func TestScoreAnswersNegativeMarking(t *testing.T) {
	// 10 questions, 6 correct, 3 wrong, 1 skipped, penalty 0.25 -> 5.25.
	questions := make([]Question, 0, 10)
	answers := make(map[string]string)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		questions = append(questions, Question{
			ID:   id,
			Kind: KindMultipleChoice,
			Options: []Option{
				{ID: "right", Correct: true},
				{ID: "wrong"},
			},
		})
		switch {
		case i < 6:
			answers[id] = "right"
		case i < 9:
			answers[id] = "wrong"
		}
	}

	tally := ScoreAnswers(questions, answers, Preferences{NegativeMarking: true, Penalty: 0.25})
	if tally.Score != 5.25 {
		t.Fatalf("expected score 5.25, got %v", tally.Score)
	}
	if tally.Correct != 6 || tally.Wrong != 3 || tally.Skipped != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestScoreAnswersSkipNeverPenalized(t *testing.T) {
	questions := []Question{{
		ID:      "q1",
		Kind:    KindTrueFalse,
		Options: []Option{{ID: "t", Correct: true}, {ID: "f"}},
	}}

	tally := ScoreAnswers(questions, nil, Preferences{NegativeMarking: true, Penalty: 1})
	if tally.Score != 0 || tally.Skipped != 1 {
		t.Fatalf("expected zero score for all-skipped sheet, got %+v", tally)
	}
}

func TestRankParticipantsTieBreakOnTime(t *testing.T) {
	parts := []Participant{
		{UserID: "a", Status: ParticipantCompleted, Score: 8, TimeTakenSec: 120},
		{UserID: "b", Status: ParticipantCompleted, Score: 8, TimeTakenSec: 90},
		{UserID: "c", Status: ParticipantCompleted, Score: 9, TimeTakenSec: 200},
		{UserID: "d", Status: ParticipantDeclined, Score: 10, TimeTakenSec: 10},
	}

	ranked := RankParticipants(parts)
	if len(ranked) != 3 {
		t.Fatalf("declined participants must be excluded, got %d entries", len(ranked))
	}
	if ranked[0].UserID != "c" || ranked[0].Rank != 1 {
		t.Fatalf("expected c first, got %+v", ranked[0])
	}
	if ranked[1].UserID != "b" || ranked[2].UserID != "a" {
		t.Fatalf("expected b to beat a on time tie-break, got %s then %s",
			ranked[1].UserID, ranked[2].UserID)
	}
	// Input order untouched.
	if parts[0].Rank != 0 {
		t.Fatalf("RankParticipants must not mutate its input")
	}
}

func TestBuildResults(t *testing.T) {
	done := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	comp := Competition{
		ID: "comp-1",
		Questions: []Question{
			{ID: "q1", Kind: KindTrueFalse},
			{ID: "q2", Kind: KindTrueFalse},
		},
	}
	ranked := RankParticipants([]Participant{{
		CompetitionID:     "comp-1",
		UserID:            "u1",
		Status:            ParticipantCompleted,
		Score:             1,
		CorrectAnswers:    1,
		QuestionsAnswered: 2,
		TimeTakenSec:      30,
		CompletedAt:       &done,
	}})

	results := BuildResults(comp, ranked)
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	r := results[0]
	if r.FinalRank != 1 || r.TotalQuestions != 2 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.PercentageScore != 50 {
		t.Fatalf("expected 50%% score, got %v", r.PercentageScore)
	}
	if r.AccuracyRate != 50 {
		t.Fatalf("expected 50%% accuracy, got %v", r.AccuracyRate)
	}
	if !r.CompletedAt.Equal(done) {
		t.Fatalf("expected completion time carried over")
	}
}

func TestFullyCompleted(t *testing.T) {
	parts := []Participant{
		{UserID: "a", Status: ParticipantCompleted},
		{UserID: "b", Status: ParticipantJoined},
	}
	if FullyCompleted(parts) {
		t.Fatalf("pending participant should hold the competition open")
	}
	parts[1].Status = ParticipantCompleted
	if !FullyCompleted(parts) {
		t.Fatalf("all completed should report fully completed")
	}
	parts[1].Status = ParticipantDeclined
	if !FullyCompleted(parts) {
		t.Fatalf("declined participants must not hold the competition open")
	}
	if FullyCompleted(nil) {
		t.Fatalf("empty competition is not fully completed")
	}
}
