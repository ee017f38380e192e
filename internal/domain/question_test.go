package domain

import "testing"

func TestGradeSingleChoice(t *testing.T) {
	q := Question{
		ID:   "q1",
		Kind: KindMultipleChoice,
		Options: []Option{
			{ID: "o1", Text: "3"},
			{ID: "o2", Text: "4", Correct: true},
		},
	}

	answered, correct := Grade(q, "o2")
	if !answered || !correct {
		t.Fatalf("expected correct, got answered=%v correct=%v", answered, correct)
	}
	answered, correct = Grade(q, "o1")
	if !answered || correct {
		t.Fatalf("expected wrong, got answered=%v correct=%v", answered, correct)
	}
	answered, _ = Grade(q, "  ")
	if answered {
		t.Fatalf("blank answer should count as skipped")
	}
}

func TestGradeMultiSelect(t *testing.T) {
	q := Question{
		ID:   "q1",
		Kind: KindMultiSelect,
		Options: []Option{
			{ID: "a", Correct: true},
			{ID: "b", Correct: true},
			{ID: "c"},
		},
	}

	cases := []struct {
		answer  string
		correct bool
	}{
		{"a,b", true},
		{"b, a", true},
		{"a", false},
		{"a,b,c", false},
		{"c", false},
	}
	for _, tc := range cases {
		if _, got := Grade(q, tc.answer); got != tc.correct {
			t.Fatalf("answer %q: expected correct=%v, got %v", tc.answer, tc.correct, got)
		}
	}
}

func TestGradeSequence(t *testing.T) {
	q := Question{
		ID:   "q1",
		Kind: KindSequence,
		Options: []Option{
			{ID: "first"},
			{ID: "second"},
			{ID: "third"},
		},
	}

	if _, correct := Grade(q, "first,second,third"); !correct {
		t.Fatalf("expected in-order sequence to be correct")
	}
	if _, correct := Grade(q, "second,first,third"); correct {
		t.Fatalf("expected out-of-order sequence to be wrong")
	}
	if _, correct := Grade(q, "first,second"); correct {
		t.Fatalf("expected short sequence to be wrong")
	}
}

func TestGradeTextNormalizes(t *testing.T) {
	q := Question{
		ID:       "q1",
		Kind:     KindShortAnswer,
		Accepted: []string{"Ada Lovelace"},
	}

	if _, correct := Grade(q, "  ada   LOVELACE "); !correct {
		t.Fatalf("expected normalized text match")
	}
	if _, correct := Grade(q, "Grace Hopper"); correct {
		t.Fatalf("expected mismatch to be wrong")
	}
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	if !StatusWaiting.CanTransition(StatusActive) {
		t.Fatalf("waiting -> active should be allowed")
	}
	if !StatusWaiting.CanTransition(StatusCancelled) {
		t.Fatalf("waiting -> cancelled should be allowed")
	}
	if !StatusActive.CanTransition(StatusCompleted) {
		t.Fatalf("active -> completed should be allowed")
	}
	if StatusActive.CanTransition(StatusWaiting) {
		t.Fatalf("active -> waiting must be rejected")
	}
	if StatusCompleted.CanTransition(StatusActive) {
		t.Fatalf("completed is terminal")
	}
	if StatusCancelled.CanTransition(StatusWaiting) {
		t.Fatalf("cancelled is terminal")
	}

	if !ParticipantJoined.CanTransition(ParticipantCompleted) {
		t.Fatalf("joined -> completed should be allowed")
	}
	if !ParticipantJoined.CanTransition(ParticipantDeclined) {
		t.Fatalf("joined -> declined should be allowed")
	}
	if ParticipantCompleted.CanTransition(ParticipantJoined) {
		t.Fatalf("completed is terminal for participants")
	}
}
