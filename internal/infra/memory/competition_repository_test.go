package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-competition-service/internal/domain"
)

func TestCompetitionRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewCompetitionRepository()

	comp := domain.Competition{
		ID:        "c1",
		Code:      "ABC234",
		Type:      domain.CompetitionPrivate,
		Status:    domain.StatusWaiting,
		CreatorID: "u1",
		CreatedAt: time.Now(),
	}
	if err := repo.CreateCompetition(ctx, comp); err != nil {
		t.Fatalf("create: %v", err)
	}

	byCode, err := repo.GetCompetitionByCode(ctx, "ABC234")
	if err != nil || byCode.ID != "c1" {
		t.Fatalf("lookup by code failed: %+v err=%v", byCode, err)
	}

	if _, err := repo.GetCompetition(ctx, "nope"); !errors.Is(err, domain.ErrCompetitionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	if err := repo.DeleteCompetition(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetCompetition(ctx, "c1"); !errors.Is(err, domain.ErrCompetitionNotFound) {
		t.Fatalf("expected deleted row gone, got %v", err)
	}
}

func TestListActiveForUserExcludesDeclined(t *testing.T) {
	ctx := context.Background()
	repo := NewCompetitionRepository()

	for i, status := range []domain.CompetitionStatus{domain.StatusWaiting, domain.StatusActive, domain.StatusCompleted} {
		comp := domain.Competition{
			ID:        string(rune('a' + i)),
			Status:    status,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := repo.CreateCompetition(ctx, comp); err != nil {
			t.Fatalf("create: %v", err)
		}
		p := domain.Participant{CompetitionID: comp.ID, UserID: "u1", Status: domain.ParticipantJoined}
		if comp.ID == "b" {
			p.Status = domain.ParticipantDeclined
		}
		if err := repo.UpsertParticipant(ctx, p); err != nil {
			t.Fatalf("upsert participant: %v", err)
		}
	}

	active, err := repo.ListActiveForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	// "b" is declined and "c" is completed; only the waiting one remains.
	if len(active) != 1 || active[0].ID != "a" {
		t.Fatalf("expected only competition a, got %+v", active)
	}
}

func TestUpsertResultsNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewCompetitionRepository()

	results := []domain.Result{
		{CompetitionID: "c1", UserID: "u1", FinalRank: 2, Score: 5},
		{CompetitionID: "c1", UserID: "u2", FinalRank: 1, Score: 7},
	}
	if err := repo.UpsertResults(ctx, results); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A racing finisher writes the same rows again.
	if err := repo.UpsertResults(ctx, results); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := repo.ListResults(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows after double write, got %d", len(got))
	}
	if got[0].UserID != "u2" {
		t.Fatalf("results must come back rank-ordered, got %+v", got)
	}
}
