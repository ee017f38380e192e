package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-competition-service/internal/app"
	"quiz-competition-service/internal/domain"
)

func TestReduceStepRouting(t *testing.T) {
	cases := []struct {
		name  string
		state app.StepState
		snap  app.StepSnapshot
		want  app.Step
	}{
		{
			name: "no api key",
			snap: app.StepSnapshot{},
			want: app.StepAPIKey,
		},
		{
			name: "idle defaults to mode selector",
			snap: app.StepSnapshot{HasAPIKey: true},
			want: app.StepModeSelector,
		},
		{
			name: "solo intent opens preferences",
			snap: app.StepSnapshot{HasAPIKey: true, Intent: app.IntentSolo},
			want: app.StepSoloPreferences,
		},
		{
			name: "solo questions route to quiz",
			snap: app.StepSnapshot{HasAPIKey: true, SoloQuestions: true},
			want: app.StepQuiz,
		},
		{
			name: "solo result wins over questions",
			snap: app.StepSnapshot{HasAPIKey: true, SoloQuestions: true, SoloResult: true},
			want: app.StepResults,
		},
		{
			name: "create intent",
			snap: app.StepSnapshot{HasAPIKey: true, Intent: app.IntentCreate},
			want: app.StepCreateCompetition,
		},
		{
			name: "manage intent wins over loaded competition",
			snap: app.StepSnapshot{
				HasAPIKey: true, Intent: app.IntentManage,
				CompetitionLoaded: true, CompetitionStatus: domain.StatusActive,
			},
			want: app.StepCompetitionManagement,
		},
		{
			name: "waiting competition shows lobby",
			snap: app.StepSnapshot{HasAPIKey: true, CompetitionLoaded: true, CompetitionStatus: domain.StatusWaiting},
			want: app.StepCompetitionLobby,
		},
		{
			name: "active competition shows quiz",
			snap: app.StepSnapshot{HasAPIKey: true, CompetitionLoaded: true, CompetitionStatus: domain.StatusActive},
			want: app.StepCompetitionQuiz,
		},
		{
			name: "cancelled competition falls back to selector",
			snap: app.StepSnapshot{HasAPIKey: true, CompetitionLoaded: true, CompetitionStatus: domain.StatusCancelled},
			want: app.StepModeSelector,
		},
		{
			name: "deleted competition falls back to selector",
			snap: app.StepSnapshot{HasAPIKey: true, CompetitionLoaded: true, CompetitionDeleted: true, CompetitionStatus: domain.StatusActive},
			want: app.StepModeSelector,
		},
		{
			name: "several active competitions need disambiguation",
			snap: app.StepSnapshot{HasAPIKey: true, ActiveCount: 2},
			want: app.StepActiveCompetitionsSelector,
		},
		{
			name:  "in-flight holds current step",
			state: app.StepState{Current: app.StepCreateCompetition},
			snap:  app.StepSnapshot{HasAPIKey: true, InFlight: true},
			want:  app.StepCreateCompetition,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, _ := app.ReduceStep(tc.state, tc.snap)
			if next.Current != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, next.Current)
			}
		})
	}
}

func TestReduceStepOwnCompletionIsTerminal(t *testing.T) {
	snap := app.StepSnapshot{
		HasAPIKey:         true,
		CompetitionLoaded: true,
		CompetitionStatus: domain.StatusActive,
		SelfStatus:        domain.ParticipantCompleted,
	}
	state, changed := app.ReduceStep(app.StepState{Current: app.StepCompetitionQuiz}, snap)
	if !changed || state.Current != app.StepCompetitionResults || !state.Terminal {
		t.Fatalf("own completion must latch results, got %+v changed=%v", state, changed)
	}

	// Background re-checks seeing a still-active competition must not pull
	// the viewer back into the quiz.
	snap.SelfStatus = domain.ParticipantJoined
	next, changed := app.ReduceStep(state, snap)
	if changed || next.Current != app.StepCompetitionResults || !next.Terminal {
		t.Fatalf("terminal latch must survive re-evaluation, got %+v changed=%v", next, changed)
	}

	// Only the explicit reset releases the latch.
	reset := app.ResetStep()
	if reset.Terminal || reset.Current != app.StepModeSelector {
		t.Fatalf("reset must clear the latch, got %+v", reset)
	}
}

func TestReduceStepIdempotent(t *testing.T) {
	snap := app.StepSnapshot{HasAPIKey: true, Intent: app.IntentJoin}
	state, changed := app.ReduceStep(app.StepState{Current: app.StepModeSelector}, snap)
	if !changed || state.Current != app.StepJoinCompetition {
		t.Fatalf("expected transition to join, got %+v changed=%v", state, changed)
	}
	again, changed := app.ReduceStep(state, snap)
	if changed {
		t.Fatalf("same inputs must report no change, got %+v", again)
	}
	if again != state {
		t.Fatalf("same inputs must return identical state")
	}
}

type stepRecorder struct {
	mu    sync.Mutex
	steps []app.Step
}

func (r *stepRecorder) record(s app.Step) {
	r.mu.Lock()
	r.steps = append(r.steps, s)
	r.mu.Unlock()
}

func (r *stepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

func waitForStep(t *testing.T, c *app.StepController, want app.Step) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Current() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for step %s, current %s", want, c.Current())
}

func TestStepControllerFollowsCompetitionLifecycle(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	comp := createCompetition(t, service)
	if _, err := service.Join(ctx, comp.Code, "u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	rec := &stepRecorder{}
	c := app.NewStepController(service, "u1", time.Hour, rec.record, nil)
	defer c.Close()

	if c.Current() != app.StepAPIKey {
		t.Fatalf("controller must start at api-key, got %s", c.Current())
	}
	c.SetAPIKey(true)
	waitForStep(t, c, app.StepModeSelector)

	if err := c.Load(ctx, comp.ID); err != nil {
		t.Fatalf("load: %v", err)
	}
	waitForStep(t, c, app.StepCompetitionLobby)

	if _, err := service.Start(ctx, comp.ID, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStep(t, c, app.StepCompetitionQuiz)

	if err := service.Complete(ctx, comp.ID, "u1", app.Progress{Score: 3, TimeTakenSec: 30}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	waitForStep(t, c, app.StepCompetitionResults)

	// The other participant is still playing; a manual re-check must not
	// move this viewer off the results.
	c.Reconcile()
	if c.Current() != app.StepCompetitionResults {
		t.Fatalf("terminal latch broken by reconcile, got %s", c.Current())
	}

	c.Reset()
	if c.Current() != app.StepModeSelector {
		t.Fatalf("reset must return to mode selector, got %s", c.Current())
	}
}

func TestStepControllerHandlesDeletedCompetition(t *testing.T) {
	ctx := context.Background()
	service, repo, _ := newTestService()
	comp := createCompetition(t, service)

	c := app.NewStepController(service, "u1", time.Hour, nil, nil)
	defer c.Close()
	c.SetAPIKey(true)

	if err := c.Load(ctx, comp.ID); err != nil {
		t.Fatalf("load: %v", err)
	}
	waitForStep(t, c, app.StepCompetitionLobby)

	if err := repo.DeleteCompetition(ctx, comp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	c.Reconcile()
	waitForStep(t, c, app.StepModeSelector)
}

func TestStepControllerAutoLoadsSoleActiveCompetition(t *testing.T) {
	service, _, _ := newTestService()
	createCompetition(t, service)

	c := app.NewStepController(service, "u1", time.Hour, nil, nil)
	defer c.Close()
	c.SetAPIKey(true)

	c.Reconcile()
	waitForStep(t, c, app.StepCompetitionLobby)
}

func TestStepControllerCloseStopsCallbacks(t *testing.T) {
	service, _, _ := newTestService()

	rec := &stepRecorder{}
	c := app.NewStepController(service, "u1", time.Hour, rec.record, nil)
	c.SetAPIKey(true)
	c.Close()

	before := rec.count()
	c.SetIntent(app.IntentSolo)
	c.Reconcile()
	if rec.count() != before {
		t.Fatalf("no callbacks may fire after Close")
	}
}
