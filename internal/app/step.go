package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"quiz-competition-service/internal/domain"
)

// Step is the single discrete UI state the reconciliation selects at any
// moment. Exactly one step is active.
type Step string

const (
	StepAPIKey                     Step = "api-key"
	StepModeSelector               Step = "mode-selector"
	StepSoloPreferences            Step = "solo-preferences"
	StepCreateCompetition          Step = "create-competition"
	StepJoinCompetition            Step = "join-competition"
	StepRandomMatch                Step = "random-match"
	StepQuiz                       Step = "quiz"
	StepResults                    Step = "results"
	StepCompetitionLobby           Step = "competition-lobby"
	StepCompetitionQuiz            Step = "competition-quiz"
	StepCompetitionResults         Step = "competition-results"
	StepCompetitionManagement      Step = "competition-management"
	StepActiveCompetitionsSelector Step = "active-competitions-selector"
)

// Intent is an explicit user mode choice. A set intent takes precedence over
// background routing until cleared or reset.
type Intent string

const (
	IntentNone   Intent = ""
	IntentSolo   Intent = "solo"
	IntentCreate Intent = "create"
	IntentJoin   Intent = "join"
	IntentRandom Intent = "random"
	IntentManage Intent = "manage"
)

// StepState is the reducer's accumulated state. Terminal is the one-way
// latch: once a competition's outcome is decided for this viewer, the step
// stays at competition-results until an explicit Reset.
type StepState struct {
	Current  Step
	Terminal bool
}

// StepSnapshot carries the latest known values of every signal the reducer
// derives the step from. Fields default to their zero values when a signal
// has not arrived yet.
type StepSnapshot struct {
	HasAPIKey bool
	Intent    Intent
	// InFlight blocks re-evaluation while a generate/create operation runs.
	InFlight bool

	ActiveCount int

	CompetitionLoaded  bool
	CompetitionDeleted bool
	CompetitionStatus  domain.CompetitionStatus
	SelfStatus         domain.ParticipantStatus

	SoloQuestions bool
	SoloResult    bool
}

// ReduceStep derives the next step from the current state and the latest
// snapshot. It is pure and idempotent: invoked any number of times with the
// same inputs it returns the same state, and changed is false whenever the
// step would not move, so callers can skip redundant applies.
func ReduceStep(state StepState, snap StepSnapshot) (StepState, bool) {
	next := reduce(state, snap)
	if next.Current == state.Current && next.Terminal == state.Terminal {
		return state, false
	}
	return next, true
}

func reduce(state StepState, snap StepSnapshot) StepState {
	// Completion is a one-way latch; only ResetStep leaves it.
	if state.Terminal {
		return StepState{Current: StepCompetitionResults, Terminal: true}
	}
	// Never switch steps out from under an in-flight operation.
	if snap.InFlight {
		return state
	}
	if !snap.HasAPIKey {
		return StepState{Current: StepAPIKey}
	}

	// An explicit mode choice wins over background routing while mid-setup.
	switch snap.Intent {
	case IntentSolo:
		return soloStep(state, snap)
	case IntentCreate:
		return StepState{Current: StepCreateCompetition}
	case IntentJoin:
		return StepState{Current: StepJoinCompetition}
	case IntentRandom:
		return StepState{Current: StepRandomMatch}
	case IntentManage:
		return StepState{Current: StepCompetitionManagement}
	}

	if snap.CompetitionLoaded {
		if snap.CompetitionDeleted {
			return StepState{Current: StepModeSelector}
		}
		// Own completion forces results even while the global status lags.
		if snap.SelfStatus == domain.ParticipantCompleted ||
			snap.CompetitionStatus == domain.StatusCompleted {
			return StepState{Current: StepCompetitionResults, Terminal: true}
		}
		switch snap.CompetitionStatus {
		case domain.StatusWaiting:
			return StepState{Current: StepCompetitionLobby}
		case domain.StatusActive:
			return StepState{Current: StepCompetitionQuiz}
		default: // cancelled
			return StepState{Current: StepModeSelector}
		}
	}

	if snap.ActiveCount > 1 {
		return StepState{Current: StepActiveCompetitionsSelector}
	}

	return soloStep(state, snap)
}

func soloStep(_ StepState, snap StepSnapshot) StepState {
	switch {
	case snap.SoloResult:
		return StepState{Current: StepResults}
	case snap.SoloQuestions:
		return StepState{Current: StepQuiz}
	case snap.Intent == IntentSolo:
		return StepState{Current: StepSoloPreferences}
	default:
		return StepState{Current: StepModeSelector}
	}
}

// ResetStep is the explicit "new competition" action that releases the
// terminal latch.
func ResetStep() StepState {
	return StepState{Current: StepModeSelector}
}

// StepController runs the reconciliation against a CompetitionService: it
// subscribes to the loaded competition's change feed, re-checks periodically,
// and applies ReduceStep under a single mutex. Close tears down the feed
// subscription and the ticker; no state is applied after Close returns.
type StepController struct {
	service *CompetitionService
	userID  string

	onStep  func(Step)
	onFatal func(error)

	mu         sync.Mutex
	state      StepState
	snap       StepSnapshot
	compID     string
	cancelFeed func()
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStepController builds a controller. onStep fires on every step change;
// onFatal receives ErrSessionExpired when reconciliation fails for a reason
// that is not about competition state (the login-redirect fallback). Both
// may be nil.
func NewStepController(service *CompetitionService, userID string, recheck time.Duration, onStep func(Step), onFatal func(error)) *StepController {
	if onStep == nil {
		onStep = func(Step) {}
	}
	if onFatal == nil {
		onFatal = func(error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &StepController{
		service: service,
		userID:  userID,
		onStep:  onStep,
		onFatal: onFatal,
		state:   StepState{Current: StepAPIKey},
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.loop(recheck)
	return c
}

func (c *StepController) loop(recheck time.Duration) {
	defer close(c.done)
	if recheck <= 0 {
		recheck = 5 * time.Second
	}
	ticker := time.NewTicker(recheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Reconcile()
		}
	}
}

// Current returns the controller's current step.
func (c *StepController) Current() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Current
}

// SetAPIKey records whether a usable API key is present.
func (c *StepController) SetAPIKey(present bool) {
	c.mutate(func(snap *StepSnapshot) { snap.HasAPIKey = present })
}

// SetIntent records an explicit user mode choice.
func (c *StepController) SetIntent(intent Intent) {
	c.mutate(func(snap *StepSnapshot) { snap.Intent = intent })
}

// SetInFlight marks an asynchronous generate/create operation as running;
// reconciliation holds the current step until it clears.
func (c *StepController) SetInFlight(inFlight bool) {
	c.mutate(func(snap *StepSnapshot) { snap.InFlight = inFlight })
}

// SetSoloProgress records local solo-quiz progress.
func (c *StepController) SetSoloProgress(questions, result bool) {
	c.mutate(func(snap *StepSnapshot) {
		snap.SoloQuestions = questions
		snap.SoloResult = result
	})
}

func (c *StepController) mutate(fn func(*StepSnapshot)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn(&c.snap)
	c.applyLocked()
	c.mu.Unlock()
}

// Load subscribes the controller to a competition's change feed. Any prior
// subscription is cancelled first.
func (c *StepController) Load(ctx context.Context, competitionID string) error {
	updates, cancel, err := c.service.Subscribe(ctx, competitionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil
	}
	if c.cancelFeed != nil {
		c.cancelFeed()
	}
	c.compID = competitionID
	c.cancelFeed = cancel
	c.snap.CompetitionLoaded = true
	c.snap.CompetitionDeleted = false
	c.snap.Intent = IntentNone
	c.mu.Unlock()

	go func() {
		for update := range updates {
			c.applyUpdate(update)
		}
	}()
	return nil
}

func (c *StepController) applyUpdate(update CompetitionUpdate) {
	c.mu.Lock()
	if c.closed || c.compID != update.Competition.ID {
		c.mu.Unlock()
		return
	}
	c.snap.CompetitionStatus = update.Competition.Status
	c.snap.SelfStatus = ""
	for i := range update.Participants {
		if update.Participants[i].UserID == c.userID {
			c.snap.SelfStatus = update.Participants[i].Status
		}
	}
	c.applyLocked()
	c.mu.Unlock()
}

// Reconcile performs one full re-check: refreshes the active-competition
// count, verifies the loaded competition still exists, auto-loads a sole
// active competition, and reduces. Safe to call from any goroutine.
func (c *StepController) Reconcile() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	compID := c.compID
	loaded := c.snap.CompetitionLoaded
	intent := c.snap.Intent
	c.mu.Unlock()

	active, err := c.service.ActiveCompetitionsFor(c.ctx, c.userID)
	if err != nil {
		if !isCompetitionError(err) && c.ctx.Err() == nil {
			c.onFatal(domain.ErrSessionExpired)
		}
		return
	}

	deleted := false
	var status domain.CompetitionStatus
	var selfStatus domain.ParticipantStatus
	if loaded && compID != "" {
		comp, err := c.service.Get(c.ctx, compID)
		switch {
		case errors.Is(err, domain.ErrCompetitionNotFound):
			deleted = true
		case err != nil:
			if c.ctx.Err() == nil {
				c.onFatal(domain.ErrSessionExpired)
			}
			return
		default:
			status = comp.Status
			if p, err := c.service.GetParticipant(c.ctx, compID, c.userID); err == nil {
				selfStatus = p.Status
			}
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.snap.ActiveCount = len(active)
	if loaded {
		c.snap.CompetitionDeleted = deleted
		if deleted {
			c.compID = ""
			c.snap.CompetitionLoaded = false
			if c.cancelFeed != nil {
				c.cancelFeed()
				c.cancelFeed = nil
			}
			c.snap.CompetitionDeleted = true
		} else {
			c.snap.CompetitionStatus = status
			c.snap.SelfStatus = selfStatus
		}
	}
	c.applyLocked()
	c.mu.Unlock()

	// A single active competition is entered automatically; two or more go
	// through the disambiguation step instead.
	if !loaded && intent == IntentNone && len(active) == 1 {
		_ = c.Load(c.ctx, active[0].ID)
	}
}

// Reset is the explicit "new competition" action: it releases the terminal
// latch, drops the loaded competition and clears the intent.
func (c *StepController) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancelFeed != nil {
		c.cancelFeed()
		c.cancelFeed = nil
	}
	c.compID = ""
	hasKey := c.snap.HasAPIKey
	c.snap = StepSnapshot{HasAPIKey: hasKey}
	c.state = ResetStep()
	if !hasKey {
		c.state = StepState{Current: StepAPIKey}
	}
	step := c.state.Current
	c.mu.Unlock()
	c.onStep(step)
}

// applyLocked reduces and notifies only when the step actually moved.
func (c *StepController) applyLocked() {
	next, changed := ReduceStep(c.state, c.snap)
	if !changed {
		return
	}
	c.state = next
	step := next.Current
	// Callback outside the lock would race Close; keep it inline. Handlers
	// must not call back into the controller.
	c.onStep(step)
}

// Close tears down the feed subscription and stops the loop. After Close
// returns no further state change is applied.
func (c *StepController) Close() {
	c.cancel()
	<-c.done
	c.mu.Lock()
	c.closed = true
	if c.cancelFeed != nil {
		c.cancelFeed()
		c.cancelFeed = nil
	}
	c.mu.Unlock()
}

// isCompetitionError reports whether err is one of the structured competition
// errors; anything else is treated as an authentication failure by the
// controller's coarse fallback.
func isCompetitionError(err error) bool {
	return errors.Is(err, domain.ErrCompetitionNotFound) ||
		errors.Is(err, domain.ErrParticipantNotFound) ||
		errors.Is(err, domain.ErrAlreadyStarted) ||
		errors.Is(err, domain.ErrNotJoinable) ||
		errors.Is(err, domain.ErrInvalidTransition)
}
