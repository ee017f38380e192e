package app

import (
	"sync"
	"time"

	"quiz-competition-service/internal/domain"
)

// SoloResult is the outcome of a finished solo quiz.
type SoloResult struct {
	Tally          domain.Tally      `json:"tally"`
	TotalQuestions int               `json:"totalQuestions"`
	TimeTakenSec   int               `json:"timeTakenSec"`
	Answers        map[string]string `json:"answers"`
	FinishedAt     time.Time         `json:"finishedAt"`
}

// SoloQuiz drives a single user through a generated question set with an
// optional countdown. Per-question and whole-quiz timers are mutually
// exclusive; the preferences' TimerMode decides which one runs, never both.
// Timer expiry advances (or finishes) exactly once; a racing manual answer
// and expiry cannot double-advance.
type SoloQuiz struct {
	questions []domain.Question
	prefs     domain.Preferences
	now       func() time.Time

	onAdvance func(index int)
	onFinish  func(SoloResult)

	mu        sync.Mutex
	current   int
	seq       int // increments on every advance; stale expiries are ignored
	answers   map[string]string
	startedAt time.Time
	finished  bool
	result    SoloResult
	timer     *time.Timer
}

// NewSoloQuiz builds a runner. onAdvance fires when the current question
// moves (auto or manual), onFinish when the quiz ends; both may be nil.
func NewSoloQuiz(questions []domain.Question, prefs domain.Preferences, onAdvance func(int), onFinish func(SoloResult)) *SoloQuiz {
	if onAdvance == nil {
		onAdvance = func(int) {}
	}
	if onFinish == nil {
		onFinish = func(SoloResult) {}
	}
	return &SoloQuiz{
		questions: questions,
		prefs:     prefs,
		now:       time.Now,
		onAdvance: onAdvance,
		onFinish:  onFinish,
		answers:   make(map[string]string),
	}
}

// WithClock is test-only for deterministic timestamps.
func (q *SoloQuiz) WithClock(now func() time.Time) *SoloQuiz {
	q.now = now
	return q
}

// Start arms the configured timer and marks the quiz begun.
func (q *SoloQuiz) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.startedAt = q.now()
	q.armLocked()
}

// armLocked sets up whichever countdown the preferences call for.
func (q *SoloQuiz) armLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.prefs.TimeLimitSec <= 0 {
		return
	}
	d := time.Duration(q.prefs.TimeLimitSec) * time.Second
	switch q.prefs.TimerMode {
	case domain.TimerPerQuestion:
		seq := q.seq
		q.timer = time.AfterFunc(d, func() { q.expire(seq) })
	case domain.TimerWholeQuiz:
		q.timer = time.AfterFunc(d, q.expireQuiz)
	}
}

// expire handles a per-question timeout. The sequence guard makes expiry
// fire at most once per question even if a manual answer races the timer.
func (q *SoloQuiz) expire(seq int) {
	q.mu.Lock()
	if q.finished || seq != q.seq {
		q.mu.Unlock()
		return
	}
	q.advanceLocked()
}

// expireQuiz handles the whole-quiz timeout: finish once with whatever has
// been answered. The finished latch keeps a racing manual finish from
// firing twice.
func (q *SoloQuiz) expireQuiz() {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.finishLocked()
}

// Answer records the answer for the current question and advances.
func (q *SoloQuiz) Answer(answer string) {
	q.mu.Lock()
	if q.finished || q.current >= len(q.questions) {
		q.mu.Unlock()
		return
	}
	q.answers[q.questions[q.current].ID] = answer
	q.advanceLocked()
}

// Skip advances past the current question without recording an answer.
// Skipped questions never incur a negative-marking penalty.
func (q *SoloQuiz) Skip() {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.advanceLocked()
}

// advanceLocked moves to the next question or finishes; releases the mutex.
func (q *SoloQuiz) advanceLocked() {
	q.seq++
	q.current++
	if q.current >= len(q.questions) {
		q.finishLocked()
		return
	}
	if q.prefs.TimerMode == domain.TimerPerQuestion {
		q.armLocked()
	}
	index := q.current
	q.mu.Unlock()
	q.onAdvance(index)
}

// finishLocked scores the sheet and latches the finished state; releases
// the mutex.
func (q *SoloQuiz) finishLocked() {
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.finished = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	end := q.now()
	tally := domain.ScoreAnswers(q.questions, q.answers, q.prefs)
	answers := make(map[string]string, len(q.answers))
	for k, v := range q.answers {
		answers[k] = v
	}
	q.result = SoloResult{
		Tally:          tally,
		TotalQuestions: len(q.questions),
		TimeTakenSec:   int(end.Sub(q.startedAt) / time.Second),
		Answers:        answers,
		FinishedAt:     end,
	}
	result := q.result
	q.mu.Unlock()
	q.onFinish(result)
}

// Finish ends the quiz immediately, scoring whatever has been answered.
func (q *SoloQuiz) Finish() SoloResult {
	q.mu.Lock()
	if q.finished {
		result := q.result
		q.mu.Unlock()
		return result
	}
	q.finishLocked()
	q.mu.Lock()
	result := q.result
	q.mu.Unlock()
	return result
}

// Current returns the index of the active question.
func (q *SoloQuiz) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Finished reports whether the quiz has ended.
func (q *SoloQuiz) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// Close cancels any pending timer. Safe to call multiple times.
func (q *SoloQuiz) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.finished = true
}
