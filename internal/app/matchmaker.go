package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"

	"quiz-competition-service/internal/domain"
)

// Matchmaker periodically pairs waiting queue tickets into random
// competitions. Pairing is FIFO by queue time within an exact
// (topic, difficulty, language) bucket, two tickets per match; no fairness
// policy beyond arrival order. A second job cancels waiting competitions
// that have gone stale.
type Matchmaker struct {
	service    *CompetitionService
	queue      QueueRepository
	repo       CompetitionRepository
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	scheduler gocron.Scheduler
}

func NewMatchmaker(service *CompetitionService, queue QueueRepository, repo CompetitionRepository, interval, staleAfter time.Duration) *Matchmaker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Matchmaker{
		service:    service,
		queue:      queue,
		repo:       repo,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start schedules the pairing and janitor jobs.
func (m *Matchmaker) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	m.scheduler = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			defer cancel()
			if err := m.PairOnce(ctx); err != nil {
				log.Printf("[matchmaker] pairing pass failed: %v", err)
			}
		}),
	); err != nil {
		return err
	}

	if m.staleAfter > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(time.Minute),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := m.CancelStale(ctx); err != nil {
					log.Printf("[matchmaker] janitor pass failed: %v", err)
				}
			}),
		); err != nil {
			return err
		}
	}

	sched.Start()
	return nil
}

// Stop shuts the scheduler down.
func (m *Matchmaker) Stop() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}

type bucketKey struct {
	topic      string
	difficulty string
	language   string
}

// PairOnce runs a single pairing pass. Exported so the CLI and tests can
// drive it without the scheduler.
func (m *Matchmaker) PairOnce(ctx context.Context) error {
	tickets, err := m.queue.ListWaitingTickets(ctx)
	if err != nil {
		return err
	}

	buckets := make(map[bucketKey][]domain.QueueTicket)
	for _, t := range tickets {
		key := bucketKey{topic: t.Topic, difficulty: t.Difficulty, language: t.Language}
		buckets[key] = append(buckets[key], t)
	}

	for key, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool {
			return bucket[i].QueuedAt.Before(bucket[j].QueuedAt)
		})
		for len(bucket) >= 2 {
			a, b := bucket[0], bucket[1]
			bucket = bucket[2:]
			if err := m.pair(ctx, key, a, b); err != nil {
				log.Printf("[matchmaker] could not pair %s and %s: %v", a.UserID, b.UserID, err)
			}
		}
	}
	return nil
}

// pair creates a random competition for two tickets, joins both users and
// starts the match.
func (m *Matchmaker) pair(ctx context.Context, key bucketKey, a, b domain.QueueTicket) error {
	prefs := domain.Preferences{
		Topic:         key.topic,
		Difficulty:    key.difficulty,
		Language:      key.language,
		QuestionCount: 10,
	}
	title := fmt.Sprintf("Random match: %s", key.topic)
	id, err := m.service.Create(ctx, a.UserID, a.UserID, title, "", domain.CompetitionRandom, prefs, 2)
	if err != nil {
		return err
	}
	comp, err := m.service.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := m.service.Join(ctx, comp.Code, b.UserID, b.UserID); err != nil {
		return err
	}

	matched := m.now()
	for _, t := range []domain.QueueTicket{a, b} {
		t.Status = domain.TicketMatched
		t.MatchedAt = &matched
		if err := m.queue.UpdateTicket(ctx, t); err != nil {
			return err
		}
	}

	// Random matches start immediately; a generation failure leaves the
	// competition waiting and the next pass will not re-pair the tickets.
	if _, err := m.service.Start(ctx, id, a.UserID); err != nil {
		log.Printf("[matchmaker] start failed for %s: %v", id, err)
	}
	return nil
}

// CancelStale cancels waiting competitions older than the configured age.
func (m *Matchmaker) CancelStale(ctx context.Context) error {
	cutoff := m.now().Add(-m.staleAfter)
	stale, err := m.repo.ListWaitingBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, comp := range stale {
		if !comp.Status.CanTransition(domain.StatusCancelled) {
			continue
		}
		end := m.now()
		comp.Status = domain.StatusCancelled
		comp.EndTime = &end
		if err := m.repo.UpdateCompetition(ctx, comp); err != nil {
			return err
		}
		log.Printf("[matchmaker] cancelled stale competition %s", comp.ID)
	}
	return nil
}
