package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-competition-service/internal/domain"
)

// CompetitionRepository abstracts how competitions, participants, chat and
// results are stored (in-memory, Postgres, etc).
type CompetitionRepository interface {
	CreateCompetition(ctx context.Context, comp domain.Competition) error
	GetCompetition(ctx context.Context, id string) (domain.Competition, error)
	GetCompetitionByCode(ctx context.Context, code string) (domain.Competition, error)
	UpdateCompetition(ctx context.Context, comp domain.Competition) error
	ListActiveForUser(ctx context.Context, userID string) ([]domain.Competition, error)
	ListWaitingBefore(ctx context.Context, cutoff time.Time) ([]domain.Competition, error)

	UpsertParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, competitionID, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, competitionID string) ([]domain.Participant, error)

	UpsertResults(ctx context.Context, results []domain.Result) error
	ListResults(ctx context.Context, competitionID string) ([]domain.Result, error)
	ListResultsForUser(ctx context.Context, userID string) ([]domain.Result, error)

	AppendChat(ctx context.Context, msg domain.ChatMessage) error
	ListChat(ctx context.Context, competitionID string) ([]domain.ChatMessage, error)
}

// QueueRepository stores matchmaking tickets.
type QueueRepository interface {
	CreateTicket(ctx context.Context, ticket domain.QueueTicket) error
	ActiveTicketFor(ctx context.Context, userID string) (domain.QueueTicket, bool, error)
	ListWaitingTickets(ctx context.Context) ([]domain.QueueTicket, error)
	UpdateTicket(ctx context.Context, ticket domain.QueueTicket) error
	CancelTicketsFor(ctx context.Context, userID string) error
}

// QuestionGenerator produces a question set for the given preferences. The
// HTTP implementation fronts the external generation endpoint.
type QuestionGenerator interface {
	Generate(ctx context.Context, prefs domain.Preferences) ([]domain.Question, error)
}

// CompetitionUpdate is the full snapshot pushed to feed subscribers. Any
// change triggers a complete reload rather than incremental patching.
type CompetitionUpdate struct {
	Competition  domain.Competition   `json:"competition"`
	Participants []domain.Participant `json:"participants"`
	Leaderboard  domain.Leaderboard   `json:"leaderboard"`
}

// CompetitionService contains the competition use cases. Every operation is
// attempt-once: failures are recorded as the last error and returned, never
// retried.
type CompetitionService struct {
	repo      CompetitionRepository
	queue     QueueRepository
	generator QuestionGenerator
	codeLen   int
	now       func() time.Time
	rnd       *rand.Rand

	mu      sync.Mutex
	feeds   map[string]*session
	lastErr string
}

func NewCompetitionService(repo CompetitionRepository, queue QueueRepository, generator QuestionGenerator, codeLen int) *CompetitionService {
	if codeLen <= 0 {
		codeLen = 6
	}
	return &CompetitionService{
		repo:      repo,
		queue:     queue,
		generator: generator,
		codeLen:   codeLen,
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		feeds:     make(map[string]*session),
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *CompetitionService) WithClock(now func() time.Time) *CompetitionService {
	s.now = now
	return s
}

// LastError returns the most recent operation failure, empty if none.
func (s *CompetitionService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *CompetitionService) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	return err
}

// codeAlphabet omits 0/O/1/I so codes stay unambiguous when read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 10

func (s *CompetitionService) newCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		buf := make([]byte, s.codeLen)
		s.mu.Lock()
		for i := range buf {
			buf[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
		}
		s.mu.Unlock()
		code := string(buf)

		_, err := s.repo.GetCompetitionByCode(ctx, code)
		if errors.Is(err, domain.ErrCompetitionNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		// Collision; sample again.
	}
	return "", fmt.Errorf("could not find a free competition code in %d attempts", maxCodeAttempts)
}

// Create inserts a new waiting competition and registers the creator as its
// first participant. Returns the competition id.
func (s *CompetitionService) Create(ctx context.Context, creatorID, creatorName, title, description string, typ domain.CompetitionType, prefs domain.Preferences, maxParticipants int) (string, error) {
	if creatorID == "" {
		return "", s.fail(domain.ErrSessionExpired)
	}
	code, err := s.newCode(ctx)
	if err != nil {
		return "", s.fail(err)
	}

	now := s.now()
	comp := domain.Competition{
		ID:              uuid.NewString(),
		Title:           title,
		Description:     description,
		Code:            code,
		Type:            typ,
		Status:          domain.StatusWaiting,
		Preferences:     prefs,
		MaxParticipants: maxParticipants,
		CreatorID:       creatorID,
		CreatedAt:       now,
	}
	if err := s.repo.CreateCompetition(ctx, comp); err != nil {
		return "", s.fail(err)
	}
	creator := domain.Participant{
		CompetitionID: comp.ID,
		UserID:        creatorID,
		DisplayName:   creatorName,
		Status:        domain.ParticipantJoined,
		JoinedAt:      now,
	}
	if err := s.repo.UpsertParticipant(ctx, creator); err != nil {
		return "", s.fail(err)
	}
	s.broadcast(ctx, comp.ID)
	return comp.ID, nil
}

// Join adds the user to the competition identified by code. Joining twice is
// a no-op; joining a competition that left the waiting state is rejected.
func (s *CompetitionService) Join(ctx context.Context, code, userID, displayName string) (domain.Competition, error) {
	comp, err := s.repo.GetCompetitionByCode(ctx, code)
	if err != nil {
		return domain.Competition{}, s.fail(err)
	}

	if _, err := s.repo.GetParticipant(ctx, comp.ID, userID); err == nil {
		return comp, nil // idempotent join
	} else if !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Competition{}, s.fail(err)
	}

	switch comp.Status {
	case domain.StatusWaiting:
	case domain.StatusActive, domain.StatusCompleted:
		return domain.Competition{}, s.fail(domain.ErrAlreadyStarted)
	default:
		return domain.Competition{}, s.fail(domain.ErrNotJoinable)
	}

	parts, err := s.repo.ListParticipants(ctx, comp.ID)
	if err != nil {
		return domain.Competition{}, s.fail(err)
	}
	if comp.MaxParticipants > 0 && len(parts) >= comp.MaxParticipants {
		return domain.Competition{}, s.fail(domain.ErrNotJoinable)
	}

	p := domain.Participant{
		CompetitionID: comp.ID,
		UserID:        userID,
		DisplayName:   displayName,
		Status:        domain.ParticipantJoined,
		JoinedAt:      s.now(),
	}
	if err := s.repo.UpsertParticipant(ctx, p); err != nil {
		return domain.Competition{}, s.fail(err)
	}
	s.broadcast(ctx, comp.ID)
	return comp, nil
}

// Start generates the question set and flips the competition to active.
// Creator-only, waiting-only; a generator failure leaves the status
// untouched.
func (s *CompetitionService) Start(ctx context.Context, id, userID string) (domain.Competition, error) {
	comp, err := s.repo.GetCompetition(ctx, id)
	if err != nil {
		return domain.Competition{}, s.fail(err)
	}
	if comp.CreatorID != userID {
		return domain.Competition{}, s.fail(domain.ErrNotCreator)
	}
	if !comp.Status.CanTransition(domain.StatusActive) {
		return domain.Competition{}, s.fail(domain.ErrInvalidTransition)
	}
	if comp.Type == domain.CompetitionPrivate {
		parts, err := s.repo.ListParticipants(ctx, id)
		if err != nil {
			return domain.Competition{}, s.fail(err)
		}
		if countNonDeclined(parts) < 2 {
			return domain.Competition{}, s.fail(domain.ErrTooFewParticipants)
		}
	}

	questions, err := s.generator.Generate(ctx, comp.Preferences)
	if err != nil {
		return domain.Competition{}, s.fail(fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err))
	}

	start := s.now()
	comp.Questions = questions
	comp.StartTime = &start
	comp.Status = domain.StatusActive
	if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
		return domain.Competition{}, s.fail(err)
	}
	s.broadcast(ctx, comp.ID)
	return comp, nil
}

// Cancel aborts a waiting or active competition. Creator-only.
func (s *CompetitionService) Cancel(ctx context.Context, id, userID string) error {
	comp, err := s.repo.GetCompetition(ctx, id)
	if err != nil {
		return s.fail(err)
	}
	if comp.CreatorID != userID {
		return s.fail(domain.ErrNotCreator)
	}
	if !comp.Status.CanTransition(domain.StatusCancelled) {
		return s.fail(domain.ErrInvalidTransition)
	}
	end := s.now()
	comp.Status = domain.StatusCancelled
	comp.EndTime = &end
	if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
		return s.fail(err)
	}
	s.broadcast(ctx, id)
	return nil
}

// Progress is the per-question progress pushed after every answer.
type Progress struct {
	Answers           map[string]string `json:"answers"`
	Score             float64           `json:"score"`
	CorrectAnswers    int               `json:"correctAnswers"`
	QuestionsAnswered int               `json:"questionsAnswered"`
	TimeTakenSec      int               `json:"timeTakenSec"`
	CurrentQuestion   int               `json:"currentQuestion"`
}

// UpdateProgress upserts the calling participant's progress. It never
// transitions status.
func (s *CompetitionService) UpdateProgress(ctx context.Context, id, userID string, progress Progress) error {
	p, err := s.repo.GetParticipant(ctx, id, userID)
	if err != nil {
		return s.fail(err)
	}
	p.Answers = progress.Answers
	p.Score = progress.Score
	p.CorrectAnswers = progress.CorrectAnswers
	p.QuestionsAnswered = progress.QuestionsAnswered
	p.TimeTakenSec = progress.TimeTakenSec
	p.CurrentQuestion = progress.CurrentQuestion
	if err := s.repo.UpsertParticipant(ctx, p); err != nil {
		return s.fail(err)
	}
	s.broadcast(ctx, id)
	return nil
}

// Complete marks the calling participant completed and runs the finisher:
// once every non-declined participant is done, ranks are assigned through
// the one authoritative ranking, result snapshots are upserted (idempotent
// under racing completions) and the competition transitions to completed.
func (s *CompetitionService) Complete(ctx context.Context, id, userID string, final Progress) error {
	p, err := s.repo.GetParticipant(ctx, id, userID)
	if err != nil {
		return s.fail(err)
	}
	if p.Status != domain.ParticipantCompleted {
		if !p.Status.CanTransition(domain.ParticipantCompleted) {
			return s.fail(domain.ErrInvalidTransition)
		}
		done := s.now()
		p.Answers = final.Answers
		p.Score = final.Score
		p.CorrectAnswers = final.CorrectAnswers
		p.QuestionsAnswered = final.QuestionsAnswered
		p.TimeTakenSec = final.TimeTakenSec
		p.CurrentQuestion = final.CurrentQuestion
		p.Status = domain.ParticipantCompleted
		p.CompletedAt = &done
		if err := s.repo.UpsertParticipant(ctx, p); err != nil {
			return s.fail(err)
		}
	}

	if err := s.finish(ctx, id); err != nil {
		return s.fail(err)
	}
	s.broadcast(ctx, id)
	return nil
}

// finish aggregates ranking exactly once regardless of which participant's
// completion triggered it. Result writes are upserts keyed by
// (competition, user), so a racing second run rewrites identical rows.
func (s *CompetitionService) finish(ctx context.Context, id string) error {
	comp, err := s.repo.GetCompetition(ctx, id)
	if err != nil {
		return err
	}
	if comp.Status == domain.StatusCompleted {
		return nil
	}
	parts, err := s.repo.ListParticipants(ctx, id)
	if err != nil {
		return err
	}
	if !domain.FullyCompleted(parts) {
		return nil
	}

	ranked := domain.RankParticipants(parts)
	for i := range ranked {
		if err := s.repo.UpsertParticipant(ctx, ranked[i]); err != nil {
			return err
		}
	}
	if err := s.repo.UpsertResults(ctx, domain.BuildResults(comp, ranked)); err != nil {
		return err
	}
	if comp.Status.CanTransition(domain.StatusCompleted) {
		end := s.now()
		comp.Status = domain.StatusCompleted
		comp.EndTime = &end
		if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
			return err
		}
	}
	return nil
}

// Decline marks the participant as declining the invite.
func (s *CompetitionService) Decline(ctx context.Context, id, userID string) error {
	p, err := s.repo.GetParticipant(ctx, id, userID)
	if err != nil {
		return s.fail(err)
	}
	if !p.Status.CanTransition(domain.ParticipantDeclined) {
		return s.fail(domain.ErrInvalidTransition)
	}
	p.Status = domain.ParticipantDeclined
	if err := s.repo.UpsertParticipant(ctx, p); err != nil {
		return s.fail(err)
	}
	// A decline can leave everyone else completed.
	if err := s.finish(ctx, id); err != nil {
		return s.fail(err)
	}
	s.broadcast(ctx, id)
	return nil
}

// Get loads a competition by id.
func (s *CompetitionService) Get(ctx context.Context, id string) (domain.Competition, error) {
	return s.repo.GetCompetition(ctx, id)
}

// GetParticipant loads the caller's membership record.
func (s *CompetitionService) GetParticipant(ctx context.Context, id, userID string) (domain.Participant, error) {
	return s.repo.GetParticipant(ctx, id, userID)
}

// ActiveCompetitionsFor lists waiting/active competitions the user belongs
// to; the step controller uses the count to decide auto-entry vs
// disambiguation.
func (s *CompetitionService) ActiveCompetitionsFor(ctx context.Context, userID string) ([]domain.Competition, error) {
	return s.repo.ListActiveForUser(ctx, userID)
}

// LiveLeaderboard is a pure projection of the current participant list:
// score descending, time ascending. Recomputed on every call, never stored.
func (s *CompetitionService) LiveLeaderboard(ctx context.Context, id string) (domain.Leaderboard, error) {
	parts, err := s.repo.ListParticipants(ctx, id)
	if err != nil {
		return domain.Leaderboard{}, s.fail(err)
	}
	return s.buildLeaderboard(id, parts), nil
}

func (s *CompetitionService) buildLeaderboard(id string, parts []domain.Participant) domain.Leaderboard {
	ranked := domain.RankParticipants(parts)
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:         ranked[i].UserID,
			DisplayName:    ranked[i].DisplayName,
			Status:         ranked[i].Status,
			Score:          ranked[i].Score,
			CorrectAnswers: ranked[i].CorrectAnswers,
			TimeTakenSec:   ranked[i].TimeTakenSec,
			Rank:           ranked[i].Rank,
		})
	}
	return domain.Leaderboard{
		CompetitionID: id,
		Entries:       entries,
		UpdatedAt:     s.now(),
	}
}

// Results returns the persisted result snapshots for a competition.
func (s *CompetitionService) Results(ctx context.Context, id string) ([]domain.Result, error) {
	return s.repo.ListResults(ctx, id)
}

// History returns the user's past results across competitions.
func (s *CompetitionService) History(ctx context.Context, userID string) ([]domain.Result, error) {
	return s.repo.ListResultsForUser(ctx, userID)
}

// SendChat appends a chat message and fans it out to chat subscribers.
func (s *CompetitionService) SendChat(ctx context.Context, id, userID, displayName, message string) (domain.ChatMessage, error) {
	if _, err := s.repo.GetParticipant(ctx, id, userID); err != nil {
		return domain.ChatMessage{}, s.fail(err)
	}
	msg := domain.ChatMessage{
		ID:            uuid.NewString(),
		CompetitionID: id,
		UserID:        userID,
		DisplayName:   displayName,
		Message:       message,
		CreatedAt:     s.now(),
	}
	if err := s.repo.AppendChat(ctx, msg); err != nil {
		return domain.ChatMessage{}, s.fail(err)
	}
	s.feed(id).broadcastChat(msg)
	return msg, nil
}

// ChatHistory returns the competition's chat log in append order.
func (s *CompetitionService) ChatHistory(ctx context.Context, id string) ([]domain.ChatMessage, error) {
	return s.repo.ListChat(ctx, id)
}

// JoinQueue inserts a matchmaking ticket unless a waiting or matched one
// already exists for the user (idempotent).
func (s *CompetitionService) JoinQueue(ctx context.Context, userID string, prefs domain.Preferences) (domain.QueueTicket, error) {
	if existing, ok, err := s.queue.ActiveTicketFor(ctx, userID); err != nil {
		return domain.QueueTicket{}, s.fail(err)
	} else if ok {
		return existing, nil
	}
	ticket := domain.QueueTicket{
		ID:         uuid.NewString(),
		UserID:     userID,
		Topic:      prefs.Topic,
		Difficulty: prefs.Difficulty,
		Language:   prefs.Language,
		Status:     domain.TicketWaiting,
		QueuedAt:   s.now(),
	}
	if err := s.queue.CreateTicket(ctx, ticket); err != nil {
		return domain.QueueTicket{}, s.fail(err)
	}
	return ticket, nil
}

// LeaveQueue cancels the user's outstanding tickets.
func (s *CompetitionService) LeaveQueue(ctx context.Context, userID string) error {
	if err := s.queue.CancelTicketsFor(ctx, userID); err != nil {
		return s.fail(err)
	}
	return nil
}

// Subscribe opens a change feed for the competition. On any row change the
// subscriber receives a freshly loaded full snapshot. The returned cancel
// func must be called on teardown or the channel leaks.
func (s *CompetitionService) Subscribe(ctx context.Context, id string) (<-chan CompetitionUpdate, func(), error) {
	if _, err := s.repo.GetCompetition(ctx, id); err != nil {
		return nil, nil, err
	}
	update, err := s.snapshot(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed(id).subscribe(update)
	return ch, cancel, nil
}

// SubscribeChat opens the chat feed for a competition.
func (s *CompetitionService) SubscribeChat(ctx context.Context, id string) (<-chan domain.ChatMessage, func(), error) {
	if _, err := s.repo.GetCompetition(ctx, id); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed(id).subscribeChat()
	return ch, cancel, nil
}

func (s *CompetitionService) feed(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.feeds[id]; ok {
		return sess
	}
	sess := newSession(id)
	s.feeds[id] = sess
	return sess
}

func (s *CompetitionService) snapshot(ctx context.Context, id string) (CompetitionUpdate, error) {
	comp, err := s.repo.GetCompetition(ctx, id)
	if err != nil {
		return CompetitionUpdate{}, err
	}
	parts, err := s.repo.ListParticipants(ctx, id)
	if err != nil {
		return CompetitionUpdate{}, err
	}
	return CompetitionUpdate{
		Competition:  comp,
		Participants: parts,
		Leaderboard:  s.buildLeaderboard(id, parts),
	}, nil
}

// broadcast reloads the competition and pushes the snapshot to every feed
// subscriber. Correctness over efficiency: subscribers always see a full
// reload. Best-effort; a load failure only skips the push.
func (s *CompetitionService) broadcast(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.feeds[id]
	s.mu.Unlock()
	if !ok || sess.empty() {
		return
	}
	update, err := s.snapshot(ctx, id)
	if err != nil {
		return
	}
	sess.broadcast(update)
}

func countNonDeclined(parts []domain.Participant) int {
	n := 0
	for i := range parts {
		if parts[i].Status != domain.ParticipantDeclined {
			n++
		}
	}
	return n
}
