package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-competition-service/internal/domain"
)

// CompetitionRepository is an in-memory implementation of the competition
// store, used by tests and the demo configuration.
type CompetitionRepository struct {
	mu           sync.RWMutex
	competitions map[string]domain.Competition
	participants map[string]map[string]domain.Participant // competition -> user
	results      map[string]map[string]domain.Result      // competition -> user
	chat         map[string][]domain.ChatMessage
}

func NewCompetitionRepository() *CompetitionRepository {
	return &CompetitionRepository{
		competitions: make(map[string]domain.Competition),
		participants: make(map[string]map[string]domain.Participant),
		results:      make(map[string]map[string]domain.Result),
		chat:         make(map[string][]domain.ChatMessage),
	}
}

func (r *CompetitionRepository) CreateCompetition(_ context.Context, comp domain.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.competitions[comp.ID] = comp
	return nil
}

func (r *CompetitionRepository) GetCompetition(_ context.Context, id string) (domain.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	comp, ok := r.competitions[id]
	if !ok {
		return domain.Competition{}, domain.ErrCompetitionNotFound
	}
	return comp, nil
}

func (r *CompetitionRepository) GetCompetitionByCode(_ context.Context, code string) (domain.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, comp := range r.competitions {
		if comp.Code == code {
			return comp, nil
		}
	}
	return domain.Competition{}, domain.ErrCompetitionNotFound
}

func (r *CompetitionRepository) UpdateCompetition(_ context.Context, comp domain.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.competitions[comp.ID]; !ok {
		return domain.ErrCompetitionNotFound
	}
	r.competitions[comp.ID] = comp
	return nil
}

// DeleteCompetition removes a competition row; tests use it to simulate a
// deleted row between polls.
func (r *CompetitionRepository) DeleteCompetition(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.competitions, id)
	delete(r.participants, id)
	delete(r.chat, id)
	return nil
}

func (r *CompetitionRepository) ListActiveForUser(_ context.Context, userID string) ([]domain.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Competition
	for id, comp := range r.competitions {
		if comp.Status != domain.StatusWaiting && comp.Status != domain.StatusActive {
			continue
		}
		p, ok := r.participants[id][userID]
		if ok && p.Status != domain.ParticipantDeclined {
			out = append(out, comp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *CompetitionRepository) ListWaitingBefore(_ context.Context, cutoff time.Time) ([]domain.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Competition
	for _, comp := range r.competitions {
		if comp.Status == domain.StatusWaiting && comp.CreatedAt.Before(cutoff) {
			out = append(out, comp)
		}
	}
	return out, nil
}

func (r *CompetitionRepository) UpsertParticipant(_ context.Context, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.competitions[p.CompetitionID]; !ok {
		return domain.ErrCompetitionNotFound
	}
	if r.participants[p.CompetitionID] == nil {
		r.participants[p.CompetitionID] = make(map[string]domain.Participant)
	}
	r.participants[p.CompetitionID][p.UserID] = p
	return nil
}

func (r *CompetitionRepository) GetParticipant(_ context.Context, competitionID, userID string) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[competitionID][userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (r *CompetitionRepository) ListParticipants(_ context.Context, competitionID string) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parts := make([]domain.Participant, 0, len(r.participants[competitionID]))
	for _, p := range r.participants[competitionID] {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].JoinedAt.Before(parts[j].JoinedAt) })
	return parts, nil
}

func (r *CompetitionRepository) UpsertResults(_ context.Context, results []domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		if r.results[res.CompetitionID] == nil {
			r.results[res.CompetitionID] = make(map[string]domain.Result)
		}
		// Keyed by (competition, user): racing finishers rewrite, never duplicate.
		r.results[res.CompetitionID][res.UserID] = res
	}
	return nil
}

func (r *CompetitionRepository) ListResults(_ context.Context, competitionID string) ([]domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Result, 0, len(r.results[competitionID]))
	for _, res := range r.results[competitionID] {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalRank < out[j].FinalRank })
	return out, nil
}

func (r *CompetitionRepository) ListResultsForUser(_ context.Context, userID string) ([]domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Result
	for _, byUser := range r.results {
		if res, ok := byUser[userID]; ok {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

func (r *CompetitionRepository) AppendChat(_ context.Context, msg domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[msg.CompetitionID] = append(r.chat[msg.CompetitionID], msg)
	return nil
}

func (r *CompetitionRepository) ListChat(_ context.Context, competitionID string) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChatMessage, len(r.chat[competitionID]))
	copy(out, r.chat[competitionID])
	return out, nil
}
