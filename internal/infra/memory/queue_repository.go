package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-competition-service/internal/domain"
)

// QueueRepository is an in-memory matchmaking queue.
type QueueRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.QueueTicket
}

func NewQueueRepository() *QueueRepository {
	return &QueueRepository{tickets: make(map[string]domain.QueueTicket)}
}

func (r *QueueRepository) CreateTicket(_ context.Context, ticket domain.QueueTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *QueueRepository) ActiveTicketFor(_ context.Context, userID string) (domain.QueueTicket, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tickets {
		if t.UserID == userID &&
			(t.Status == domain.TicketWaiting || t.Status == domain.TicketMatched) {
			return t, true, nil
		}
	}
	return domain.QueueTicket{}, false, nil
}

func (r *QueueRepository) ListWaitingTickets(_ context.Context) ([]domain.QueueTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.QueueTicket
	for _, t := range r.tickets {
		if t.Status == domain.TicketWaiting {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out, nil
}

func (r *QueueRepository) UpdateTicket(_ context.Context, ticket domain.QueueTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return domain.ErrTicketNotFound
	}
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *QueueRepository) CancelTicketsFor(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tickets {
		if t.UserID == userID && t.Status == domain.TicketWaiting {
			t.Status = domain.TicketCancelled
			r.tickets[id] = t
		}
	}
	return nil
}
