package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-competition-service/internal/domain"
)

// QueueRepository persists matchmaking tickets in the random_queue table.
type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

const ticketColumns = `id, user_id, topic, difficulty, language, status, queued_at, matched_at`

func (r *QueueRepository) CreateTicket(ctx context.Context, t domain.QueueTicket) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO random_queue (`+ticketColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.UserID, t.Topic, t.Difficulty, t.Language, t.Status, t.QueuedAt, t.MatchedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *QueueRepository) ActiveTicketFor(ctx context.Context, userID string) (domain.QueueTicket, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM random_queue
		WHERE user_id=$1 AND status IN ('waiting','matched')
		ORDER BY queued_at DESC
		LIMIT 1`, userID)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QueueTicket{}, false, nil
	}
	if err != nil {
		return domain.QueueTicket{}, false, err
	}
	return t, true, nil
}

func (r *QueueRepository) ListWaitingTickets(ctx context.Context) ([]domain.QueueTicket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM random_queue
		WHERE status='waiting'
		ORDER BY queued_at`)
	if err != nil {
		return nil, fmt.Errorf("list waiting tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.QueueTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *QueueRepository) UpdateTicket(ctx context.Context, t domain.QueueTicket) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE random_queue
		SET status=$2, matched_at=$3
		WHERE id=$1`, t.ID, t.Status, t.MatchedAt)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (r *QueueRepository) CancelTicketsFor(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE random_queue
		SET status='cancelled'
		WHERE user_id=$1 AND status='waiting'`, userID)
	if err != nil {
		return fmt.Errorf("cancel tickets: %w", err)
	}
	return nil
}

func scanTicket(row pgx.Row) (domain.QueueTicket, error) {
	var t domain.QueueTicket
	err := row.Scan(&t.ID, &t.UserID, &t.Topic, &t.Difficulty, &t.Language,
		&t.Status, &t.QueuedAt, &t.MatchedAt)
	if err != nil {
		return domain.QueueTicket{}, err
	}
	return t, nil
}
