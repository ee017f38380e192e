package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-competition-service/internal/domain"
)

// CompetitionRepository persists competitions, participants, results and
// chat in Postgres. Preferences, questions and answer sheets are stored as
// JSONB.
type CompetitionRepository struct {
	pool *pgxpool.Pool
}

func NewCompetitionRepository(pool *pgxpool.Pool) *CompetitionRepository {
	return &CompetitionRepository{pool: pool}
}

const competitionColumns = `id, title, description, code, type, status, preferences,
	max_participants, creator_id, questions, start_time, end_time, created_at`

func (r *CompetitionRepository) CreateCompetition(ctx context.Context, comp domain.Competition) error {
	prefs, questions, err := marshalCompetitionJSON(comp)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO competitions (`+competitionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		comp.ID, comp.Title, comp.Description, comp.Code, comp.Type, comp.Status,
		prefs, comp.MaxParticipants, comp.CreatorID, questions,
		comp.StartTime, comp.EndTime, comp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert competition: %w", err)
	}
	return nil
}

func (r *CompetitionRepository) GetCompetition(ctx context.Context, id string) (domain.Competition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+competitionColumns+` FROM competitions WHERE id=$1`, id)
	return scanCompetition(row)
}

func (r *CompetitionRepository) GetCompetitionByCode(ctx context.Context, code string) (domain.Competition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+competitionColumns+` FROM competitions WHERE code=$1`, code)
	return scanCompetition(row)
}

func (r *CompetitionRepository) UpdateCompetition(ctx context.Context, comp domain.Competition) error {
	prefs, questions, err := marshalCompetitionJSON(comp)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE competitions
		SET title=$2, description=$3, status=$4, preferences=$5, questions=$6,
		    start_time=$7, end_time=$8, max_participants=$9
		WHERE id=$1`,
		comp.ID, comp.Title, comp.Description, comp.Status, prefs, questions,
		comp.StartTime, comp.EndTime, comp.MaxParticipants)
	if err != nil {
		return fmt.Errorf("update competition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCompetitionNotFound
	}
	return nil
}

func (r *CompetitionRepository) ListActiveForUser(ctx context.Context, userID string) ([]domain.Competition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixedCompetitionColumns("c")+`
		FROM competitions c
		JOIN competition_participants p ON p.competition_id = c.id
		WHERE p.user_id=$1 AND p.status <> 'declined' AND c.status IN ('waiting','active')
		ORDER BY c.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active competitions: %w", err)
	}
	defer rows.Close()
	return scanCompetitions(rows)
}

func (r *CompetitionRepository) ListWaitingBefore(ctx context.Context, cutoff time.Time) ([]domain.Competition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+competitionColumns+`
		FROM competitions
		WHERE status='waiting' AND created_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list waiting competitions: %w", err)
	}
	defer rows.Close()
	return scanCompetitions(rows)
}

const participantColumns = `competition_id, user_id, display_name, status, score,
	correct_answers, questions_answered, time_taken_sec, current_question,
	answers, joined_at, completed_at, rank`

func (r *CompetitionRepository) UpsertParticipant(ctx context.Context, p domain.Participant) error {
	answers, err := json.Marshal(p.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO competition_participants (`+participantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (competition_id, user_id) DO UPDATE SET
			display_name=EXCLUDED.display_name,
			status=EXCLUDED.status,
			score=EXCLUDED.score,
			correct_answers=EXCLUDED.correct_answers,
			questions_answered=EXCLUDED.questions_answered,
			time_taken_sec=EXCLUDED.time_taken_sec,
			current_question=EXCLUDED.current_question,
			answers=EXCLUDED.answers,
			completed_at=EXCLUDED.completed_at,
			rank=EXCLUDED.rank`,
		p.CompetitionID, p.UserID, p.DisplayName, p.Status, p.Score,
		p.CorrectAnswers, p.QuestionsAnswered, p.TimeTakenSec, p.CurrentQuestion,
		answers, p.JoinedAt, p.CompletedAt, p.Rank)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

func (r *CompetitionRepository) GetParticipant(ctx context.Context, competitionID, userID string) (domain.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM competition_participants
		WHERE competition_id=$1 AND user_id=$2`, competitionID, userID)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, err
}

func (r *CompetitionRepository) ListParticipants(ctx context.Context, competitionID string) ([]domain.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM competition_participants
		WHERE competition_id=$1
		ORDER BY joined_at`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var parts []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (r *CompetitionRepository) UpsertResults(ctx context.Context, results []domain.Result) error {
	for _, res := range results {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO competition_results (competition_id, user_id, display_name,
				final_rank, score, correct_answers, total_questions,
				percentage_score, accuracy_rate, time_taken_sec, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (competition_id, user_id) DO UPDATE SET
				final_rank=EXCLUDED.final_rank,
				score=EXCLUDED.score,
				correct_answers=EXCLUDED.correct_answers,
				total_questions=EXCLUDED.total_questions,
				percentage_score=EXCLUDED.percentage_score,
				accuracy_rate=EXCLUDED.accuracy_rate,
				time_taken_sec=EXCLUDED.time_taken_sec,
				completed_at=EXCLUDED.completed_at`,
			res.CompetitionID, res.UserID, res.DisplayName, res.FinalRank,
			res.Score, res.CorrectAnswers, res.TotalQuestions,
			res.PercentageScore, res.AccuracyRate, res.TimeTakenSec, res.CompletedAt)
		if err != nil {
			return fmt.Errorf("upsert result: %w", err)
		}
	}
	return nil
}

const resultColumns = `competition_id, user_id, display_name, final_rank, score,
	correct_answers, total_questions, percentage_score, accuracy_rate,
	time_taken_sec, completed_at`

func (r *CompetitionRepository) ListResults(ctx context.Context, competitionID string) ([]domain.Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+resultColumns+`
		FROM competition_results
		WHERE competition_id=$1
		ORDER BY final_rank`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (r *CompetitionRepository) ListResultsForUser(ctx context.Context, userID string) ([]domain.Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+resultColumns+`
		FROM competition_results
		WHERE user_id=$1
		ORDER BY completed_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (r *CompetitionRepository) AppendChat(ctx context.Context, msg domain.ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO competition_chat (id, competition_id, user_id, display_name, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		msg.ID, msg.CompetitionID, msg.UserID, msg.DisplayName, msg.Message, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

func (r *CompetitionRepository) ListChat(ctx context.Context, competitionID string) ([]domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, competition_id, user_id, display_name, message, created_at
		FROM competition_chat
		WHERE competition_id=$1
		ORDER BY created_at`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list chat: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.CompetitionID, &m.UserID, &m.DisplayName, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func marshalCompetitionJSON(comp domain.Competition) (prefs, questions []byte, err error) {
	prefs, err = json.Marshal(comp.Preferences)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal preferences: %w", err)
	}
	questions, err = json.Marshal(comp.Questions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal questions: %w", err)
	}
	return prefs, questions, nil
}

func prefixedCompetitionColumns(alias string) string {
	return alias + `.id, ` + alias + `.title, ` + alias + `.description, ` + alias + `.code, ` +
		alias + `.type, ` + alias + `.status, ` + alias + `.preferences, ` +
		alias + `.max_participants, ` + alias + `.creator_id, ` + alias + `.questions, ` +
		alias + `.start_time, ` + alias + `.end_time, ` + alias + `.created_at`
}

func scanCompetition(row pgx.Row) (domain.Competition, error) {
	var comp domain.Competition
	var prefs, questions []byte
	err := row.Scan(&comp.ID, &comp.Title, &comp.Description, &comp.Code, &comp.Type,
		&comp.Status, &prefs, &comp.MaxParticipants, &comp.CreatorID, &questions,
		&comp.StartTime, &comp.EndTime, &comp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Competition{}, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return domain.Competition{}, fmt.Errorf("scan competition: %w", err)
	}
	if err := json.Unmarshal(prefs, &comp.Preferences); err != nil {
		return domain.Competition{}, fmt.Errorf("unmarshal preferences: %w", err)
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &comp.Questions); err != nil {
			return domain.Competition{}, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	return comp, nil
}

func scanCompetitions(rows pgx.Rows) ([]domain.Competition, error) {
	var comps []domain.Competition
	for rows.Next() {
		comp, err := scanCompetition(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, comp)
	}
	return comps, rows.Err()
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	var answers []byte
	err := row.Scan(&p.CompetitionID, &p.UserID, &p.DisplayName, &p.Status, &p.Score,
		&p.CorrectAnswers, &p.QuestionsAnswered, &p.TimeTakenSec, &p.CurrentQuestion,
		&answers, &p.JoinedAt, &p.CompletedAt, &p.Rank)
	if err != nil {
		return domain.Participant{}, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &p.Answers); err != nil {
			return domain.Participant{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return p, nil
}

func scanResults(rows pgx.Rows) ([]domain.Result, error) {
	var results []domain.Result
	for rows.Next() {
		var res domain.Result
		if err := rows.Scan(&res.CompetitionID, &res.UserID, &res.DisplayName,
			&res.FinalRank, &res.Score, &res.CorrectAnswers, &res.TotalQuestions,
			&res.PercentageScore, &res.AccuracyRate, &res.TimeTakenSec, &res.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
