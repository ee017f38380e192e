package domain

import "time"

// CompetitionType distinguishes invite-based competitions from matchmade ones.
type CompetitionType string

const (
	CompetitionPrivate CompetitionType = "private"
	CompetitionRandom  CompetitionType = "random"
)

// CompetitionStatus is the lifecycle state of a competition. Transitions only
// ever move forward; see CanTransition.
type CompetitionStatus string

const (
	StatusWaiting   CompetitionStatus = "waiting"
	StatusActive    CompetitionStatus = "active"
	StatusCompleted CompetitionStatus = "completed"
	StatusCancelled CompetitionStatus = "cancelled"
)

// CanTransition reports whether a competition may move from s to next.
// waiting -> active|cancelled, active -> completed|cancelled; completed and
// cancelled are terminal.
func (s CompetitionStatus) CanTransition(next CompetitionStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// ParticipantStatus tracks a user's membership state within a competition.
type ParticipantStatus string

const (
	ParticipantJoined    ParticipantStatus = "joined"
	ParticipantCompleted ParticipantStatus = "completed"
	ParticipantDeclined  ParticipantStatus = "declined"
)

// CanTransition reports whether a participant may move from s to next.
// joined -> completed|declined; both targets are terminal.
func (s ParticipantStatus) CanTransition(next ParticipantStatus) bool {
	return s == ParticipantJoined &&
		(next == ParticipantCompleted || next == ParticipantDeclined)
}

// TimerMode selects which countdown drives a quiz. Per-question and
// whole-quiz are mutually exclusive; at most one is active per quiz.
type TimerMode string

const (
	TimerNone        TimerMode = "none"
	TimerPerQuestion TimerMode = "per-question"
	TimerWholeQuiz   TimerMode = "whole-quiz"
)

// Preferences is the quiz configuration embedded in a competition, also used
// for solo quizzes and matchmaking buckets.
type Preferences struct {
	Course          string    `json:"course"`
	Topic           string    `json:"topic"`
	QuestionCount   int       `json:"questionCount"`
	Difficulty      string    `json:"difficulty"`
	Language        string    `json:"language"`
	TimerMode       TimerMode `json:"timerMode"`
	TimeLimitSec    int       `json:"timeLimitSec"` // per question or whole quiz, by mode
	NegativeMarking bool      `json:"negativeMarking"`
	Penalty         float64   `json:"penalty"` // fraction deducted per wrong answer
}

// Competition is a multiplayer quiz session with a shared question set and a
// human-shareable join code.
type Competition struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Code            string            `json:"code"`
	Type            CompetitionType   `json:"type"`
	Status          CompetitionStatus `json:"status"`
	Preferences     Preferences       `json:"preferences"`
	MaxParticipants int               `json:"maxParticipants"`
	CreatorID       string            `json:"creatorId"`
	Questions       []Question        `json:"questions,omitempty"`
	StartTime       *time.Time        `json:"startTime,omitempty"`
	EndTime         *time.Time        `json:"endTime,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Participant is a user's membership record in a competition, carrying their
// individual progress. Keyed by (CompetitionID, UserID).
type Participant struct {
	CompetitionID     string            `json:"competitionId"`
	UserID            string            `json:"userId"`
	DisplayName       string            `json:"displayName"`
	Status            ParticipantStatus `json:"status"`
	Score             float64           `json:"score"`
	CorrectAnswers    int               `json:"correctAnswers"`
	QuestionsAnswered int               `json:"questionsAnswered"`
	TimeTakenSec      int               `json:"timeTakenSec"`
	CurrentQuestion   int               `json:"currentQuestion"`
	Answers           map[string]string `json:"answers,omitempty"`
	JoinedAt          time.Time         `json:"joinedAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	Rank              int               `json:"rank,omitempty"`
}

// AccuracyRate returns the percentage of answered questions that were correct.
func (p *Participant) AccuracyRate() float64 {
	if p.QuestionsAnswered == 0 {
		return 0
	}
	return float64(p.CorrectAnswers) / float64(p.QuestionsAnswered) * 100
}

// FullyCompleted reports whether every non-declined participant has finished.
// Declined participants do not hold a competition open.
func FullyCompleted(parts []Participant) bool {
	any := false
	for i := range parts {
		switch parts[i].Status {
		case ParticipantDeclined:
			continue
		case ParticipantCompleted:
			any = true
		default:
			return false
		}
	}
	return any
}

// Result is the write-once per-participant snapshot of a completed
// competition, keyed by (CompetitionID, UserID).
type Result struct {
	CompetitionID   string    `json:"competitionId"`
	UserID          string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	FinalRank       int       `json:"finalRank"`
	Score           float64   `json:"score"`
	CorrectAnswers  int       `json:"correctAnswers"`
	TotalQuestions  int       `json:"totalQuestions"`
	PercentageScore float64   `json:"percentageScore"`
	AccuracyRate    float64   `json:"accuracyRate"`
	TimeTakenSec    int       `json:"timeTakenSec"`
	CompletedAt     time.Time `json:"completedAt"`
}

// ChatMessage is an append-only message in a competition's chat.
type ChatMessage struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	UserID        string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TicketStatus is the state of a matchmaking queue ticket.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "waiting"
	TicketMatched   TicketStatus = "matched"
	TicketCancelled TicketStatus = "cancelled"
)

// QueueTicket is an ephemeral matchmaking request awaiting pairing into a
// random competition.
type QueueTicket struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	Topic      string       `json:"topic"`
	Difficulty string       `json:"difficulty"`
	Language   string       `json:"language"`
	Status     TicketStatus `json:"status"`
	QueuedAt   time.Time    `json:"queuedAt"`
	MatchedAt  *time.Time   `json:"matchedAt,omitempty"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID         string            `json:"userId"`
	DisplayName    string            `json:"displayName"`
	Status         ParticipantStatus `json:"status"`
	Score          float64           `json:"score"`
	CorrectAnswers int               `json:"correctAnswers"`
	TimeTakenSec   int               `json:"timeTakenSec"`
	Rank           int               `json:"rank"`
}

// Leaderboard captures the ordered scoreboard for a competition.
type Leaderboard struct {
	CompetitionID string             `json:"competitionId"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}
