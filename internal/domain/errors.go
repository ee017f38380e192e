package domain

import "errors"

var (
	// ErrCompetitionNotFound is returned when no competition matches an id or code.
	ErrCompetitionNotFound = errors.New("competition not found")
	// ErrParticipantNotFound is returned when a user acts on a competition they never joined.
	ErrParticipantNotFound = errors.New("participant not found in competition")
	// ErrAlreadyStarted rejects joins against a competition that left the waiting state.
	ErrAlreadyStarted = errors.New("competition already started")
	// ErrNotJoinable rejects joins against a full or cancelled competition.
	ErrNotJoinable = errors.New("competition cannot be joined")
	// ErrInvalidTransition indicates a backward or repeated status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotCreator rejects lifecycle actions from non-creators.
	ErrNotCreator = errors.New("only the creator may perform this action")
	// ErrTooFewParticipants rejects starting a private competition alone.
	ErrTooFewParticipants = errors.New("not enough participants to start")
	// ErrGenerationFailed wraps failures from the question generator.
	ErrGenerationFailed = errors.New("question generation failed")
	// ErrQuestionNotFound indicates a submitted question id is not part of the set.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrTicketNotFound is returned when a queue ticket is missing.
	ErrTicketNotFound = errors.New("queue ticket not found")
	// ErrResultNotFound is returned when a result snapshot is missing.
	ErrResultNotFound = errors.New("result not found")
	// ErrSessionExpired is the coarse fallback for unexpected reconciliation
	// failures; callers route it to re-authentication.
	ErrSessionExpired = errors.New("session expired")
)
