package engine

import (
	"context"
	"errors"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"

	"github.com/google/uuid"
)

// ErrOpenSessionDue is returned by JoinOpenSession when the open session
// has passed its deadline but was not finalized yet.
var ErrOpenSessionDue = errors.New("open session is past its deadline")

// Store owns sessions and participants. Every mutating method is a
// single transaction.
type Store interface {
	// JoinOpenSession attaches the user to the single open session,
	// creating it from NewSession when none exists. An existing
	// participant is returned unchanged.
	JoinOpenSession(ctx context.Context, req JoinRequest) (JoinOutcome, error)

	// LeaveOpenSession removes the user from the open session.
	LeaveOpenSession(ctx context.Context, userID uuid.UUID) (LeaveOutcome, error)

	// SetChosenNumber overwrites the user's pick in the active session
	// as long as now is before its deadline.
	SetChosenNumber(ctx context.Context, userID uuid.UUID, number int, now time.Time) (NumberOutcome, error)

	// FinishSession moves an active session to finished, marks the
	// winners and updates user totals. It reports false, without
	// changing anything, when the session is not active.
	FinishSession(ctx context.Context, sessionID uuid.UUID, winningNumber int, endedAt time.Time) (bool, error)

	// CloseWaitingSession moves a waiting session to finished without a
	// draw. It reports false when the session is not waiting.
	CloseWaitingSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) (bool, error)

	// OpenSession returns domain.ErrSessionNotFound when no session is
	// waiting or active.
	OpenSession(ctx context.Context) (domain.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	LatestFinishedSession(ctx context.Context) (domain.Session, error)

	// LatestSessionForUser returns the most recently joined session of
	// the user and their participant row, or domain.ErrNotAParticipant.
	LatestSessionForUser(ctx context.Context, userID uuid.UUID) (domain.Session, domain.Participant, error)

	// ListParticipants returns the players of a session in join order.
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]domain.SessionPlayer, error)

	// ParticipantRows returns the raw participant rows of a session in
	// join order.
	ParticipantRows(ctx context.Context, sessionID uuid.UUID) ([]domain.Participant, error)

	// NextDeadline is the earliest deadline among active sessions.
	NextDeadline(ctx context.Context) (time.Time, bool, error)

	// DueSessions lists active sessions whose deadline is at or before now.
	DueSessions(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type JoinRequest struct {
	UserID uuid.UUID
	// NewSession is inserted only when no session is open.
	NewSession domain.Session
	Policy     domain.Policy
	Now        time.Time
}

type JoinOutcome struct {
	// Before is the open session prior to the join. It is nil when the
	// session was created by this join.
	Before             *domain.Session
	Session            domain.Session
	Participant        domain.Participant
	ParticipantCreated bool
	Activated          bool
}

type LeaveOutcome struct {
	Before      domain.Session
	Session     domain.Session
	Participant domain.Participant
}

type NumberOutcome struct {
	Before      domain.Participant
	Participant domain.Participant
}
