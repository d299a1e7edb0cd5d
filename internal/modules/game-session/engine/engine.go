package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/notify"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// joinAttempts bounds how many times a join finalizes an overdue
// session before giving up.
const joinAttempts = 3

// Waker is notified when a session starts its clock.
type Waker interface {
	Wake()
}

type Option func(*Engine)

func WithDrawer(draw domain.Drawer) Option {
	return func(e *Engine) {
		e.draw = draw
	}
}

func WithWaker(waker Waker) Option {
	return func(e *Engine) {
		e.waker = waker
	}
}

// Engine owns the session lifecycle: join, number selection, leave and
// the one time finalization of a round.
type Engine struct {
	store     Store
	publisher notify.Publisher
	clock     clockwork.Clock
	policy    domain.Policy
	draw      domain.Drawer
	logger    *zap.Logger

	mu    sync.RWMutex
	waker Waker
}

func New(
	store Store,
	publisher notify.Publisher,
	clock clockwork.Clock,
	policy domain.Policy,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:     store,
		publisher: publisher,
		clock:     clock,
		policy:    policy,
		draw:      domain.UniformDrawer,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetWaker replaces the waker. The scheduler is built on top of the
// engine, so it is attached after construction.
func (e *Engine) SetWaker(waker Waker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waker = waker
}

func (e *Engine) Policy() domain.Policy {
	return e.policy
}

type JoinResult struct {
	Session     domain.Session
	Participant domain.Participant
	// Created is true when this call added the participant.
	Created bool
}

func (e *Engine) Join(ctx context.Context, userID uuid.UUID) (JoinResult, error) {
	for attempt := 1; ; attempt++ {
		now := e.clock.Now()

		outcome, err := e.store.JoinOpenSession(ctx, JoinRequest{
			UserID:     userID,
			NewSession: domain.NewSession(e.policy, now),
			Policy:     e.policy,
			Now:        now,
		})
		if errors.Is(err, ErrOpenSessionDue) && attempt < joinAttempts {
			if err := e.finalizeOpen(ctx); err != nil {
				return JoinResult{}, err
			}
			continue
		}
		if err != nil {
			return JoinResult{}, err
		}

		if outcome.ParticipantCreated {
			e.publishJoin(ctx, outcome)
		}

		if outcome.Activated {
			e.logger.Info(
				"session activated",
				zap.String("session_id", outcome.Session.ID.String()),
				zap.Int("current_players", outcome.Session.CurrentPlayers),
			)
			e.wake()
		}

		return JoinResult{
			Session:     outcome.Session,
			Participant: outcome.Participant,
			Created:     outcome.ParticipantCreated,
		}, nil
	}
}

func (e *Engine) SelectNumber(ctx context.Context, userID uuid.UUID, number int) (domain.Participant, error) {
	if err := domain.ValidateNumber(number); err != nil {
		return domain.Participant{}, err
	}

	outcome, err := e.store.SetChosenNumber(ctx, userID, number, e.clock.Now())
	if err != nil {
		return domain.Participant{}, err
	}

	e.publish(ctx, notify.TableParticipants, notify.ChangeUpdate, outcome.Participant, outcome.Before)

	return outcome.Participant, nil
}

// Leave removes the user from the open session. The session keeps
// running until its deadline even when nobody is left.
func (e *Engine) Leave(ctx context.Context, userID uuid.UUID) error {
	outcome, err := e.store.LeaveOpenSession(ctx, userID)
	if err != nil {
		return err
	}

	e.publish(ctx, notify.TableParticipants, notify.ChangeDelete, nil, outcome.Participant)
	e.publish(ctx, notify.TableSessions, notify.ChangeUpdate, outcome.Session, outcome.Before)

	return nil
}

type FinalizeResult struct {
	Session domain.Session
	Players []domain.SessionPlayer
	Winners []domain.SessionPlayer
}

// Finalize draws the winning number of an active session and finishes
// it. Calling it again, from any instance, returns the stored outcome.
func (e *Engine) Finalize(ctx context.Context, sessionID uuid.UUID) (FinalizeResult, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}

	switch session.Status {
	case domain.StatusFinished:
		return e.result(ctx, sessionID)
	case domain.StatusWaiting:
		return FinalizeResult{}, domain.ErrSessionNotActive
	}

	winningNumber := e.draw()
	endedAt := e.clock.Now()

	finished, err := e.store.FinishSession(ctx, sessionID, winningNumber, endedAt)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("failed to finish session %s: %w", sessionID, err)
	}

	if !finished {
		// Someone else got there first.
		session, err = e.store.GetSession(ctx, sessionID)
		if err != nil {
			return FinalizeResult{}, err
		}

		if session.Status != domain.StatusFinished {
			return FinalizeResult{}, domain.ErrSessionNotActive
		}

		return e.result(ctx, sessionID)
	}

	before := session
	result, err := e.result(ctx, sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}

	e.logger.Info(
		"session finished",
		zap.String("session_id", sessionID.String()),
		zap.Int("winning_number", winningNumber),
		zap.Int("players", len(result.Players)),
		zap.Int("winners", len(result.Winners)),
	)

	e.publish(ctx, notify.TableSessions, notify.ChangeUpdate, result.Session, before)
	e.publishParticipantRows(ctx, sessionID)

	return result, nil
}

// Reset ends the open session immediately. An active session is
// finalized, a waiting one is closed without a draw.
func (e *Engine) Reset(ctx context.Context) error {
	session, err := e.store.OpenSession(ctx)
	if err != nil {
		return err
	}

	if session.Status == domain.StatusActive {
		_, err := e.Finalize(ctx, session.ID)
		return err
	}

	closed, err := e.store.CloseWaitingSession(ctx, session.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", session.ID, err)
	}

	if !closed {
		// It was activated in the meantime.
		return e.Reset(ctx)
	}

	after, err := e.store.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}

	e.logger.Info("waiting session closed", zap.String("session_id", session.ID.String()))
	e.publish(ctx, notify.TableSessions, notify.ChangeUpdate, after, session)

	return nil
}

// FinalizeDue finalizes every session whose deadline has passed and
// reports how many were processed.
func (e *Engine) FinalizeDue(ctx context.Context) (int, error) {
	due, err := e.store.DueSessions(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to read due sessions: %w", err)
	}

	var errs []error
	for _, id := range due {
		if _, err := e.Finalize(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}

	return len(due), errors.Join(errs...)
}

// NextDeadline is the earliest deadline of an active session.
func (e *Engine) NextDeadline(ctx context.Context) (time.Time, bool, error) {
	return e.store.NextDeadline(ctx)
}

func (e *Engine) finalizeOpen(ctx context.Context) error {
	session, err := e.store.OpenSession(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !session.IsDue(e.clock.Now()) {
		return nil
	}

	_, err = e.Finalize(ctx, session.ID)
	return err
}

// finalizeIfDue returns the session as stored after a lazy finalization,
// or unchanged when it is not due.
func (e *Engine) finalizeIfDue(ctx context.Context, session domain.Session) (domain.Session, error) {
	if !session.IsDue(e.clock.Now()) {
		return session, nil
	}

	result, err := e.Finalize(ctx, session.ID)
	if err != nil {
		return domain.Session{}, err
	}

	return result.Session, nil
}

func (e *Engine) result(ctx context.Context, sessionID uuid.UUID) (FinalizeResult, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}

	players, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}

	return FinalizeResult{
		Session: session,
		Players: players,
		Winners: winners(players),
	}, nil
}

func winners(players []domain.SessionPlayer) []domain.SessionPlayer {
	return core.Filter(players, func(p domain.SessionPlayer) bool {
		return p.IsWinner
	})
}

func (e *Engine) publishJoin(ctx context.Context, outcome JoinOutcome) {
	if outcome.Before == nil {
		e.publish(ctx, notify.TableSessions, notify.ChangeInsert, outcome.Session, nil)
	} else {
		e.publish(ctx, notify.TableSessions, notify.ChangeUpdate, outcome.Session, *outcome.Before)
	}

	e.publish(ctx, notify.TableParticipants, notify.ChangeInsert, outcome.Participant, nil)
}

// publishParticipantRows emits one participant update per row so that
// observers see the winner flags in the same shape as the join events.
func (e *Engine) publishParticipantRows(ctx context.Context, sessionID uuid.UUID) {
	rows, err := e.store.ParticipantRows(ctx, sessionID)
	if err != nil {
		e.logger.Error(
			"failed to read participant rows",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return
	}

	for _, p := range rows {
		e.publish(ctx, notify.TableParticipants, notify.ChangeUpdate, p, nil)
	}
}

// publish is best effort. The state is already committed and observers
// recover by re-fetching.
func (e *Engine) publish(ctx context.Context, table notify.Table, changeType notify.ChangeType, newRow, oldRow any) {
	event, err := notify.NewEvent(table, changeType, newRow, oldRow, e.clock.Now())
	if err != nil {
		e.logger.Error("failed to build change event", zap.Error(err))
		return
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error(
			"failed to publish change event",
			zap.String("table", string(table)),
			zap.String("type", string(changeType)),
			zap.Error(err),
		)
	}
}

func (e *Engine) wake() {
	e.mu.RLock()
	waker := e.waker
	e.mu.RUnlock()

	if waker != nil {
		waker.Wake()
	}
}
