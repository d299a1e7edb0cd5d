package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/engine"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const sessionColumns = `
	id, status, session_date, max_players, current_players,
	session_duration, winning_number, created_at, started_at, ended_at`

const participantColumns = `
	id, session_id, user_id, chosen_number, is_winner, is_starter, joined_at`

var _ engine.Store = (*PostgresStore)(nil)

// PostgresStore keeps sessions in PostgreSQL. The single open session
// is guaranteed by a partial unique index, capacity and finalization by
// row locks taken inside each transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WarmScanCache prepares every row type the store scans into. It must run
// once before the store is used concurrently.
func (s *PostgresStore) WarmScanCache(ctx context.Context) error {
	return errors.Join(
		core.WarmScan[domain.Session](ctx, s.db, `SELECT 0 AS max_players;`),
		core.WarmScan[domain.Participant](ctx, s.db, `SELECT false AS is_winner;`),
		core.WarmScan[domain.SessionPlayer](ctx, s.db, `SELECT false AS is_winner;`),
		core.WarmScan[participantResult](ctx, s.db, `SELECT false AS is_winner;`),
		core.WarmScan[nextDeadline](ctx, s.db, `SELECT CAST(NULL AS timestamptz) AS deadline;`),
	)
}

func (s *PostgresStore) JoinOpenSession(ctx context.Context, req engine.JoinRequest) (engine.JoinOutcome, error) {
	var outcome engine.JoinOutcome

	err := core.Tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		const insertSessionStmt = `
			INSERT INTO game_session (
				id, status, session_date, max_players, current_players,
				session_duration, winning_number, created_at, started_at, ended_at
			)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT DO NOTHING;`
		newSession := req.NewSession
		_, err := tql.Exec(
			ctx,
			tx,
			insertSessionStmt,
			newSession.ID,
			string(newSession.Status),
			newSession.SessionDate,
			newSession.MaxPlayers,
			newSession.CurrentPlayers,
			newSession.SessionDuration,
			newSession.WinningNumber,
			newSession.CreatedAt,
			newSession.StartedAt,
			newSession.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		session, err := lockOpenSession(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}

		created := session.ID == req.NewSession.ID
		if !created {
			before := session
			outcome.Before = &before
		}

		if session.IsDue(req.Now) {
			return engine.ErrOpenSessionDue
		}

		existing, err := getParticipant(ctx, tx, session.ID, req.UserID)
		switch {
		case err == nil:
			outcome.Session = session
			outcome.Participant = existing
			return nil
		case !errors.Is(err, domain.ErrNotAParticipant):
			return err
		}

		if session.IsFull() {
			return domain.ErrSessionFull
		}

		participant := domain.NewParticipant(session.ID, req.UserID, created, req.Now)

		const insertParticipantStmt = `
			INSERT INTO session_participant (
				id, session_id, user_id, chosen_number, is_winner, is_starter, joined_at
			)
			VALUES
				($1, $2, $3, $4, $5, $6, $7);`
		_, err = tql.Exec(
			ctx,
			tx,
			insertParticipantStmt,
			participant.ID,
			participant.SessionID,
			participant.UserID,
			participant.ChosenNumber,
			participant.IsWinner,
			participant.IsStarter,
			participant.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}

		session.CurrentPlayers++

		if session.Status == domain.StatusWaiting && req.Policy.ShouldActivate(session.CurrentPlayers) {
			startedAt := req.Now.UTC()
			session.Status = domain.StatusActive
			session.StartedAt = &startedAt
			outcome.Activated = true
		}

		const updateSessionStmt = `
			UPDATE
				game_session
			SET
				current_players = $2,
				status = $3,
				started_at = $4
			WHERE
				id = $1;`
		_, err = tql.Exec(
			ctx,
			tx,
			updateSessionStmt,
			session.ID,
			session.CurrentPlayers,
			string(session.Status),
			session.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		outcome.Session = session
		outcome.Participant = participant
		outcome.ParticipantCreated = true

		return nil
	})

	return outcome, err
}

func (s *PostgresStore) LeaveOpenSession(ctx context.Context, userID uuid.UUID) (engine.LeaveOutcome, error) {
	var outcome engine.LeaveOutcome

	err := core.Tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		session, err := lockOpenSession(ctx, tx, "FOR UPDATE")
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrNotAParticipant
		}
		if err != nil {
			return err
		}

		const deleteStmt = `
			DELETE FROM
				session_participant
			WHERE
				session_id = $1 AND user_id = $2
			RETURNING` + participantColumns + `;`
		removed, err := tql.QueryFirst[domain.Participant](ctx, tx, deleteStmt, session.ID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotAParticipant
		}
		if err != nil {
			return fmt.Errorf("failed to remove participant: %w", err)
		}

		const updateSessionStmt = `
			UPDATE
				game_session
			SET
				current_players = current_players - 1
			WHERE
				id = $1;`
		if _, err := tql.Exec(ctx, tx, updateSessionStmt, session.ID); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		outcome.Before = session
		session.CurrentPlayers--
		outcome.Session = session
		outcome.Participant = removed

		return nil
	})

	return outcome, err
}

func (s *PostgresStore) SetChosenNumber(
	ctx context.Context,
	userID uuid.UUID,
	number int,
	now time.Time,
) (engine.NumberOutcome, error) {
	var outcome engine.NumberOutcome

	err := core.Tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		// FOR SHARE makes finalization wait for the pick, and the pick
		// wait for finalization.
		session, err := lockOpenSession(ctx, tx, "FOR SHARE")
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrSessionNotActive
		}
		if err != nil {
			return err
		}

		if session.Status != domain.StatusActive || session.IsDue(now) {
			return domain.ErrSessionNotActive
		}

		before, err := getParticipant(ctx, tx, session.ID, userID)
		if err != nil {
			return err
		}

		const updateStmt = `
			UPDATE
				session_participant
			SET
				chosen_number = $2
			WHERE
				id = $1;`
		if _, err := tql.Exec(ctx, tx, updateStmt, before.ID, number); err != nil {
			return fmt.Errorf("failed to set chosen number: %w", err)
		}

		after := before
		after.ChosenNumber = &number

		outcome.Before = before
		outcome.Participant = after

		return nil
	})

	return outcome, err
}

type participantResult struct {
	UserID   uuid.UUID `db:"user_id"`
	IsWinner bool      `db:"is_winner"`
}

func (s *PostgresStore) FinishSession(
	ctx context.Context,
	sessionID uuid.UUID,
	winningNumber int,
	endedAt time.Time,
) (bool, error) {
	var finished bool

	err := core.Tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		const finishStmt = `
			UPDATE
				game_session
			SET
				status = 'finished',
				winning_number = $2,
				ended_at = $3
			WHERE
				id = $1 AND status = 'active';`
		result, err := tql.Exec(ctx, tx, finishStmt, sessionID, winningNumber, endedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to finish session: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if affected == 0 {
			return nil
		}
		finished = true

		const markWinnersStmt = `
			UPDATE
				session_participant
			SET
				is_winner = (chosen_number IS NOT NULL AND chosen_number = $2)
			WHERE
				session_id = $1;`
		if _, err := tql.Exec(ctx, tx, markWinnersStmt, sessionID, winningNumber); err != nil {
			return fmt.Errorf("failed to mark winners: %w", err)
		}

		const resultsQuery = `
			SELECT
				user_id, is_winner
			FROM
				session_participant
			WHERE
				session_id = $1;`
		results, err := tql.Query[participantResult](ctx, tx, resultsQuery, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read participants: %w", err)
		}

		var winners, losers []string
		for _, r := range results {
			if r.IsWinner {
				winners = append(winners, r.UserID.String())
			} else {
				losers = append(losers, r.UserID.String())
			}
		}

		const winsStmt = `
			UPDATE
				auth.user
			SET
				total_wins = total_wins + 1
			WHERE
				id = ANY($1);`
		if len(winners) > 0 {
			if _, err := tql.Exec(ctx, tx, winsStmt, pq.Array(winners)); err != nil {
				return fmt.Errorf("failed to update wins: %w", err)
			}
		}

		const lossesStmt = `
			UPDATE
				auth.user
			SET
				total_losses = total_losses + 1
			WHERE
				id = ANY($1);`
		if len(losers) > 0 {
			if _, err := tql.Exec(ctx, tx, lossesStmt, pq.Array(losers)); err != nil {
				return fmt.Errorf("failed to update losses: %w", err)
			}
		}

		return nil
	})

	return finished, err
}

func (s *PostgresStore) CloseWaitingSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) (bool, error) {
	const stmt = `
		UPDATE
			game_session
		SET
			status = 'finished',
			ended_at = $2
		WHERE
			id = $1 AND status = 'waiting';`
	result, err := tql.Exec(ctx, s.db, stmt, sessionID, endedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to close session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (s *PostgresStore) OpenSession(ctx context.Context) (domain.Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM
			game_session
		WHERE
			status IN ('waiting', 'active')
		LIMIT 1;`

	return querySession(ctx, s.db, query)
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID uuid.UUID) (domain.Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM
			game_session
		WHERE
			id = $1;`

	return querySession(ctx, s.db, query, sessionID)
}

func (s *PostgresStore) LatestFinishedSession(ctx context.Context) (domain.Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM
			game_session
		WHERE
			status = 'finished'
		ORDER BY
			ended_at DESC
		LIMIT 1;`

	return querySession(ctx, s.db, query)
}

func (s *PostgresStore) LatestSessionForUser(
	ctx context.Context,
	userID uuid.UUID,
) (domain.Session, domain.Participant, error) {
	const query = `
		SELECT` + participantColumns + `
		FROM
			session_participant
		WHERE
			user_id = $1
		ORDER BY
			joined_at DESC
		LIMIT 1;`

	participant, err := tql.QueryFirst[domain.Participant](ctx, s.db, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.Participant{}, domain.ErrNotAParticipant
	}
	if err != nil {
		return domain.Session{}, domain.Participant{}, fmt.Errorf("failed to read participant: %w", err)
	}

	session, err := s.GetSession(ctx, participant.SessionID)
	if err != nil {
		return domain.Session{}, domain.Participant{}, err
	}

	return session, participant, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]domain.SessionPlayer, error) {
	const query = `
		SELECT
			p.user_id, u.username, p.chosen_number, p.is_winner, p.is_starter, p.joined_at
		FROM
			session_participant p
		JOIN
			auth.user u ON u.id = p.user_id
		WHERE
			p.session_id = $1
		ORDER BY
			p.joined_at, u.username;`

	players, err := tql.Query[domain.SessionPlayer](ctx, s.db, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	return players, nil
}

func (s *PostgresStore) ParticipantRows(ctx context.Context, sessionID uuid.UUID) ([]domain.Participant, error) {
	const query = `
		SELECT` + participantColumns + `
		FROM
			session_participant
		WHERE
			session_id = $1
		ORDER BY
			joined_at, id;`

	participants, err := tql.Query[domain.Participant](ctx, s.db, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read participant rows: %w", err)
	}

	return participants, nil
}

type nextDeadline struct {
	Deadline *time.Time `db:"deadline"`
}

func (s *PostgresStore) NextDeadline(ctx context.Context) (time.Time, bool, error) {
	const query = `
		SELECT
			min(started_at + make_interval(secs => session_duration)) AS deadline
		FROM
			game_session
		WHERE
			status = 'active';`

	next, err := tql.QueryFirst[nextDeadline](ctx, s.db, query)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read next deadline: %w", err)
	}

	if next.Deadline == nil {
		return time.Time{}, false, nil
	}

	return *next.Deadline, true, nil
}

func (s *PostgresStore) DueSessions(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const query = `
		SELECT
			id
		FROM
			game_session
		WHERE
			status = 'active' AND
			started_at + make_interval(secs => session_duration) <= $1
		ORDER BY
			started_at;`

	ids, err := tql.Query[uuid.UUID](ctx, s.db, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to read due sessions: %w", err)
	}

	return ids, nil
}

func lockOpenSession(ctx context.Context, tx *sql.Tx, lock string) (domain.Session, error) {
	query := `
		SELECT` + sessionColumns + `
		FROM
			game_session
		WHERE
			status IN ('waiting', 'active')
		LIMIT 1
		` + lock + `;`

	return querySession(ctx, tx, query)
}

func getParticipant(ctx context.Context, q tql.Querier, sessionID, userID uuid.UUID) (domain.Participant, error) {
	const query = `
		SELECT` + participantColumns + `
		FROM
			session_participant
		WHERE
			session_id = $1 AND user_id = $2
		FOR UPDATE;`

	participant, err := tql.QueryFirst[domain.Participant](ctx, q, query, sessionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrNotAParticipant
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to read participant: %w", err)
	}

	return participant, nil
}

func querySession(ctx context.Context, q tql.Querier, query string, params ...any) (domain.Session, error) {
	session, err := tql.QueryFirst[domain.Session](ctx, q, query, params...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	return session, nil
}
