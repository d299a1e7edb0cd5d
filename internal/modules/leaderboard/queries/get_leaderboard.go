package queries

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/leaderboard/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/jonboulle/clockwork"
)

type GetLeaderboardQuery struct {
	Filter domain.Filter
	Limit  int
}

func (q GetLeaderboardQuery) Validate() error {
	if _, err := domain.ParseFilter(string(q.Filter)); err != nil {
		return err
	}

	if q.Limit < 1 || q.Limit > domain.MaxLimit {
		return domain.ErrInvalidLimit
	}

	return nil
}

type GetLeaderboardResponse struct {
	Leaderboard []domain.Entry `json:"leaderboard"`
}

func HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := domain.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	limit, err := domain.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	query := GetLeaderboardQuery{Filter: filter, Limit: limit}

	response, err := mediator.Send[GetLeaderboardQuery, GetLeaderboardResponse](ctx, query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

// WarmScanCache prepares the leaderboard row type for concurrent scans.
func WarmScanCache(ctx context.Context, db *sql.DB) error {
	return core.WarmScan[domain.Entry](ctx, db, `SELECT 0 AS total_wins;`)
}

type GetLeaderboardQueryHandler struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewGetLeaderboardQueryHandler(db *sql.DB, clock clockwork.Clock) *GetLeaderboardQueryHandler {
	return &GetLeaderboardQueryHandler{db: db, clock: clock}
}

func (h *GetLeaderboardQueryHandler) Handle(
	ctx context.Context,
	request GetLeaderboardQuery,
) (GetLeaderboardResponse, error) {
	var (
		entries []domain.Entry
		err     error
	)

	if window, ok := request.Filter.Window(); ok {
		entries, err = h.windowed(ctx, h.clock.Now().Add(-window), request.Limit)
	} else {
		entries, err = h.allTime(ctx, request.Limit)
	}

	if err != nil {
		return GetLeaderboardResponse{}, core.NewCommandError(http.StatusInternalServerError, err)
	}

	domain.Rank(entries)

	return GetLeaderboardResponse{Leaderboard: entries}, nil
}

func (h *GetLeaderboardQueryHandler) allTime(ctx context.Context, limit int) ([]domain.Entry, error) {
	const q = `
		SELECT
			id, username, total_wins, total_losses
		FROM
			auth.user
		ORDER BY
			total_wins DESC, username COLLATE "C" ASC
		LIMIT $1;`

	entries, err := tql.Query[domain.Entry](ctx, h.db, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	return entries, nil
}

// windowed counts results of rounds that ended after since. Closed
// rounds without a draw do not count.
func (h *GetLeaderboardQueryHandler) windowed(ctx context.Context, since time.Time, limit int) ([]domain.Entry, error) {
	const q = `
		SELECT
			u.id,
			u.username,
			count(*) FILTER (WHERE p.is_winner) AS total_wins,
			count(*) FILTER (WHERE NOT p.is_winner) AS total_losses
		FROM
			session_participant p
		JOIN
			game_session s ON s.id = p.session_id
		JOIN
			auth.user u ON u.id = p.user_id
		WHERE
			s.status = 'finished' AND
			s.winning_number IS NOT NULL AND
			s.ended_at >= $1
		GROUP BY
			u.id, u.username
		ORDER BY
			total_wins DESC, u.username COLLATE "C" ASC
		LIMIT $2;`

	entries, err := tql.Query[domain.Entry](ctx, h.db, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	return entries, nil
}
