package commands

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/auth/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/core"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type LoginCommand struct {
	Username string `json:"username"`
}

func (c LoginCommand) Validate() error {
	if _, err := domain.NormalizeUsername(c.Username); err != nil {
		return core.NewCommandError(http.StatusBadRequest, err)
	}

	return nil
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func HandleLogin(w http.ResponseWriter, r *http.Request) {
	command, err := core.RequestBody[LoginCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, fmt.Errorf("invalid request body"))
		return
	}

	response, err := mediator.Send[LoginCommand, LoginResponse](r.Context(), command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type LoginCommandHandler struct {
	db     *sql.DB
	hasher *domain.TokenHasher
	clock  clockwork.Clock
}

func NewLoginCommandHandler(db *sql.DB, hasher *domain.TokenHasher, clock clockwork.Clock) *LoginCommandHandler {
	return &LoginCommandHandler{db: db, hasher: hasher, clock: clock}
}

// Handle signs the user in, creating the account on first login.
func (h *LoginCommandHandler) Handle(ctx context.Context, request LoginCommand) (LoginResponse, error) {
	username, err := domain.NormalizeUsername(request.Username)
	if err != nil {
		return LoginResponse{}, core.NewCommandError(http.StatusBadRequest, err)
	}

	now := h.clock.Now().UTC()

	var response LoginResponse
	err = core.Tx(ctx, h.db, func(ctx context.Context, tx *sql.Tx) error {
		const upsertUserStmt = `
			INSERT INTO
				auth.user (id, username, is_logged_in, created_at)
			VALUES
				($1, $2, true, $3)
			ON CONFLICT (username) DO UPDATE SET
				is_logged_in = true
			RETURNING
				id, username, total_wins, total_losses, is_logged_in, created_at;`

		user, err := tql.QueryFirst[domain.User](ctx, tx, upsertUserStmt, uuid.New(), username, now)
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}

		token, accessToken, err := h.hasher.IssueToken(user.ID, now)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		const insertTokenStmt = `
			INSERT INTO
				auth.access_token (token_hash, user_id, created_at, revoked_at)
			VALUES
				($1, $2, $3, $4);`

		_, err = tql.Exec(
			ctx,
			tx,
			insertTokenStmt,
			accessToken.TokenHash,
			accessToken.UserID,
			accessToken.CreatedAt,
			accessToken.RevokedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}

		response = LoginResponse{Token: token, User: user}
		return nil
	})
	if err != nil {
		return LoginResponse{}, core.NewCommandError(http.StatusInternalServerError, err)
	}

	return response, nil
}
