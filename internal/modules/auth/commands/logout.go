package commands

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type LogoutCommand struct {
	UserID    uuid.UUID
	TokenHash string
}

func (c LogoutCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	if c.TokenHash == "" {
		return fmt.Errorf("invalid TokenHash")
	}

	return nil
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func HandleLogout(w http.ResponseWriter, r *http.Request) {
	session := core.Session(r.Context())

	command := LogoutCommand{
		UserID:    session.UserID,
		TokenHash: session.TokenHash,
	}

	if _, err := mediator.Send[LogoutCommand, core.Unit](r.Context(), command); err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, SuccessResponse{Success: true})
}

type LogoutCommandHandler struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewLogoutCommandHandler(db *sql.DB, clock clockwork.Clock) *LogoutCommandHandler {
	return &LogoutCommandHandler{db: db, clock: clock}
}

// Handle revokes the presented token. The user stays logged in while
// any other token of theirs is still valid.
func (h *LogoutCommandHandler) Handle(ctx context.Context, request LogoutCommand) (core.Unit, error) {
	err := core.Tx(ctx, h.db, func(ctx context.Context, tx *sql.Tx) error {
		const revokeStmt = `
			UPDATE
				auth.access_token
			SET
				revoked_at = $2
			WHERE
				token_hash = $1 AND revoked_at IS NULL;`

		if _, err := tql.Exec(ctx, tx, revokeStmt, request.TokenHash, h.clock.Now().UTC()); err != nil {
			return err
		}

		const updateUserStmt = `
			UPDATE
				auth.user
			SET
				is_logged_in = EXISTS (
					SELECT 1 FROM auth.access_token WHERE user_id = $1 AND revoked_at IS NULL
				)
			WHERE
				id = $1;`

		_, err := tql.Exec(ctx, tx, updateUserStmt, request.UserID)
		return err
	})
	if err != nil {
		return core.Unit{}, core.NewCommandError(http.StatusInternalServerError, err)
	}

	return core.Unit{}, nil
}
