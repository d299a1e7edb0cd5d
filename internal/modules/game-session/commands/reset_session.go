package commands

import (
	"context"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"

	"github.com/eskrenkovic/mediator-go"
)

// ResetSessionCommand ends the open session right away. Only reachable
// with the admin key.
type ResetSessionCommand struct{}

func HandleResetSession(w http.ResponseWriter, r *http.Request) {
	if _, err := mediator.Send[ResetSessionCommand, core.Unit](r.Context(), ResetSessionCommand{}); err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, SuccessResponse{Success: true})
}

type SessionResetter interface {
	Reset(ctx context.Context) error
}

type ResetSessionCommandHandler struct {
	sessions SessionResetter
}

func NewResetSessionCommandHandler(sessions SessionResetter) *ResetSessionCommandHandler {
	return &ResetSessionCommandHandler{sessions}
}

func (h *ResetSessionCommandHandler) Handle(ctx context.Context, _ ResetSessionCommand) (core.Unit, error) {
	if err := h.sessions.Reset(ctx); err != nil {
		return core.Unit{}, domain.CommandError(err)
	}

	return core.Unit{}, nil
}
