package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/google/uuid"
)

type LeaveSessionCommand struct {
	UserID uuid.UUID
}

func (c LeaveSessionCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	return nil
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func HandleLeaveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	command := LeaveSessionCommand{UserID: core.Session(ctx).UserID}

	if _, err := mediator.Send[LeaveSessionCommand, core.Unit](ctx, command); err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, SuccessResponse{Success: true})
}

type SessionLeaver interface {
	Leave(ctx context.Context, userID uuid.UUID) error
}

type LeaveSessionCommandHandler struct {
	sessions SessionLeaver
}

func NewLeaveSessionCommandHandler(sessions SessionLeaver) *LeaveSessionCommandHandler {
	return &LeaveSessionCommandHandler{sessions}
}

func (h *LeaveSessionCommandHandler) Handle(ctx context.Context, request LeaveSessionCommand) (core.Unit, error) {
	if err := h.sessions.Leave(ctx, request.UserID); err != nil {
		return core.Unit{}, domain.CommandError(err)
	}

	return core.Unit{}, nil
}
