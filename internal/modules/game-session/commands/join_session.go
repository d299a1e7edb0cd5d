package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/engine"

	"github.com/eskrenkovic/mediator-go"
	"github.com/google/uuid"
)

type JoinSessionCommand struct {
	UserID uuid.UUID
}

func (c JoinSessionCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	return nil
}

type JoinSessionResponse struct {
	Success     bool               `json:"success"`
	Session     domain.Session     `json:"session"`
	Participant domain.Participant `json:"participant"`
}

func HandleJoinSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	command := JoinSessionCommand{UserID: core.Session(ctx).UserID}

	response, err := mediator.Send[JoinSessionCommand, JoinSessionResponse](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type SessionJoiner interface {
	Join(ctx context.Context, userID uuid.UUID) (engine.JoinResult, error)
}

type JoinSessionCommandHandler struct {
	sessions SessionJoiner
}

func NewJoinSessionCommandHandler(sessions SessionJoiner) *JoinSessionCommandHandler {
	return &JoinSessionCommandHandler{sessions}
}

func (h *JoinSessionCommandHandler) Handle(
	ctx context.Context,
	request JoinSessionCommand,
) (JoinSessionResponse, error) {
	result, err := h.sessions.Join(ctx, request.UserID)
	if err != nil {
		return JoinSessionResponse{}, domain.CommandError(err)
	}

	return JoinSessionResponse{
		Success:     true,
		Session:     result.Session,
		Participant: result.Participant,
	}, nil
}
