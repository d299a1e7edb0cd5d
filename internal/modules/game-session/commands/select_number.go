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

type SelectNumberCommand struct {
	UserID uuid.UUID `json:"-"`
	Number int       `json:"number"`
}

func (c SelectNumberCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	if err := domain.ValidateNumber(c.Number); err != nil {
		return core.NewCommandError(http.StatusBadRequest, err)
	}

	return nil
}

type SelectNumberResponse struct {
	Message string `json:"message"`
}

func HandleSelectNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	command, err := core.RequestBody[SelectNumberCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, fmt.Errorf("invalid request body"))
		return
	}
	command.UserID = core.Session(ctx).UserID

	response, err := mediator.Send[SelectNumberCommand, SelectNumberResponse](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type NumberSelector interface {
	SelectNumber(ctx context.Context, userID uuid.UUID, number int) (domain.Participant, error)
}

type SelectNumberCommandHandler struct {
	sessions NumberSelector
}

func NewSelectNumberCommandHandler(sessions NumberSelector) *SelectNumberCommandHandler {
	return &SelectNumberCommandHandler{sessions}
}

func (h *SelectNumberCommandHandler) Handle(
	ctx context.Context,
	request SelectNumberCommand,
) (SelectNumberResponse, error) {
	if _, err := h.sessions.SelectNumber(ctx, request.UserID, request.Number); err != nil {
		return SelectNumberResponse{}, domain.CommandError(err)
	}

	return SelectNumberResponse{
		Message: fmt.Sprintf("Number %d selected successfully!", request.Number),
	}, nil
}
