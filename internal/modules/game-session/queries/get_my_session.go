package queries

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

type GetMySessionQuery struct {
	UserID uuid.UUID
}

func (q GetMySessionQuery) Validate() error {
	if q.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", q.UserID)
	}

	return nil
}

type GetMySessionResponse struct {
	Session          domain.Session     `json:"session"`
	Participant      domain.Participant `json:"participant"`
	PlayersInSession []PlayerView       `json:"playersInSession"`
	TimeRemaining    int                `json:"timeRemaining"`
	WinningNumber    *int               `json:"winningNumber,omitempty"`
	IsWinner         *bool              `json:"isWinner,omitempty"`
	Winners          []WinnerView       `json:"winners,omitempty"`
}

func HandleGetMySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := GetMySessionQuery{UserID: core.Session(ctx).UserID}

	response, err := mediator.Send[GetMySessionQuery, GetMySessionResponse](ctx, query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type MySessionReader interface {
	MySession(ctx context.Context, userID uuid.UUID) (engine.MyView, error)
}

type GetMySessionQueryHandler struct {
	sessions MySessionReader
}

func NewGetMySessionQueryHandler(sessions MySessionReader) *GetMySessionQueryHandler {
	return &GetMySessionQueryHandler{sessions}
}

func (h *GetMySessionQueryHandler) Handle(ctx context.Context, request GetMySessionQuery) (GetMySessionResponse, error) {
	view, err := h.sessions.MySession(ctx, request.UserID)
	if err != nil {
		return GetMySessionResponse{}, domain.CommandError(err)
	}

	return mySessionResponse(view), nil
}

func mySessionResponse(view engine.MyView) GetMySessionResponse {
	response := GetMySessionResponse{
		Session:          view.Session,
		Participant:      view.Participant,
		PlayersInSession: playerViews(view.Players),
		TimeRemaining:    view.TimeRemaining,
	}

	if view.Finished() {
		isWinner := view.Participant.IsWinner

		response.WinningNumber = view.Session.WinningNumber
		response.IsWinner = &isWinner
		response.Winners = winnerViews(view.Winners)
	}

	return response
}
