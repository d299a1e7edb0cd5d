package queries

import (
	"context"
	"net/http"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/engine"

	"github.com/eskrenkovic/mediator-go"
)

type GetCurrentSessionQuery struct{}

// GetCurrentSessionResponse takes one of three shapes: an open session
// with its countdown, the results of the round that just ended, or
// only waitingForPlayers.
type GetCurrentSessionResponse struct {
	Session           *domain.Session `json:"session,omitempty"`
	TimeRemaining     *int            `json:"timeRemaining,omitempty"`
	PlayersList       *[]PlayerView   `json:"playersList,omitempty"`
	WaitingForPlayers bool            `json:"waitingForPlayers,omitempty"`
	ShowResults       bool            `json:"showResults,omitempty"`
	Winners           *[]WinnerView   `json:"winners,omitempty"`
	TotalPlayers      *int            `json:"totalPlayers,omitempty"`
}

func HandleGetCurrentSession(w http.ResponseWriter, r *http.Request) {
	response, err := mediator.Send[GetCurrentSessionQuery, GetCurrentSessionResponse](
		r.Context(),
		GetCurrentSessionQuery{},
	)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type CurrentSessionReader interface {
	CurrentSession(ctx context.Context) (engine.CurrentView, error)
}

type GetCurrentSessionQueryHandler struct {
	sessions CurrentSessionReader
}

func NewGetCurrentSessionQueryHandler(sessions CurrentSessionReader) *GetCurrentSessionQueryHandler {
	return &GetCurrentSessionQueryHandler{sessions}
}

func (h *GetCurrentSessionQueryHandler) Handle(
	ctx context.Context,
	_ GetCurrentSessionQuery,
) (GetCurrentSessionResponse, error) {
	view, err := h.sessions.CurrentSession(ctx)
	if err != nil {
		return GetCurrentSessionResponse{}, domain.CommandError(err)
	}

	return currentSessionResponse(view), nil
}

func currentSessionResponse(view engine.CurrentView) GetCurrentSessionResponse {
	switch {
	case view.ShowResults:
		winners := winnerViews(view.Winners)
		totalPlayers := view.TotalPlayers

		return GetCurrentSessionResponse{
			Session:      view.Session,
			ShowResults:  true,
			Winners:      &winners,
			TotalPlayers: &totalPlayers,
		}

	case view.Session != nil:
		players := playerViews(view.Players)
		timeRemaining := view.TimeRemaining

		return GetCurrentSessionResponse{
			Session:           view.Session,
			TimeRemaining:     &timeRemaining,
			PlayersList:       &players,
			WaitingForPlayers: view.WaitingForPlayers,
		}

	default:
		return GetCurrentSessionResponse{WaitingForPlayers: true}
	}
}
