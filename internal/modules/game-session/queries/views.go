package queries

import (
	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"
)

type PlayerView struct {
	Username          string `json:"username"`
	HasSelectedNumber bool   `json:"hasSelectedNumber"`
}

type WinnerView struct {
	Username     string `json:"username"`
	ChosenNumber *int   `json:"chosen_number"`
}

// Other players' picks stay hidden, only whether they picked is shown.
func playerViews(players []domain.SessionPlayer) []PlayerView {
	return core.Map(players, func(p domain.SessionPlayer) PlayerView {
		return PlayerView{Username: p.Username, HasSelectedNumber: p.HasSelectedNumber()}
	})
}

func winnerViews(winners []domain.SessionPlayer) []WinnerView {
	return core.Map(winners, func(p domain.SessionPlayer) WinnerView {
		return WinnerView{Username: p.Username, ChosenNumber: p.ChosenNumber}
	})
}
