package engine

import (
	"context"
	"errors"

	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/domain"

	"github.com/google/uuid"
)

// CurrentView is what the lobby shows. Exactly one of the open session,
// the results of the last round or the waiting state is populated.
type CurrentView struct {
	Session       *domain.Session
	TimeRemaining int
	Players       []domain.SessionPlayer

	WaitingForPlayers bool

	ShowResults  bool
	Winners      []domain.SessionPlayer
	TotalPlayers int
}

func (e *Engine) CurrentSession(ctx context.Context) (CurrentView, error) {
	open, err := e.store.OpenSession(ctx)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
	case err != nil:
		return CurrentView{}, err
	default:
		session, err := e.finalizeIfDue(ctx, open)
		if err != nil {
			return CurrentView{}, err
		}

		if session.Status.IsOpen() {
			return e.openView(ctx, session)
		}
	}

	return e.resultsView(ctx)
}

func (e *Engine) openView(ctx context.Context, session domain.Session) (CurrentView, error) {
	players, err := e.store.ListParticipants(ctx, session.ID)
	if err != nil {
		return CurrentView{}, err
	}

	return CurrentView{
		Session:           &session,
		TimeRemaining:     session.TimeRemaining(e.clock.Now()),
		Players:           players,
		WaitingForPlayers: session.Status == domain.StatusWaiting,
	}, nil
}

func (e *Engine) resultsView(ctx context.Context) (CurrentView, error) {
	latest, err := e.store.LatestFinishedSession(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return CurrentView{WaitingForPlayers: true}, nil
	}
	if err != nil {
		return CurrentView{}, err
	}

	if latest.EndedAt == nil || e.clock.Since(*latest.EndedAt) > e.policy.ResultsDisplayDuration {
		return CurrentView{WaitingForPlayers: true}, nil
	}

	players, err := e.store.ListParticipants(ctx, latest.ID)
	if err != nil {
		return CurrentView{}, err
	}

	return CurrentView{
		Session:      &latest,
		Players:      players,
		ShowResults:  true,
		Winners:      winners(players),
		TotalPlayers: len(players),
	}, nil
}

// MyView is the caller's latest session seen from their seat.
type MyView struct {
	Session       domain.Session
	Participant   domain.Participant
	Players       []domain.SessionPlayer
	TimeRemaining int
	// Winners is only populated once the session is finished.
	Winners []domain.SessionPlayer
}

func (v MyView) Finished() bool {
	return v.Session.Status == domain.StatusFinished
}

func (e *Engine) MySession(ctx context.Context, userID uuid.UUID) (MyView, error) {
	session, participant, err := e.store.LatestSessionForUser(ctx, userID)
	if err != nil {
		return MyView{}, err
	}

	if session.IsDue(e.clock.Now()) {
		if _, err := e.finalizeIfDue(ctx, session); err != nil {
			return MyView{}, err
		}

		if session, participant, err = e.store.LatestSessionForUser(ctx, userID); err != nil {
			return MyView{}, err
		}
	}

	players, err := e.store.ListParticipants(ctx, session.ID)
	if err != nil {
		return MyView{}, err
	}

	view := MyView{
		Session:       session,
		Participant:   participant,
		Players:       players,
		TimeRemaining: session.TimeRemaining(e.clock.Now()),
	}

	if view.Finished() {
		view.Winners = winners(players)
	}

	return view, nil
}
