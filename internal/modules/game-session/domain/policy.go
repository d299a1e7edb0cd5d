package domain

import (
	"fmt"
	"time"
)

// Policy holds the knobs of a round. It is fixed per session at creation.
type Policy struct {
	MaxPlayers        int           `yaml:"max_players"`
	SessionDuration   time.Duration `yaml:"session_duration"`
	MinPlayersToStart int           `yaml:"min_players_to_start"`
	// ResultsDisplayDuration is how long the last finished session is
	// reported as results when no session is open.
	ResultsDisplayDuration time.Duration `yaml:"results_display_duration"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxPlayers:             10,
		SessionDuration:        60 * time.Second,
		MinPlayersToStart:      1,
		ResultsDisplayDuration: 30 * time.Second,
	}
}

func (p Policy) Validate() error {
	if p.MaxPlayers < 1 {
		return fmt.Errorf("invalid MaxPlayers - '%d'", p.MaxPlayers)
	}

	if p.SessionDuration < time.Second {
		return fmt.Errorf("invalid SessionDuration - '%s'", p.SessionDuration)
	}

	if p.MinPlayersToStart < 1 || p.MinPlayersToStart > p.MaxPlayers {
		return fmt.Errorf("invalid MinPlayersToStart - '%d'", p.MinPlayersToStart)
	}

	if p.ResultsDisplayDuration < 0 {
		return fmt.Errorf("invalid ResultsDisplayDuration - '%s'", p.ResultsDisplayDuration)
	}

	return nil
}

// ShouldActivate reports whether a waiting session with the given
// player count may start its clock.
func (p Policy) ShouldActivate(currentPlayers int) bool {
	return currentPlayers >= p.MinPlayersToStart
}
