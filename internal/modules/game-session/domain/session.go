package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

func (s Status) IsOpen() bool {
	return s == StatusWaiting || s == StatusActive
}

type Session struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Status          Status     `db:"status" json:"status"`
	SessionDate     time.Time  `db:"session_date" json:"session_date"`
	MaxPlayers      int        `db:"max_players" json:"max_players"`
	CurrentPlayers  int        `db:"current_players" json:"current_players"`
	SessionDuration int        `db:"session_duration" json:"session_duration"`
	WinningNumber   *int       `db:"winning_number" json:"winning_number"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at"`
	EndedAt         *time.Time `db:"ended_at" json:"ended_at"`
}

func NewSession(policy Policy, now time.Time) Session {
	now = now.UTC()

	return Session{
		ID:              uuid.New(),
		Status:          StatusWaiting,
		SessionDate:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		MaxPlayers:      policy.MaxPlayers,
		SessionDuration: int(policy.SessionDuration / time.Second),
		CreatedAt:       now,
	}
}

func (s Session) Duration() time.Duration {
	return time.Duration(s.SessionDuration) * time.Second
}

// Deadline is started_at + session_duration. Sessions that never
// started have no deadline.
func (s Session) Deadline() (time.Time, bool) {
	if s.StartedAt == nil {
		return time.Time{}, false
	}

	return s.StartedAt.Add(s.Duration()), true
}

// IsDue reports whether an active session has reached its deadline.
func (s Session) IsDue(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}

	deadline, ok := s.Deadline()
	return ok && !now.Before(deadline)
}

// TimeRemaining is max(0, session_duration - (now - started_at)) rounded
// up to whole seconds, so it only reaches zero once the session is due.
// Sessions that have not started report their full duration.
func (s Session) TimeRemaining(now time.Time) int {
	if s.Status == StatusFinished {
		return 0
	}

	deadline, ok := s.Deadline()
	if !ok {
		return s.SessionDuration
	}

	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}

	return int((remaining + time.Second - 1) / time.Second)
}

func (s Session) IsFull() bool {
	return s.CurrentPlayers >= s.MaxPlayers
}
