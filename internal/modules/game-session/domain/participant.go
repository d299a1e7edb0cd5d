package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinNumber = 1
	MaxNumber = 9
)

type Participant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SessionID    uuid.UUID `db:"session_id" json:"session_id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	ChosenNumber *int      `db:"chosen_number" json:"chosen_number"`
	IsWinner     bool      `db:"is_winner" json:"is_winner"`
	IsStarter    bool      `db:"is_starter" json:"is_starter"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
}

func NewParticipant(sessionID, userID uuid.UUID, isStarter bool, now time.Time) Participant {
	return Participant{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		IsStarter: isStarter,
		JoinedAt:  now.UTC(),
	}
}

// Wins reports whether the participant's pick matches the drawn number.
// A participant who never picked cannot win.
func (p Participant) Wins(winningNumber int) bool {
	return p.ChosenNumber != nil && *p.ChosenNumber == winningNumber
}

// SessionPlayer is a participant row joined with its username.
type SessionPlayer struct {
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	Username     string    `db:"username" json:"username"`
	ChosenNumber *int      `db:"chosen_number" json:"chosen_number"`
	IsWinner     bool      `db:"is_winner" json:"is_winner"`
	IsStarter    bool      `db:"is_starter" json:"is_starter"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
}

func (p SessionPlayer) HasSelectedNumber() bool {
	return p.ChosenNumber != nil
}

func ValidateNumber(n int) error {
	if n < MinNumber || n > MaxNumber {
		return ErrInvalidNumber
	}

	return nil
}
