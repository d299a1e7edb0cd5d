package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var ErrInvalidUsername = errors.New("username must be 3 to 20 characters of letters, digits, '_' or '-'")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	TotalWins   int       `db:"total_wins" json:"total_wins"`
	TotalLosses int       `db:"total_losses" json:"total_losses"`
	IsLoggedIn  bool      `db:"is_logged_in" json:"is_logged_in"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NormalizeUsername trims the input and checks it against the allowed
// length and alphabet.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)

	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return "", ErrInvalidUsername
	}

	if !usernamePattern.MatchString(username) {
		return "", ErrInvalidUsername
	}

	return username, nil
}
