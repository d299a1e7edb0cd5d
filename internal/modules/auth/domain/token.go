package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"time"

	"github.com/google/uuid"
)

const TokenBytes = 32

var ErrAuthRequired = errors.New("missing or invalid access token")

type HashFactory func() hash.Hash

// TokenHasher derives the stored form of an access token. Raw tokens
// are never persisted.
type TokenHasher struct {
	createHash HashFactory
}

func NewTokenHasher(hashFactory HashFactory) *TokenHasher {
	return &TokenHasher{createHash: hashFactory}
}

func (h *TokenHasher) Hash(token string) string {
	hasher := h.createHash()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

type AccessToken struct {
	TokenHash string     `db:"token_hash"`
	UserID    uuid.UUID  `db:"user_id"`
	CreatedAt time.Time  `db:"created_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

// IssueToken creates a new random token for the user. The raw token is
// returned once and only its hash is kept.
func (h *TokenHasher) IssueToken(userID uuid.UUID, now time.Time) (string, AccessToken, error) {
	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", AccessToken{}, err
	}

	token := base64.RawURLEncoding.EncodeToString(raw)

	return token, AccessToken{
		TokenHash: h.Hash(token),
		UserID:    userID,
		CreatedAt: now.UTC(),
	}, nil
}

// TokenSession is an access token joined with its owner.
type TokenSession struct {
	TokenHash string     `db:"token_hash"`
	UserID    uuid.UUID  `db:"user_id"`
	Username  string     `db:"username"`
	RevokedAt *time.Time `db:"revoked_at"`
}

func (s TokenSession) Validate() error {
	if s.RevokedAt != nil {
		return ErrAuthRequired
	}

	return nil
}
