package core

import (
	"context"

	"github.com/google/uuid"
)

type ContextKey string

const SessionContextKey ContextKey = "session"

// ContextSession is the authenticated caller, put into the
// request context by the authentication middleware.
type ContextSession struct {
	UserID    uuid.UUID
	Username  string
	TokenHash string
}

func WithSession(ctx context.Context, session ContextSession) context.Context {
	return context.WithValue(ctx, SessionContextKey, session)
}

func Session(ctx context.Context) ContextSession {
	rawVal := ctx.Value(SessionContextKey)

	if rawVal == nil {
		return ContextSession{}
	}

	session, ok := rawVal.(ContextSession)
	if !ok {
		return ContextSession{}
	}

	return session
}
