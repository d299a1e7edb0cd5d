package auth

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/eskrenkovic/numbers-party/internal/modules/auth/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/core"

	"github.com/eskrenkovic/tql"
	"go.uber.org/zap"
)

const AdminKeyHeader = "X-Admin-Key"

// AuthenticationMiddleware resolves the bearer token into the caller's
// session. Browsers cannot set headers on websocket upgrades, so the
// token is also accepted as the "token" query parameter.
func AuthenticationMiddleware(db *sql.DB, hasher *domain.TokenHasher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				core.WriteUnauthorized(w, r, domain.ErrAuthRequired)
				return
			}

			const q = `
				SELECT
					t.token_hash, t.user_id, u.username, t.revoked_at
				FROM
					auth.access_token t
				JOIN
					auth.user u ON u.id = t.user_id
				WHERE
					t.token_hash = $1;`

			session, err := tql.QueryFirst[domain.TokenSession](r.Context(), db, q, hasher.Hash(token))
			switch {
			case err != nil && errors.Is(err, sql.ErrNoRows):
				core.WriteUnauthorized(w, r, domain.ErrAuthRequired)
				return
			case err != nil:
				core.LogError(r.Context(), "failed to read access token", zap.Error(err))
				core.WriteInternalServerError(w, r, core.ErrorResponse{Error: "internal server error"})
				return
			}

			if err := session.Validate(); err != nil {
				core.WriteUnauthorized(w, r, err)
				return
			}

			ctx := core.WithSession(r.Context(), core.ContextSession{
				UserID:    session.UserID,
				Username:  session.Username,
				TokenHash: session.TokenHash,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}

	return r.URL.Query().Get("token")
}

// AdminKeyMiddleware guards administrative routes. An empty key disables
// them.
func AdminKeyMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(AdminKeyHeader)

			if adminKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
				core.WriteResponse(w, r, http.StatusForbidden, core.ErrorResponse{Error: "forbidden"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
