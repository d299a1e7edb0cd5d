package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_BearerToken_Reads_Authorization_Header(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	require.Equal(t, "abc123", bearerToken(r))
}

func Test_BearerToken_Accepts_Lowercase_Scheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer abc123")

	require.Equal(t, "abc123", bearerToken(r))
}

func Test_BearerToken_Falls_Back_To_Query_Parameter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/realtime?token=from-query", nil)

	require.Equal(t, "from-query", bearerToken(r))
}

func Test_BearerToken_Returns_Empty_When_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	require.Empty(t, bearerToken(r))
}

func adminRequest(t *testing.T, adminKey, provided string) *httptest.ResponseRecorder {
	t.Helper()

	called := false
	handler := AdminKeyMiddleware(adminKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/game-reset-session", nil)
	if provided != "" {
		r.Header.Set(AdminKeyHeader, provided)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, w.Code == http.StatusOK, called)

	return w
}

func Test_AdminKeyMiddleware_Allows_Matching_Key(t *testing.T) {
	w := adminRequest(t, "secret", "secret")

	require.Equal(t, http.StatusOK, w.Code)
}

func Test_AdminKeyMiddleware_Rejects_Wrong_Key(t *testing.T) {
	w := adminRequest(t, "secret", "guess")

	require.Equal(t, http.StatusForbidden, w.Code)
	require.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
}

func Test_AdminKeyMiddleware_Rejects_Missing_Key(t *testing.T) {
	w := adminRequest(t, "secret", "")

	require.Equal(t, http.StatusForbidden, w.Code)
}

func Test_AdminKeyMiddleware_Rejects_Everything_When_Key_Not_Configured(t *testing.T) {
	w := adminRequest(t, "", "")

	require.Equal(t, http.StatusForbidden, w.Code)
}
