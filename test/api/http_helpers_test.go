package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/eskrenkovic/numbers-party/internal/modules/auth/commands"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

func endpoint(name string) string {
	return fmt.Sprintf("%s/functions/v1/%s", fixture.baseURL, name)
}

// sendRequest returns the status code and decodes the body into TResp
// when one is present.
func sendRequest[TResp any](
	t *testing.T,
	method string,
	url string,
	body any,
	opts ...requestOption,
) (int, TResp) {
	t.Helper()

	var resp TResp

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for _, opt := range opts {
		opt(httpReq)
	}

	httpResp, err := fixture.client.Do(httpReq)
	require.NoError(t, err)
	defer func() {
		_ = httpResp.Body.Close()
	}()

	responsePayload, err := io.ReadAll(httpResp.Body)
	require.NoError(t, err)

	if len(responsePayload) > 0 {
		require.NoError(t, json.Unmarshal(responsePayload, &resp), string(responsePayload))
	}

	return httpResp.StatusCode, resp
}

func randomUsername() string {
	return "u_" + uuid.NewString()[:12]
}

func login(t *testing.T) (string, commands.LoginResponse) {
	t.Helper()
	return loginAs(t, randomUsername())
}

func loginAs(t *testing.T, username string) (string, commands.LoginResponse) {
	t.Helper()

	status, resp := sendRequest[commands.LoginResponse](
		t,
		http.MethodPost,
		endpoint("auth-login"),
		commands.LoginCommand{Username: username},
	)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.Token)

	return resp.Token, resp
}

// resetGame ends whatever session is open so that every test starts from
// an empty lobby.
func resetGame(t *testing.T) {
	t.Helper()

	status, _ := sendRequest[map[string]any](
		t,
		http.MethodPost,
		endpoint("game-reset-session"),
		nil,
		withHeader("X-Admin-Key", testAdminKey),
	)
	require.Contains(t, []int{http.StatusOK, http.StatusNotFound}, status)
}
