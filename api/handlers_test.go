package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticTokens accepts exactly one token and mints nothing.
type staticTokens struct {
	valid  string
	userID int64
}

func (s *staticTokens) Mint(int64) (string, error) { return "", errors.New("not implemented") }

func (s *staticTokens) Verify(tokenString string) (int64, error) {
	if tokenString != s.valid {
		return 0, errors.New("invalid token")
	}
	return s.userID, nil
}

func newTestHandler() *Handler {
	return NewHandler(nil, nil, nil, &staticTokens{valid: "good-token", userID: 42})
}

func do(h *Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.ServeHTTP(rec, req)
	return rec
}

func TestEndpointsRequireAuthorization(t *testing.T) {
	h := newTestHandler()

	for _, path := range []string{"/game/search", "/game/7"} {
		rec := do(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := do(h, http.MethodPost, "/moves", "bad-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodsAreEnforced(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/token"},
		{http.MethodPost, "/game/search"},
		{http.MethodGet, "/moves"},
	}
	for _, tt := range tests {
		rec := do(h, tt.method, tt.path, "good-token")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestPreflightRequestsShortCircuit(t *testing.T) {
	h := newTestHandler()

	rec := do(h, http.MethodOptions, "/game/search", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTokenRequiresUsername(t *testing.T) {
	h := newTestHandler()

	rec := do(h, http.MethodGet, "/token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGameDetailsRejectsMalformedID(t *testing.T) {
	h := newTestHandler()

	for _, path := range []string{"/game/abc", "/game/0", "/game/-3"} {
		rec := do(h, http.MethodGet, path, "good-token")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestMoveRequiresValidBody(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/moves", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
