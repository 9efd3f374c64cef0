package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/clientportal/internal/api/middleware"
	"github.com/d9705996/clientportal/internal/auth"
	"github.com/stretchr/testify/assert"
)

const secret = "test-secret-at-least-32-bytes!!!"

func issueToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.IssueAccessToken("user-1", "u@example.com", auth.RolesFor(false), secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/dossiers", http.NoBody)
	w := httptest.NewRecorder()
	middleware.RequireAuth(secret)(ok()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_BrowserRedirectedToLogin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/espace-client/dossier?fid=abc", http.NoBody)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()
	middleware.RequireAuth(secret)(ok()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fespace-client%2Fdossier%3Ffid%3Dabc", w.Header().Get("Location"))
}

func TestRequireAuth_ValidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		assert.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_SessionCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: issueToken(t)})
	w := httptest.NewRecorder()
	middleware.RequireAuth(secret)(ok()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer this.is.garbage")
	w := httptest.NewRecorder()
	middleware.RequireAuth(secret)(ok()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type lookup struct {
	admin bool
	err   error
}

func (l lookup) IsAdmin(context.Context, string) (bool, error) { return l.admin, l.err }

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		lookup lookup
		want   int
	}{
		{"admin", lookup{admin: true}, http.StatusOK},
		{"not admin", lookup{admin: false}, http.StatusForbidden},
		{"lookup error fails closed", lookup{admin: true, err: errors.New("db down")}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := middleware.RequireAuth(secret)(
				middleware.RequireAdmin(tc.lookup, slog.New(slog.DiscardHandler))(ok()),
			)
			req := httptest.NewRequest(http.MethodPost, "/api/admin/create-dossier", http.NoBody)
			req.Header.Set("Authorization", "Bearer "+issueToken(t))
			w := httptest.NewRecorder()
			chain.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequireAdmin_BrowserSentToClientHome(t *testing.T) {
	chain := middleware.RequireAuth(secret)(
		middleware.RequireAdmin(lookup{}, slog.New(slog.DiscardHandler))(ok()),
	)
	req := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
	req.Header.Set("Accept", "text/html")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: issueToken(t)})
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, middleware.ClientHomePath, w.Header().Get("Location"))
}

func TestRequireAdmin_WithoutAuth(t *testing.T) {
	w := httptest.NewRecorder()
	middleware.RequireAdmin(lookup{admin: true}, slog.New(slog.DiscardHandler))(ok()).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/dossiers", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
