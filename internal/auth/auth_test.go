package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/clientportal/internal/auth"
	"github.com/d9705996/clientportal/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccounts_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	accounts := auth.NewAccounts(dbtest.Open(t))

	u, err := accounts.Register(ctx, auth.Registration{Email: "  Client@Example.COM ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "client@example.com", u.Email)
	assert.False(t, u.IsAdmin)
	assert.Equal(t, "fr", u.Lang)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := accounts.Authenticate(ctx, "CLIENT@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = accounts.Authenticate(ctx, "client@example.com", "wrong password")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "nobody@example.com", "correct horse")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = accounts.Register(ctx, auth.Registration{Email: "client@example.com", Password: "another one"})
	require.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestAccounts_RegisterValidation(t *testing.T) {
	accounts := auth.NewAccounts(dbtest.Open(t))
	tests := []struct {
		name  string
		reg   auth.Registration
		field string
	}{
		{"bad email", auth.Registration{Email: "not-an-email", Password: "longenough"}, "email"},
		{"short password", auth.Registration{Email: "a@example.com", Password: "short"}, "password"},
		{"missing password", auth.Registration{Email: "a@example.com"}, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accounts.Register(context.Background(), tc.reg)
			var verr *auth.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestAccounts_SetAdmin(t *testing.T) {
	ctx := context.Background()
	accounts := auth.NewAccounts(dbtest.Open(t))
	u, err := accounts.Register(ctx, auth.Registration{Email: "staff@example.com", Password: "password123"})
	require.NoError(t, err)

	isAdmin, err := accounts.IsAdmin(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.NoError(t, accounts.SetAdmin(ctx, "Staff@example.com", true))
	isAdmin, err = accounts.IsAdmin(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	require.NoError(t, accounts.SetAdmin(ctx, "staff@example.com", false))
	isAdmin, err = accounts.IsAdmin(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.ErrorIs(t, accounts.SetAdmin(ctx, "ghost@example.com", true), auth.ErrProfileNotFound)
	_, err = accounts.IsAdmin(ctx, "missing-id")
	require.ErrorIs(t, err, auth.ErrProfileNotFound)
}

func TestRefreshStore_RotateOnce(t *testing.T) {
	ctx := context.Background()
	store := auth.NewRefreshStore(dbtest.Open(t), time.Hour)

	first, err := store.Issue(ctx, "user-1")
	require.NoError(t, err)

	second, userID, err := store.Rotate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.NotEqual(t, first, second)

	_, _, err = store.Rotate(ctx, first)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	require.NoError(t, store.Revoke(ctx, second))
	_, _, err = store.Rotate(ctx, second)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, _, err = store.Rotate(ctx, "unknown")
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestRefreshStore_Expired(t *testing.T) {
	ctx := context.Background()
	store := auth.NewRefreshStore(dbtest.Open(t), -time.Minute)
	tok, err := store.Issue(ctx, "user-1")
	require.NoError(t, err)

	_, _, err = store.Rotate(ctx, tok)
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, auth.TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", auth.TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", auth.TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, auth.TokenFromRequest(r))
}

func TestSessionCookie(t *testing.T) {
	w := httptest.NewRecorder()
	auth.SetSessionCookie(w, "tok", time.Minute, true)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	w = httptest.NewRecorder()
	auth.ClearSessionCookie(w)
	assert.Equal(t, -1, w.Result().Cookies()[0].MaxAge)
}
