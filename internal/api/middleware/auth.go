// Package middleware provides HTTP middleware for the client portal.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/auth"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// LoginPath and ClientHomePath are where browser navigations are sent when
// the gate turns them away.
const (
	LoginPath      = "/login"
	ClientHomePath = "/espace-client"
)

// RequireAuth validates the access token from the Authorization header or the
// session cookie and injects *auth.Claims into the request context. API
// callers get a 401 JSON:API error; browser navigations are redirected to the
// login page with the original path in ?next=.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				deny(w, r, http.StatusUnauthorized, "missing_token", "authentication is required")
				return
			}

			claims, err := auth.ParseAccessToken(token, secret)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, "invalid_token", "access token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts Claims from the request context.
// Returns nil if not present.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	v := ctx.Value(claimsKey)
	if v == nil {
		return nil
	}
	c, _ := v.(*auth.Claims)
	return c
}

// ProfileLookup reads the admin flag of a profile.
type ProfileLookup interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin lets the request through only when the caller's profile has
// the admin flag. A lookup error is treated as "not admin". Must be chained
// after RequireAuth.
func RequireAdmin(profiles ProfileLookup, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				deny(w, r, http.StatusUnauthorized, "missing_token", "authentication is required")
				return
			}
			isAdmin, err := profiles.IsAdmin(r.Context(), claims.UserID)
			if err != nil {
				log.Warn("admin check failed", "user_id", claims.UserID, "err", err)
			}
			if err != nil || !isAdmin {
				deny(w, r, http.StatusForbidden, "forbidden", "administrator access is required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	if wantsHTML(r) {
		target := ClientHomePath
		if status == http.StatusUnauthorized {
			target = LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	jsonapi.RenderError(w, status, code, http.StatusText(status), detail)
}

// wantsHTML reports a browser page navigation rather than an API call.
func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
