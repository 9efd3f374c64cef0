// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"log/slog"
	"net/http"

	"github.com/d9705996/clientportal/internal/api/handler"
	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/api/middleware"
	"github.com/d9705996/clientportal/internal/health"
	"github.com/d9705996/clientportal/internal/ratelimit"
	"github.com/d9705996/clientportal/internal/storage"
)

// Routes bundles the handlers and gates mounted by RegisterRoutes.
type Routes struct {
	Health    *health.Handler
	Auth      *handler.AuthHandler
	Dossiers  *handler.DossierHandler
	Documents *handler.DocumentHandler
	Payments  *handler.PaymentHandler
	Admin     *handler.AdminHandler
	FAQ       *handler.FAQHandler
	Contact   *handler.ContactHandler

	// Files serves signed disk-store downloads; nil with the s3 driver.
	Files   http.Handler
	Metrics http.Handler

	Profiles  middleware.ProfileLookup
	Limiter   ratelimit.Limiter
	RateLimit int // requests per minute per client for FAQ and contact
	// TrustProxy keys the limiter on X-Forwarded-For instead of the peer.
	TrustProxy bool
	JWTSecret  string
	Log        *slog.Logger
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", rt.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", rt.Health.ServeReady)

	// Auth endpoints (no auth required)
	mux.HandleFunc("POST /api/v1/auth/register", rt.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", rt.Auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", rt.Auth.Refresh)

	// Auth-required routes, wrapped with RequireAuth.
	protected := middleware.RequireAuth(rt.JWTSecret)
	authed := func(f http.HandlerFunc) http.Handler { return protected(f) }
	mux.Handle("POST /api/v1/auth/logout", authed(rt.Auth.Logout))
	mux.Handle("GET /api/me/is-admin", authed(rt.Auth.IsAdmin))

	mux.Handle("POST /api/dossiers", authed(rt.Dossiers.Create))
	mux.Handle("GET /api/dossiers", authed(rt.Dossiers.List))
	mux.Handle("GET /api/dossiers/{id}", authed(rt.Dossiers.Get))
	mux.Handle("PUT /api/dossiers/{id}/answers", authed(rt.Dossiers.UpdateAnswers))
	mux.Handle("POST /api/dossiers/{id}/submit", authed(rt.Dossiers.Submit))
	mux.Handle("POST /api/dossiers/{id}/documents", authed(rt.Documents.Upload))
	mux.Handle("GET /api/dossiers/{id}/documents", authed(rt.Documents.List))
	mux.Handle("GET /api/documents/{id}/url", authed(rt.Documents.OpenURL))
	mux.Handle("DELETE /api/documents/{id}", authed(rt.Documents.Delete))

	mux.Handle("POST /api/checkout", authed(rt.Payments.Checkout))
	mux.Handle("GET /api/checkout/success", authed(rt.Payments.Success))
	// Signature-verified, no session.
	mux.HandleFunc("POST /api/stripe/webhook", rt.Payments.Webhook)

	// Every admin route re-checks the profile flag.
	admin := func(f http.HandlerFunc) http.Handler {
		return protected(middleware.RequireAdmin(rt.Profiles, rt.Log)(f))
	}
	mux.Handle("POST /api/admin/create-dossier", admin(rt.Admin.CreateDossier))
	mux.Handle("GET /api/admin/dossiers", admin(rt.Admin.ListDossiers))
	mux.Handle("PATCH /api/admin/dossiers/{id}/status", admin(rt.Admin.UpdateStatus))
	mux.Handle("POST /api/admin/dossiers/submit-without-payment", admin(rt.Admin.SubmitWithoutPayment))
	mux.Handle("POST /api/admin/doc-url", admin(rt.Admin.DocURL))
	mux.Handle("GET /api/admin/dossiers/{id}/documents", admin(rt.Admin.ListDocuments))

	// Public, rate limited per client address.
	limited := func(scope string, f http.HandlerFunc) http.Handler {
		return ratelimit.Middleware(rt.Limiter, scope, rt.RateLimit, rt.TrustProxy, rt.Log, handler.TooManyRequests)(f)
	}
	mux.Handle("POST /api/faq", limited("faq", rt.FAQ.Ask))
	mux.Handle("POST /api/contact", limited("contact", rt.Contact.Submit))

	if rt.Files != nil {
		mux.Handle("GET "+storage.DiskRoutePrefix+"/", rt.Files)
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "no route matches this request")
	})
}
