package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/api/middleware"
	"github.com/d9705996/clientportal/internal/auth"
	"github.com/d9705996/clientportal/internal/contact"
	"github.com/d9705996/clientportal/internal/document"
	"github.com/d9705996/clientportal/internal/dossier"
	"github.com/d9705996/clientportal/internal/lang"
	"github.com/d9705996/clientportal/internal/payment"
)

const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return false
	}
	return true
}

// userID returns the authenticated caller. Routes using it are behind
// RequireAuth, so an empty id never reaches a store.
func userID(r *http.Request) string {
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		return c.UserID
	}
	return ""
}

// requestLang resolves the language for this request. A language named in
// the body is taken as the caller's choice: unsupported values become the
// default rather than falling through to cookie or header negotiation.
func requestLang(r *http.Request, body, stored string) lang.Lang {
	if strings.TrimSpace(body) != "" {
		return lang.OrDefault(body)
	}
	src := lang.Sources{
		Query:          r.URL.Query().Get("lang"),
		Stored:         stored,
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
	if c, err := r.Cookie(lang.CookieName); err == nil {
		src.Cookie = c.Value
	}
	return lang.Resolve(src)
}

// renderErr maps a domain error to its JSON:API error response. Anything not
// recognised is a dependency failure: logged, and reported as 500.
func renderErr(w http.ResponseWriter, log *slog.Logger, err error) {
	if field, msg, ok := fieldError(err); ok {
		jsonapi.RenderFieldError(w, field, msg)
		return
	}
	switch {
	case errors.Is(err, dossier.ErrNotFound), errors.Is(err, document.ErrNotFound):
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, dossier.ErrOwnerRequired):
		jsonapi.RenderError(w, http.StatusUnauthorized, "missing_token", "Unauthorized", err.Error())
	case errors.Is(err, dossier.ErrInvalidTransition),
		errors.Is(err, dossier.ErrConflict),
		errors.Is(err, dossier.ErrLocked),
		errors.Is(err, dossier.ErrPaymentRequired),
		errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, auth.ErrEmailTaken):
		jsonapi.RenderError(w, http.StatusConflict, "conflict", "Conflict", err.Error())
	case errors.Is(err, payment.ErrBalanceUnsupported):
		jsonapi.RenderError(w, http.StatusBadRequest, "unsupported_mode", "Bad Request", err.Error())
	case errors.Is(err, payment.ErrProcessor):
		log.Warn("payment processor rejected request", "err", err)
		jsonapi.RenderError(w, http.StatusBadGateway, "processor_error", "Bad Gateway", err.Error())
	case errors.Is(err, payment.ErrInvalidSignature):
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_signature", "Bad Request", "webhook signature verification failed")
	case errors.Is(err, contact.ErrCaptchaFailed):
		jsonapi.RenderError(w, http.StatusBadRequest, "captcha_failed", "Bad Request", "captcha verification failed")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidRefreshToken):
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", err.Error())
	default:
		log.Error("request failed", "err", err)
		jsonapi.RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "the request could not be completed")
	}
}

func fieldError(err error) (field, msg string, ok bool) {
	var de *dossier.ValidationError
	var doc *document.ValidationError
	var pe *payment.ValidationError
	var ce *contact.ValidationError
	var ae *auth.ValidationError
	switch {
	case errors.As(err, &de):
		return de.Field, de.Message, true
	case errors.As(err, &doc):
		return doc.Field, doc.Message, true
	case errors.As(err, &pe):
		return pe.Field, pe.Message, true
	case errors.As(err, &ce):
		return ce.Field, ce.Message, true
	case errors.As(err, &ae):
		return ae.Field, ae.Message, true
	}
	return "", "", false
}
