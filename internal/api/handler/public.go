package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/contact"
	"github.com/d9705996/clientportal/internal/faq"
	"github.com/d9705996/clientportal/internal/observability"
	"github.com/d9705996/clientportal/internal/ratelimit"
)

const maxQuestionRunes = 2000

// FAQHandler answers visitor questions.
type FAQHandler struct {
	responder faq.Responder
	inst      *observability.Instruments
	log       *slog.Logger
}

// NewFAQHandler creates a FAQHandler.
func NewFAQHandler(responder faq.Responder, inst *observability.Instruments, log *slog.Logger) *FAQHandler {
	return &FAQHandler{responder: responder, inst: inst, log: log}
}

type faqRequest struct {
	Message string `json:"message"`
	Lang    string `json:"lang"`
}

// Ask handles POST /api/faq.
func (h *FAQHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req faqRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q := strings.TrimSpace(req.Message)
	if q == "" {
		jsonapi.RenderFieldError(w, "message", "is required")
		return
	}
	if utf8.RuneCountInString(q) > maxQuestionRunes {
		jsonapi.RenderFieldError(w, "message", "is too long")
		return
	}
	answer, err := h.responder.Respond(r.Context(), q, requestLang(r, req.Lang, ""))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	h.inst.FAQRequest(r.Context(), string(answer.Intent), answer.Source)
	jsonapi.RenderJSON(w, http.StatusOK, answer)
}

// CaptchaVerifier checks a CAPTCHA token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// ContactQueue hands a validated message to delivery.
type ContactQueue interface {
	EnqueueContact(ctx context.Context, msg contact.Message) error
}

// ContactHandler handles the public contact form.
type ContactHandler struct {
	verifier   CaptchaVerifier
	queue      ContactQueue
	trustProxy bool
	log        *slog.Logger
}

// NewContactHandler creates a ContactHandler. trustProxy selects where the
// client address reported to the CAPTCHA provider comes from.
func NewContactHandler(verifier CaptchaVerifier, queue ContactQueue, trustProxy bool, log *slog.Logger) *ContactHandler {
	return &ContactHandler{verifier: verifier, queue: queue, trustProxy: trustProxy, log: log}
}

// Submit handles POST /api/contact. Nothing is sent unless the CAPTCHA
// passes.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var msg contact.Message
	if !decodeJSON(w, r, &msg) {
		return
	}
	if err := msg.Validate(); err != nil {
		renderErr(w, h.log, err)
		return
	}
	if err := h.verifier.Verify(r.Context(), msg.Token, ratelimit.ClientIP(r, h.trustProxy)); err != nil {
		renderErr(w, h.log, err)
		return
	}
	msg.Token = ""
	msg.Lang = string(requestLang(r, msg.Lang, ""))
	if err := h.queue.EnqueueContact(r.Context(), msg); err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// TooManyRequests is the rate limiter's rejection response.
func TooManyRequests(w http.ResponseWriter, _ *http.Request) {
	jsonapi.RenderError(w, http.StatusTooManyRequests, "rate_limited", "Too Many Requests", "too many requests, try again in a minute")
}
