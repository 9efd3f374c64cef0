package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/dossier"
	"github.com/d9705996/clientportal/internal/payment"
)

// maxWebhookBody bounds processor event payloads.
const maxWebhookBody = 512 << 10

// PaymentHandler handles checkout and the processor webhook.
type PaymentHandler struct {
	initiator *payment.Initiator
	receiver  *payment.Receiver
	dossiers  *dossier.Service
	log       *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(initiator *payment.Initiator, receiver *payment.Receiver, dossiers *dossier.Service, log *slog.Logger) *PaymentHandler {
	return &PaymentHandler{initiator: initiator, receiver: receiver, dossiers: dossiers, log: log}
}

type checkoutRequest struct {
	FID  string `json:"fid"`
	Type string `json:"type"`
	Mode string `json:"mode"`
	Lang string `json:"lang"`
}

// Checkout handles POST /api/checkout.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.initiator.Checkout(r.Context(), payment.CheckoutRequest{
		DossierID:   req.FID,
		CaseType:    req.Type,
		FeeCategory: req.Mode,
		Lang:        string(requestLang(r, req.Lang, "")),
		OwnerID:     userID(r),
	})
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderJSON(w, http.StatusOK, map[string]string{"url": u})
}

type successAttrs struct {
	FID         string `json:"fid"`
	CaseCode    string `json:"caseCode"`
	DepositPaid bool   `json:"depositPaid"`
}

// Success handles GET /api/checkout/success?fid=, the data behind the
// payment return page. The deposit may not be confirmed yet: the webhook can
// arrive after the redirect.
func (h *PaymentHandler) Success(w http.ResponseWriter, r *http.Request) {
	fid := r.URL.Query().Get("fid")
	if fid == "" {
		jsonapi.RenderFieldError(w, "fid", "is required")
		return
	}
	d, err := h.dossiers.GetOwned(r.Context(), fid, userID(r))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	code := d.CaseCode
	if code == "" {
		if code, err = h.dossiers.EnsureCaseCode(r.Context(), d.ID); err != nil {
			renderErr(w, h.log, err)
			return
		}
	}
	jsonapi.RenderJSON(w, http.StatusOK, successAttrs{FID: d.ID, CaseCode: code, DepositPaid: d.DepositPaid()})
}

// Webhook handles POST /api/stripe/webhook. The raw body is verified before
// anything in it is trusted.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body could not be read")
		return
	}
	if err := h.receiver.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderJSON(w, http.StatusOK, map[string]bool{"received": true})
}
