package handler

import (
	"log/slog"
	"net/http"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/document"
	"github.com/d9705996/clientportal/internal/dossier"
)

// AdminHandler handles the staff console routes under /api/admin. Every
// route is mounted behind RequireAuth and RequireAdmin.
type AdminHandler struct {
	dossiers *dossier.Service
	docs     *document.Service
	log      *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(dossiers *dossier.Service, docs *document.Service, log *slog.Logger) *AdminHandler {
	return &AdminHandler{dossiers: dossiers, docs: docs, log: log}
}

type walkInRequest struct {
	Email string `json:"email"`
	Flow  string `json:"flow"`
	Lang  string `json:"lang"`
}

// CreateDossier handles POST /api/admin/create-dossier.
func (h *AdminHandler) CreateDossier(w http.ResponseWriter, r *http.Request) {
	var req walkInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.dossiers.CreateWalkIn(r.Context(), dossier.CreateParams{
		CaseType: req.Flow,
		Lang:     req.Lang,
		Email:    req.Email,
	}, userID(r))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	h.log.Info("walk-in dossier created", "dossier_id", d.ID, "staff_id", userID(r))
	jsonapi.RenderJSON(w, http.StatusCreated, map[string]string{"id": d.ID})
}

// ListDossiers handles GET /api/admin/dossiers?status=. No status lists all.
func (h *AdminHandler) ListDossiers(w http.ResponseWriter, r *http.Request) {
	var status dossier.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := dossier.ParseStatus(raw)
		if !ok {
			jsonapi.RenderFieldError(w, "status", "is not a known status")
			return
		}
		status = s
	}
	ds, err := h.dossiers.ListByStatus(r.Context(), status)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, dossierList(ds))
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/admin/dossiers/{id}/status.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, ok := dossier.ParseStatus(req.Status)
	if !ok {
		jsonapi.RenderFieldError(w, "status", "is not a known status")
		return
	}
	d, err := h.dossiers.AdvanceStatus(r.Context(), r.PathValue("id"), next, userID(r))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	h.log.Info("dossier status changed", "dossier_id", d.ID, "status", d.Status, "staff_id", userID(r))
	jsonapi.RenderOne(w, http.StatusOK, dossierResource(d))
}

type fidRequest struct {
	FID string `json:"fid"`
}

// SubmitWithoutPayment handles POST /api/admin/dossiers/submit-without-payment.
func (h *AdminHandler) SubmitWithoutPayment(w http.ResponseWriter, r *http.Request) {
	var req fidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FID == "" {
		jsonapi.RenderFieldError(w, "fid", "is required")
		return
	}
	if _, err := h.dossiers.SubmitWithoutPayment(r.Context(), req.FID, userID(r)); err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type docURLRequest struct {
	DocID string `json:"docId"`
}

// DocURL handles POST /api/admin/doc-url.
func (h *AdminHandler) DocURL(w http.ResponseWriter, r *http.Request) {
	var req docURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocID == "" {
		jsonapi.RenderFieldError(w, "docId", "is required")
		return
	}
	u, err := h.docs.OpenURL(r.Context(), req.DocID)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderJSON(w, http.StatusOK, map[string]string{"signedUrl": u})
}

// ListDocuments handles GET /api/admin/dossiers/{id}/documents.
func (h *AdminHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	d, err := h.dossiers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	docs, err := h.docs.List(r.Context(), d.ID)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, documentList(docs))
}
