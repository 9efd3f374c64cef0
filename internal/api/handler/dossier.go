package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/dossier"
)

// DossierHandler handles the client's own dossiers under /api/dossiers.
type DossierHandler struct {
	dossiers *dossier.Service
	log      *slog.Logger
}

// NewDossierHandler creates a DossierHandler.
func NewDossierHandler(dossiers *dossier.Service, log *slog.Logger) *DossierHandler {
	return &DossierHandler{dossiers: dossiers, log: log}
}

func dossierResource(d *dossier.Dossier) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{Type: "dossiers", ID: d.ID, Attributes: d}
}

func dossierList(ds []dossier.Dossier) []any {
	out := make([]any, 0, len(ds))
	for i := range ds {
		out = append(out, dossierResource(&ds[i]))
	}
	return out
}

type createDossierRequest struct {
	Type     string `json:"type"`
	CaseType string `json:"caseType"`
	Lang     string `json:"lang"`
}

// Create handles POST /api/dossiers.
func (h *DossierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDossierRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ct := req.CaseType
	if ct == "" {
		ct = req.Type
	}
	d, err := h.dossiers.Create(r.Context(), dossier.CreateParams{
		OwnerID:  userID(r),
		CaseType: ct,
		Lang:     string(requestLang(r, req.Lang, "")),
	})
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, dossierResource(d))
}

// List handles GET /api/dossiers.
func (h *DossierHandler) List(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dossiers.ListByOwner(r.Context(), userID(r))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, dossierList(ds))
}

// Get handles GET /api/dossiers/{id}.
func (h *DossierHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.dossiers.GetOwned(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, dossierResource(d))
}

type answersRequest struct {
	Answers json.RawMessage `json:"answers"`
	Lang    string          `json:"lang"`
}

// UpdateAnswers handles PUT /api/dossiers/{id}/answers.
func (h *DossierHandler) UpdateAnswers(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Answers) == 0 {
		jsonapi.RenderFieldError(w, "answers", "is required")
		return
	}
	id := r.PathValue("id")
	if _, err := h.dossiers.GetOwned(r.Context(), id, userID(r)); err != nil {
		renderErr(w, h.log, err)
		return
	}
	d, err := h.dossiers.UpdateAnswers(r.Context(), id, req.Answers, req.Lang)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, dossierResource(d))
}

// Submit handles POST /api/dossiers/{id}/submit.
func (h *DossierHandler) Submit(w http.ResponseWriter, r *http.Request) {
	d, err := h.dossiers.Submit(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	h.log.Info("dossier submitted", "dossier_id", d.ID)
	jsonapi.RenderOne(w, http.StatusOK, dossierResource(d))
}
