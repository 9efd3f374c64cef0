package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/document"
	"github.com/d9705996/clientportal/internal/dossier"
)

// multipartOverhead is the allowance for multipart headers on top of the
// file ceiling.
const multipartOverhead = 1 << 20

// DocumentHandler handles client uploads and downloads.
type DocumentHandler struct {
	docs     *document.Service
	dossiers *dossier.Service
	log      *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(docs *document.Service, dossiers *dossier.Service, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, dossiers: dossiers, log: log}
}

func documentList(docs []document.Document) []any {
	out := make([]any, 0, len(docs))
	for i := range docs {
		out = append(out, jsonapi.ResourceObject{Type: "documents", ID: docs[i].ID, Attributes: docs[i]})
	}
	return out
}

// Upload handles POST /api/dossiers/{id}/documents (multipart field "file").
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner := userID(r)
	d, err := h.dossiers.GetOwned(r.Context(), r.PathValue("id"), owner)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	if d.Status == dossier.StatusDone {
		jsonapi.RenderError(w, http.StatusConflict, "conflict", "Conflict", "dossier is closed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.docs.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonapi.RenderFieldError(w, "file", "exceeds the upload limit")
			return
		}
		jsonapi.RenderFieldError(w, "file", "must be sent as multipart/form-data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonapi.RenderFieldError(w, "file", "is required")
		return
	}
	defer func() { _ = file.Close() }()

	doc, err := h.docs.Upload(r.Context(), document.UploadInput{
		DossierID:   d.ID,
		OwnerID:     owner,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	h.log.Info("document uploaded", "dossier_id", d.ID, "document_id", doc.ID, "size", doc.SizeBytes)
	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{Type: "documents", ID: doc.ID, Attributes: doc})
}

// List handles GET /api/dossiers/{id}/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	d, err := h.dossiers.GetOwned(r.Context(), r.PathValue("id"), userID(r))
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

// owned loads a document and hides it from anyone but its owner.
func (h *DocumentHandler) owned(r *http.Request) (*document.Document, error) {
	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != userID(r) {
		return nil, document.ErrNotFound
	}
	return doc, nil
}

// OpenURL handles GET /api/documents/{id}/url.
func (h *DocumentHandler) OpenURL(w http.ResponseWriter, r *http.Request) {
	doc, err := h.owned(r)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	u, err := h.docs.OpenURL(r.Context(), doc.ID)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	jsonapi.RenderJSON(w, http.StatusOK, map[string]string{"signedUrl": u})
}

// Delete handles DELETE /api/documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	doc, err := h.owned(r)
	if err != nil {
		renderErr(w, h.log, err)
		return
	}
	if err := h.docs.Delete(r.Context(), doc.ID); err != nil {
		renderErr(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
