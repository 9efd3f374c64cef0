// Package jsonapi renders the portal's response bodies. Dossiers, documents
// and profiles go out as JSON:API resource documents; checkout, webhook and
// contact answer with plain JSON. Failures always use the JSON:API error
// document so the front end has one shape to parse.
package jsonapi

import (
	"encoding/json"
	"net/http"
)

const (
	mediaType     = "application/vnd.api+json"
	jsonMediaType = "application/json"
)

// Document wraps a single resource.
type Document struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta,omitempty"`
}

// ListDocument wraps a collection. Meta carries the item count.
type ListDocument struct {
	Data []any `json:"data"`
	Meta Meta  `json:"meta,omitempty"`
}

// ResourceObject is one dossier, document or profile in a response.
type ResourceObject struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes,omitempty"`
	Meta       Meta   `json:"meta,omitempty"`
}

// Meta holds out-of-band values such as counts.
type Meta map[string]any

// ErrorDocument is the body of every non-2xx response.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// ErrorObject describes one failure. Code is the stable machine value the
// front end switches on; Detail is safe to show to the client.
type ErrorObject struct {
	Status string       `json:"status,omitempty"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource points at the rejected request field.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

func write(w http.ResponseWriter, ct string, status int, v any) {
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Render writes doc as a JSON:API body.
func Render(w http.ResponseWriter, status int, doc any) {
	write(w, mediaType, status, doc)
}

// RenderOne writes a single resource.
func RenderOne(w http.ResponseWriter, status int, data any) {
	Render(w, status, Document{Data: data})
}

// RenderList writes a collection. A nil slice is sent as [] so clients never
// see "data": null.
func RenderList(w http.ResponseWriter, status int, data []any) {
	if data == nil {
		data = []any{}
	}
	Render(w, status, ListDocument{Data: data, Meta: Meta{"count": len(data)}})
}

// RenderJSON writes v as plain JSON, for the action endpoints.
func RenderJSON(w http.ResponseWriter, status int, v any) {
	write(w, jsonMediaType, status, v)
}

// RenderError writes one error; the status text is filled in from status.
func RenderError(w http.ResponseWriter, status int, code, title, detail string) {
	RenderErrors(w, status, []ErrorObject{{
		Status: http.StatusText(status),
		Code:   code,
		Title:  title,
		Detail: detail,
	}})
}

// RenderFieldError writes a 400 naming the rejected attribute.
func RenderFieldError(w http.ResponseWriter, field, detail string) {
	RenderErrors(w, http.StatusBadRequest, []ErrorObject{{
		Status: http.StatusText(http.StatusBadRequest),
		Code:   "invalid_field",
		Title:  "Bad Request",
		Detail: field + " " + detail,
		Source: &ErrorSource{Pointer: "/data/attributes/" + field},
	}})
}

// RenderErrors writes several errors under one status.
func RenderErrors(w http.ResponseWriter, status int, errs []ErrorObject) {
	Render(w, status, ErrorDocument{Errors: errs})
}
