package jsonapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOne(t *testing.T) {
	type attrs struct {
		CaseType string `json:"caseType"`
	}

	w := httptest.NewRecorder()
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "dossiers",
		ID:         "1",
		Attributes: attrs{CaseType: "t1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))

	var doc jsonapi.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.NotNil(t, doc.Data)
}

func TestRenderList_EmptySlice(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderList(w, http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var doc jsonapi.ListDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.NotNil(t, doc.Data)
	assert.Len(t, doc.Data, 0)
	assert.EqualValues(t, 0, doc.Meta["count"])
}

func TestRenderList_Count(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderList(w, http.StatusOK, []any{
		jsonapi.ResourceObject{Type: "documents", ID: "a"},
		jsonapi.ResourceObject{Type: "documents", ID: "b"},
	})

	var doc jsonapi.ListDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Data, 2)
	assert.EqualValues(t, 2, doc.Meta["count"])
}

func TestRenderError(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "dossier not found")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "not_found", doc.Errors[0].Code)
	assert.Equal(t, "dossier not found", doc.Errors[0].Detail)
}

func TestRenderErrors_MultipleErrors(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderErrors(w, http.StatusBadRequest, []jsonapi.ErrorObject{
		{
			Code: "missing_field", Title: "Missing Field", Detail: "email is required",
			Source: &jsonapi.ErrorSource{Pointer: "/data/attributes/email"},
		},
		{
			Code: "missing_field", Title: "Missing Field", Detail: "flow is required",
			Source: &jsonapi.ErrorSource{Pointer: "/data/attributes/flow"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Errors, 2)
}

func TestRenderFieldError(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderFieldError(w, "type", "must be one of t1, ta, t2")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	require.NotNil(t, doc.Errors[0].Source)
	assert.Equal(t, "/data/attributes/type", doc.Errors[0].Source.Pointer)
	assert.Equal(t, "type must be one of t1, ta, t2", doc.Errors[0].Detail)
}

func TestRenderJSON(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderJSON(w, http.StatusOK, map[string]bool{"received": true})

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}
