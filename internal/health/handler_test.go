package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/d9705996/clientportal/internal/api/jsonapi"
	"github.com/d9705996/clientportal/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPinger is an in-test implementation of health.Pinger.
type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func TestServeHealth_AlwaysOK(t *testing.T) {
	h := health.New(health.Check{Name: "database", Pinger: &mockPinger{err: errors.New("down")}})
	w := httptest.NewRecorder()
	h.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))

	var doc jsonapi.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.NotNil(t, doc.Data)
}

func TestServeReady_AllHealthy(t *testing.T) {
	h := health.New(
		health.Check{Name: "database", Pinger: &mockPinger{}},
		health.Check{Name: "storage", Pinger: &mockPinger{}},
	)
	w := httptest.NewRecorder()
	h.ServeReady(w, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":"ok"`)
}

func TestServeReady_StorageUnhealthy(t *testing.T) {
	h := health.New(
		health.Check{Name: "database", Pinger: &mockPinger{}},
		health.Check{Name: "storage", Pinger: &mockPinger{err: errors.New("bucket missing")}},
	)
	w := httptest.NewRecorder()
	h.ServeReady(w, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "dependency_unavailable", doc.Errors[0].Code)
	assert.Contains(t, doc.Errors[0].Detail, "storage")
}

func TestServeReady_NoChecks(t *testing.T) {
	w := httptest.NewRecorder()
	health.New().ServeReady(w, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServeReady_NilPinger(t *testing.T) {
	w := httptest.NewRecorder()
	health.New(health.Check{Name: "database"}).ServeReady(w, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
