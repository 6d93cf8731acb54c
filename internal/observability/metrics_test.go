package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/roles/role-user", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "authz_http_requests_total")
	assert.Contains(t, body, `route="/roles/{id}"`)
	assert.Contains(t, body, `code="200"`)
}

func TestObserveCheckAndMutation(t *testing.T) {
	m := NewMetrics()
	m.ObserveCheck(true)
	m.ObserveCheck(false)
	m.ObserveMutation("role:created")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `authz_checks_total{decision="grant"} 1`)
	assert.Contains(t, body, `authz_checks_total{decision="deny"} 1`)
	assert.Contains(t, body, `authz_mutations_total{action="role:created"} 1`)
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	m.ObserveCheck(true)
	m.ObserveMutation("role:created")
	assert.NotNil(t, m.Handler())
	assert.NotNil(t, m.Registerer())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
