package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-authz/internal/audit"
)

type stubService struct {
	filters audit.TimelineFilters
	result  audit.Result
	rows    []audit.TimelineRow
	err     error
}

func (s *stubService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.filters = filters
	return s.result, s.err
}

func (s *stubService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.filters = filters
	return s.rows, s.err
}

func newTimelineRouter(t *testing.T, svc TimelineService) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, audit.NewCSVExporter())
	h.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleTimelineDefaults(t *testing.T) {
	svc := &stubService{result: audit.Result{Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newTimelineRouter(t, svc)

	rec := get(t, router, "/audit")
	require.Equal(t, http.StatusOK, rec.Code)

	// Default window is the trailing week ending today.
	assert.Equal(t, "2026-08-30", svc.filters.To.Format("2006-01-02"))
	assert.Equal(t, "2026-08-23", svc.filters.From.Format("2006-01-02"))
	assert.Equal(t, 1, svc.filters.Page)
	assert.Equal(t, 20, svc.filters.PageSize)

	var result audit.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotNil(t, result.Rows)
}

func TestHandleTimelineFilters(t *testing.T) {
	svc := &stubService{}
	router := newTimelineRouter(t, svc)

	rec := get(t, router, "/audit?from=2026-08-01&to=2026-08-15&action=role:assigned&role=role-auditor&subject=u1&page=3&page_size=100")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "role:assigned", svc.filters.Action)
	assert.Equal(t, "role-auditor", svc.filters.RoleID)
	assert.Equal(t, "u1", svc.filters.SubjectID)
	assert.Equal(t, 3, svc.filters.Page)
	assert.Equal(t, 50, svc.filters.PageSize, "page size is capped")
}

func TestHandleTimelineFilterValidation(t *testing.T) {
	svc := &stubService{}
	router := newTimelineRouter(t, svc)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/audit?to=not-a-date").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/audit?from=2026-08-20&to=2026-08-01").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/audit?from=2025-01-01&to=2026-08-01").Code, "window too wide")
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/audit?page=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/audit?page_size=abc").Code)
}

func TestHandleTimelineServiceError(t *testing.T) {
	svc := &stubService{err: errors.New("pg down")}
	router := newTimelineRouter(t, svc)

	assert.Equal(t, http.StatusInternalServerError, get(t, router, "/audit").Code)
}

func TestHandleExportCSV(t *testing.T) {
	svc := &stubService{rows: []audit.TimelineRow{
		{EventID: "ev-1", Action: audit.ActionRoleCreated, At: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)},
	}}
	router := newTimelineRouter(t, svc)

	rec := get(t, router, "/audit/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-timeline.csv")
	assert.Contains(t, rec.Body.String(), "ev-1,role:created")
}

func TestHandleTimelineWithoutService(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, nil, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	assert.Equal(t, http.StatusNotImplemented, get(t, r, "/audit").Code)
	assert.Equal(t, http.StatusNotImplemented, get(t, r, "/audit/export.csv").Code)
}
