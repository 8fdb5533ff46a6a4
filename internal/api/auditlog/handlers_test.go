package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockledger/stockledger/internal/audit"
	"github.com/stockledger/stockledger/internal/db/models"
	"github.com/stockledger/stockledger/internal/db/repositories"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	records []*models.AuditRecord
	total   int
	stats   *models.ActivityStats
	err     error

	gotFilters repositories.AuditFilters
	gotWindow  time.Duration
}

func (s *stubStore) List(_ context.Context, filters repositories.AuditFilters, _, _ int) ([]*models.AuditRecord, int, error) {
	s.gotFilters = filters
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.records, s.total, nil
}

func (s *stubStore) Stats(_ context.Context, window time.Duration) (*models.ActivityStats, error) {
	s.gotWindow = window
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

func newTestRouter(store *stubStore) *gin.Engine {
	h := NewHandler(audit.NewQueryService(store), 7*24*time.Hour)
	router := gin.New()
	router.GET("/audit-logs", h.GetAuditLogs)
	router.GET("/audit-stats", h.GetAuditStats)
	return router
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doGet(t *testing.T, router *gin.Engine, url string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a JSON envelope: %v (%s)", err, w.Body.String())
	}
	return w.Code, env
}

func TestGetAuditLogs_Success(t *testing.T) {
	store := &stubStore{
		records: []*models.AuditRecord{{
			ID:          1,
			Action:      models.ActionDispatch,
			Resource:    models.Resource{Type: "product"},
			Description: "Priya dispatched 5 units",
			Details:     map[string]any{},
			CreatedAt:   time.Now().Add(-time.Minute),
		}},
		total: 1,
	}
	router := newTestRouter(store)

	code, env := doGet(t, router, "/audit-logs")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !env.Success {
		t.Error("success = false, want true")
	}

	var page audit.Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("data is not a page: %v", err)
	}
	if len(page.Logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(page.Logs))
	}
	if page.Logs[0].TimeAgo == "" || page.Logs[0].ActionIcon == "" || page.Logs[0].ActionColor == "" {
		t.Errorf("decoration fields missing: %+v", page.Logs[0])
	}
	if page.Pagination.Total != 1 {
		t.Errorf("pagination total = %d", page.Pagination.Total)
	}
}

func TestGetAuditLogs_FiltersPassedThrough(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(store)

	code, _ := doGet(t, router, "/audit-logs?user_id=7&action=DISPATCH&resource_type=product&search=widget")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	f := store.gotFilters
	if f.UserID == nil || *f.UserID != 7 {
		t.Errorf("UserID = %v", f.UserID)
	}
	if f.Action == nil || *f.Action != "DISPATCH" {
		t.Errorf("Action = %v", f.Action)
	}
	if f.Search == nil || *f.Search != "widget" {
		t.Errorf("Search = %v", f.Search)
	}
}

func TestGetAuditLogs_DateParsing(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(store)

	code, _ := doGet(t, router, "/audit-logs?start_date=2026-01-01&end_date=2026-01-31")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if store.gotFilters.StartDate == nil || store.gotFilters.EndDate == nil {
		t.Fatal("dates not passed through")
	}
	// A bare end date covers the entire named day.
	end := *store.gotFilters.EndDate
	if end.Hour() != 23 || end.Minute() != 59 {
		t.Errorf("end date = %v, want end of day", end)
	}
}

func TestGetAuditLogs_BadParams(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"non-numeric page", "/audit-logs?page=abc"},
		{"zero page", "/audit-logs?page=0"},
		{"non-numeric limit", "/audit-logs?limit=ten"},
		{"non-numeric user_id", "/audit-logs?user_id=priya"},
		{"bad start date", "/audit-logs?start_date=yesterday"},
		{"bad end date", "/audit-logs?end_date=31-01-2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubStore{})
			code, env := doGet(t, router, tt.url)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if env.Success {
				t.Error("success = true on validation failure")
			}
			if env.Message == "" {
				t.Error("message must name the problem")
			}
		})
	}
}

func TestGetAuditLogs_StoreErrorIsGeneric500(t *testing.T) {
	router := newTestRouter(&stubStore{err: errors.New("pq: connection reset by peer")})

	code, env := doGet(t, router, "/audit-logs")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if env.Success {
		t.Error("success = true on failure")
	}
	if env.Message != "Failed to fetch audit logs" {
		t.Errorf("message = %q, internal details must not leak", env.Message)
	}
}

func TestGetAuditStats_Success(t *testing.T) {
	store := &stubStore{stats: &models.ActivityStats{
		Overview:      models.ActivityOverview{TotalActivities: 42},
		TopUsers:      []models.ActorActivity{},
		RecentActions: []models.ActionCount{},
	}}
	router := newTestRouter(store)

	code, env := doGet(t, router, "/audit-stats")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	var stats models.ActivityStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("data is not stats: %v", err)
	}
	if stats.Overview.TotalActivities != 42 {
		t.Errorf("total_activities = %d", stats.Overview.TotalActivities)
	}
	if store.gotWindow != 7*24*time.Hour {
		t.Errorf("window = %v, want configured default", store.gotWindow)
	}
}

func TestGetAuditStats_WindowOverride(t *testing.T) {
	store := &stubStore{stats: &models.ActivityStats{}}
	router := newTestRouter(store)

	code, _ := doGet(t, router, "/audit-stats?window_days=30")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if store.gotWindow != 30*24*time.Hour {
		t.Errorf("window = %v, want 30 days", store.gotWindow)
	}
}

func TestGetAuditStats_BadWindow(t *testing.T) {
	router := newTestRouter(&stubStore{})

	code, env := doGet(t, router, "/audit-stats?window_days=-1")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if env.Success {
		t.Error("success = true on validation failure")
	}
}

func TestGetAuditStats_StoreError(t *testing.T) {
	router := newTestRouter(&stubStore{err: errors.New("db down")})

	code, env := doGet(t, router, "/audit-stats")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if env.Message != "Failed to fetch audit statistics" {
		t.Errorf("message = %q", env.Message)
	}
}
