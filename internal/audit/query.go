// query.go implements the read side of the audit trail: filtered, paginated
// listing with presentation decoration, and the statistics passthrough.
package audit

import (
	"context"
	"time"

	"github.com/stockledger/stockledger/internal/db/models"
	"github.com/stockledger/stockledger/internal/db/repositories"
)

// Pagination bounds enforced on every list call.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// QueryStore is the read-side persistence contract the query service depends on.
type QueryStore interface {
	List(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditRecord, int, error)
	Stats(ctx context.Context, window time.Duration) (*models.ActivityStats, error)
}

// Filter is the normalized query-side filter. Nil predicate fields mean no
// constraint on that field.
type Filter struct {
	UserID       *int64
	Action       *string
	ResourceType *string
	StartDate    *time.Time
	EndDate      *time.Time
	Search       *string
	Page         int
	Limit        int
}

// DecoratedRecord is an audit record plus the presentation-only fields the
// dashboard renders. The derived fields are computed per-request and never
// persisted.
type DecoratedRecord struct {
	*models.AuditRecord
	TimeAgo     string `json:"time_ago"`
	ActionIcon  string `json:"action_icon"`
	ActionColor string `json:"action_color"`
}

// Pagination describes the slice of the match set a page covers.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

// Page is one page of decorated audit records.
type Page struct {
	Logs       []*DecoratedRecord `json:"logs"`
	Pagination Pagination         `json:"pagination"`
}

// QueryService exposes read access to the audit trail. It never mutates
// stored data.
type QueryService struct {
	store QueryStore

	// now is injectable so relative-time decoration is deterministic in tests.
	now func() time.Time
}

// NewQueryService creates a QueryService reading from store.
func NewQueryService(store QueryStore) *QueryService {
	return &QueryService{store: store, now: time.Now}
}

// List returns one page of audit records matching the filter, newest first,
// each decorated with time_ago, action_icon, and action_color. Page and limit
// are clamped to sane bounds (page at least 1, limit between 1 and 200) before the store is
// consulted so a hostile limit can never trigger an unbounded scan.
func (s *QueryService) List(ctx context.Context, f Filter) (*Page, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := (page - 1) * limit

	records, total, err := s.store.List(ctx, repositories.AuditFilters{
		UserID:       f.UserID,
		Action:       f.Action,
		ResourceType: f.ResourceType,
		StartDate:    f.StartDate,
		EndDate:      f.EndDate,
		Search:       f.Search,
	}, limit, offset)
	if err != nil {
		return nil, err
	}

	now := s.now()
	logs := make([]*DecoratedRecord, 0, len(records))
	for _, rec := range records {
		logs = append(logs, &DecoratedRecord{
			AuditRecord: rec,
			TimeAgo:     TimeAgo(now, rec.CreatedAt),
			ActionIcon:  ActionIcon(rec.Action),
			ActionColor: ActionColor(rec.Action),
		})
	}

	return &Page{
		Logs: logs,
		Pagination: Pagination{
			CurrentPage: page,
			PerPage:     limit,
			Total:       total,
			TotalPages:  (total + limit - 1) / limit,
		},
	}, nil
}

// Stats returns the aggregate activity summary for the trailing window. A
// non-positive window selects the store default (7 days).
func (s *QueryService) Stats(ctx context.Context, window time.Duration) (*models.ActivityStats, error) {
	return s.store.Stats(ctx, window)
}
