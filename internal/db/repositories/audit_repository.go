// audit_repository.go implements AuditRepository, the append-only persistence
// and query layer for audit records. Records are inserted exactly once, never
// updated, and read back with filtered, stable-ordered pagination plus a
// single-call statistics aggregation.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockledger/stockledger/internal/db/models"
	"github.com/stockledger/stockledger/internal/telemetry"
)

// DefaultStatsWindow is the trailing window used for top-actor and per-action
// aggregation when the caller does not supply one.
const DefaultStatsWindow = 7 * 24 * time.Hour

// AuditRepository handles audit log database operations.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository on the shared pool.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains the optional predicates for querying audit logs. All
// provided fields are ANDed together; a nil field means no constraint on that
// field, not "match null".
type AuditFilters struct {
	UserID       *int64
	Action       *string
	ResourceType *string
	StartDate    *time.Time
	EndDate      *time.Time
	Search       *string
}

// auditRow is the flat row shape scanned from the audit_logs table.
type auditRow struct {
	ID            int64           `db:"id"`
	UserID        *int64          `db:"user_id"`
	UserName      *string         `db:"user_name"`
	UserEmail     *string         `db:"user_email"`
	UserRole      *string         `db:"user_role"`
	Action        string          `db:"action"`
	ResourceType  string          `db:"resource_type"`
	ResourceID    *string         `db:"resource_id"`
	ResourceName  *string         `db:"resource_name"`
	Description   string          `db:"description"`
	Details       json.RawMessage `db:"details"`
	IPAddress     *string         `db:"ip_address"`
	UserAgent     *string         `db:"user_agent"`
	RequestMethod *string         `db:"request_method"`
	RequestURL    *string         `db:"request_url"`
	CreatedAt     time.Time       `db:"created_at"`
}

// toRecord converts a scanned row into the nested record shape. A row whose
// stored details no longer parse as JSON degrades to empty details for that
// record only, so one bad row cannot break an entire page.
func (row *auditRow) toRecord() *models.AuditRecord {
	details := map[string]any{}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &details); err != nil {
			telemetry.AuditDetailsDecodeFailuresTotal.Inc()
			slog.Warn("audit record has undecodable details, returning empty object",
				"record_id", row.ID, "error", err)
			details = map[string]any{}
		}
	}

	return &models.AuditRecord{
		ID: row.ID,
		Actor: models.Actor{
			UserID:    row.UserID,
			UserName:  row.UserName,
			UserEmail: row.UserEmail,
			UserRole:  row.UserRole,
		},
		Action: models.Action(row.Action),
		Resource: models.Resource{
			Type: row.ResourceType,
			ID:   row.ResourceID,
			Name: row.ResourceName,
		},
		Description: row.Description,
		Details:     details,
		RequestContext: models.RequestContext{
			IPAddress:     row.IPAddress,
			UserAgent:     row.UserAgent,
			RequestMethod: row.RequestMethod,
			RequestURL:    row.RequestURL,
		},
		CreatedAt: row.CreatedAt,
	}
}

// Insert appends a new audit record. The store assigns id and created_at via
// RETURNING; anything the caller may have set for either is ignored. On return
// the write is durable.
func (r *AuditRepository) Insert(ctx context.Context, in *models.AuditRecordInput) (*models.AuditRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var detailsJSON []byte
	if in.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(in.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			user_id, user_name, user_email, user_role,
			action, resource_type, resource_id, resource_name,
			description, details,
			ip_address, user_agent, request_method, request_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`

	record := &models.AuditRecord{
		Actor:          in.Actor,
		Action:         in.Action,
		Resource:       in.Resource,
		Description:    in.Description,
		Details:        in.Details,
		RequestContext: in.RequestContext,
	}
	if record.Details == nil {
		record.Details = map[string]any{}
	}

	err := r.db.QueryRowContext(ctx, query,
		in.Actor.UserID, in.Actor.UserName, in.Actor.UserEmail, in.Actor.UserRole,
		string(in.Action), in.Resource.Type, in.Resource.ID, in.Resource.Name,
		in.Description, detailsJSON,
		in.RequestContext.IPAddress, in.RequestContext.UserAgent,
		in.RequestContext.RequestMethod, in.RequestContext.RequestURL,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	return record, nil
}

// List retrieves audit records matching the filters, newest first, along with
// the total match count before slicing. Ordering is by created_at descending
// with id descending as tiebreak, so pagination stays stable even when
// concurrent writers produce equal timestamps.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditRecord, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE 1=1`
	query := `
		SELECT id, user_id, user_name, user_email, user_role,
		       action, resource_type, resource_id, resource_name,
		       description, details,
		       ip_address, user_agent, request_method, request_url, created_at
		FROM audit_logs
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.UserID != nil {
		addFilter(` AND user_id = $%d`, *filters.UserID)
	}
	if filters.Action != nil {
		addFilter(` AND action = $%d`, *filters.Action)
	}
	if filters.ResourceType != nil {
		addFilter(` AND resource_type = $%d`, *filters.ResourceType)
	}
	if filters.StartDate != nil {
		addFilter(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter(` AND created_at <= $%d`, *filters.EndDate)
	}
	if filters.Search != nil {
		cond := fmt.Sprintf(
			` AND (description ILIKE $%d OR user_name ILIKE $%d OR resource_name ILIKE $%d)`,
			paramIndex, paramIndex, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, "%"+*filters.Search+"%")
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]*models.AuditRecord, 0)
	for rows.Next() {
		var row auditRow
		if err := rows.StructScan(&row); err != nil {
			return nil, 0, err
		}
		records = append(records, row.toRecord())
	}

	return records, total, rows.Err()
}

// PruneOlderThan deletes records created before cutoff and returns how many
// were removed. This is the operator retention path, the only sanctioned
// deletion from the otherwise append-only table.
func (r *AuditRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats returns the single-call aggregate summary: all-time overview counters,
// the top-5 actors by activity within the trailing window, and per-action
// counts within the same window. A non-positive window falls back to
// DefaultStatsWindow.
func (r *AuditRepository) Stats(ctx context.Context, window time.Duration) (*models.ActivityStats, error) {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	cutoff := time.Now().Add(-window)

	stats := &models.ActivityStats{
		TopUsers:      []models.ActorActivity{},
		RecentActions: []models.ActionCount{},
	}

	// Headline counters in a single round-trip.
	overviewQuery := `
		SELECT
			COUNT(*) AS total_activities,
			COUNT(DISTINCT user_id) AS active_users,
			COUNT(*) FILTER (WHERE action = 'DISPATCH') AS total_dispatches,
			COUNT(*) FILTER (WHERE action = 'RETURN') AS total_returns,
			COUNT(*) FILTER (WHERE action = 'DAMAGE') AS total_damage_reports,
			COUNT(*) FILTER (WHERE action = 'BULK_UPLOAD') AS total_bulk_uploads,
			COUNT(*) FILTER (WHERE action = 'LOGIN') AS total_logins,
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '24 hours') AS last_24_hours
		FROM audit_logs
	`
	if err := r.db.GetContext(ctx, &stats.Overview, overviewQuery); err != nil {
		return nil, err
	}

	topUsersQuery := `
		SELECT user_id, COALESCE(user_name, 'Unknown') AS user_name, COUNT(*) AS activity_count
		FROM audit_logs
		WHERE user_id IS NOT NULL AND created_at >= $1
		GROUP BY user_id, user_name
		ORDER BY activity_count DESC, user_id ASC
		LIMIT 5
	`
	if err := r.db.SelectContext(ctx, &stats.TopUsers, topUsersQuery, cutoff); err != nil {
		return nil, err
	}

	recentActionsQuery := `
		SELECT action, COUNT(*) AS count
		FROM audit_logs
		WHERE created_at >= $1
		GROUP BY action
		ORDER BY count DESC, action ASC
	`
	if err := r.db.SelectContext(ctx, &stats.RecentActions, recentActionsQuery, cutoff); err != nil {
		return nil, err
	}

	return stats, nil
}
