// Package auditlog implements the HTTP read surface of the audit trail: the
// filtered, paginated log listing and the aggregate activity statistics the
// dashboard renders. There are no write endpoints; audit records are created
// in-process through the recorder.
package auditlog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockledger/stockledger/internal/audit"
)

// Handler serves the audit log read endpoints.
type Handler struct {
	query *audit.QueryService
	// defaultStatsWindow is used when the request does not name a window.
	defaultStatsWindow time.Duration
}

// NewHandler creates an audit log handler backed by the query service.
func NewHandler(query *audit.QueryService, defaultStatsWindow time.Duration) *Handler {
	return &Handler{query: query, defaultStatsWindow: defaultStatsWindow}
}

// GetAuditLogs handles GET /api/v1/audit-logs.
//
// Supported query parameters: page, limit, user_id, action, resource_type,
// start_date, end_date (RFC3339 or YYYY-MM-DD), and search. Malformed
// parameters are a 400 naming the offending parameter; store failures are a
// 500 with a generic message, with details confined to the server log.
func (h *Handler) GetAuditLogs(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	page, err := h.query.List(c.Request.Context(), *filter)
	if err != nil {
		slog.Error("failed to list audit logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to fetch audit logs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    page,
	})
}

// GetAuditStats handles GET /api/v1/audit-stats.
//
// The optional window_days parameter bounds the top_users and recent_actions
// aggregates; the overview block always spans the whole trail.
func (h *Handler) GetAuditStats(c *gin.Context) {
	window := h.defaultStatsWindow
	if raw := c.Query("window_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "window_days must be a positive integer",
			})
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}

	stats, err := h.query.Stats(c.Request.Context(), window)
	if err != nil {
		slog.Error("failed to compute audit stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to fetch audit statistics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// parseFilter validates and normalizes the list query parameters.
func parseFilter(c *gin.Context) (*audit.Filter, error) {
	filter := &audit.Filter{Page: 1, Limit: audit.DefaultPageSize}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return nil, &paramError{"page must be a positive integer"}
		}
		filter.Page = page
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return nil, &paramError{"limit must be a positive integer"}
		}
		filter.Limit = limit
	}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &paramError{"user_id must be an integer"}
		}
		filter.UserID = &userID
	}

	if action := c.Query("action"); action != "" {
		filter.Action = &action
	}

	if resourceType := c.Query("resource_type"); resourceType != "" {
		filter.ResourceType = &resourceType
	}

	if raw := c.Query("start_date"); raw != "" {
		t, err := parseDate(raw, false)
		if err != nil {
			return nil, &paramError{"start_date must be RFC3339 or YYYY-MM-DD"}
		}
		filter.StartDate = &t
	}

	if raw := c.Query("end_date"); raw != "" {
		t, err := parseDate(raw, true)
		if err != nil {
			return nil, &paramError{"end_date must be RFC3339 or YYYY-MM-DD"}
		}
		filter.EndDate = &t
	}

	if search := c.Query("search"); search != "" {
		filter.Search = &search
	}

	return filter, nil
}

// parseDate accepts RFC3339 timestamps or bare dates. A bare end date is
// pushed to the end of its day so the range is inclusive of that day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }
