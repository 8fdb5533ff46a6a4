// Package models - audit_record.go defines the AuditRecord model, the canonical
// structured representation of one logged warehouse action, along with the open
// Action enum and the aggregate statistics shapes served by the stats endpoint.
package models

import (
	"errors"
	"time"
)

// Action is the verb of an audit record. The constants below cover every action
// family the warehouse platform emits today, but the type is deliberately open:
// a record carrying an action outside this set is stored and returned verbatim,
// so a new event producer never requires a schema change here.
type Action string

// Known actions emitted by the platform.
const (
	ActionDispatch   Action = "DISPATCH"
	ActionReturn     Action = "RETURN"
	ActionDamage     Action = "DAMAGE"
	ActionRecovery   Action = "RECOVERY"
	ActionBulkUpload Action = "BULK_UPLOAD"
	ActionLogin      Action = "LOGIN"
	ActionLogout     Action = "LOGOUT"
	ActionCreate     Action = "CREATE"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionTransfer   Action = "TRANSFER"
)

// KnownActions lists the closed set of actions the platform itself emits, in a
// stable order suitable for per-action aggregation.
var KnownActions = []Action{
	ActionDispatch, ActionReturn, ActionDamage, ActionRecovery,
	ActionBulkUpload, ActionLogin, ActionLogout,
	ActionCreate, ActionUpdate, ActionDelete, ActionTransfer,
}

var knownActionSet = func() map[Action]struct{} {
	m := make(map[Action]struct{}, len(KnownActions))
	for _, a := range KnownActions {
		m[a] = struct{}{}
	}
	return m
}()

// Known reports whether a is one of the actions the platform itself emits.
// Unknown actions are still valid records; callers use Known only to decide
// between exact lookups and fallback presentation.
func (a Action) Known() bool {
	_, ok := knownActionSet[a]
	return ok
}

// Actor identifies who performed an audited action. Every field is nullable:
// an actor with all fields nil denotes a system-initiated or unauthenticated
// action.
type Actor struct {
	UserID    *int64  `json:"user_id"`
	UserName  *string `json:"user_name"`
	UserEmail *string `json:"user_email"`
	UserRole  *string `json:"user_role"`
}

// Resource is the entity an action was performed against. Type is a free-form
// but conventionally lowercase noun ("product", "user", "session", "inventory").
type Resource struct {
	Type string  `json:"type"`
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

// RequestContext carries the HTTP request facts captured alongside an action.
// All fields are opaque strings extracted by the host web framework.
type RequestContext struct {
	IPAddress     *string `json:"ip_address"`
	UserAgent     *string `json:"user_agent"`
	RequestMethod *string `json:"request_method"`
	RequestURL    *string `json:"request_url"`
}

// AuditRecord is one immutable logged fact: actor X did action Y to resource Z
// at time T. ID and CreatedAt are assigned by the store on insert, never by the
// caller. Description is rendered once at write time and stored verbatim; it is
// never recomputed on read.
type AuditRecord struct {
	ID             int64          `json:"id"`
	Actor          Actor          `json:"actor"`
	Action         Action         `json:"action"`
	Resource       Resource       `json:"resource"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details"`
	RequestContext RequestContext `json:"request_context"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditRecordInput is the caller-supplied portion of a record. The store
// ignores any identity or timestamp the caller might try to smuggle in; it
// assigns both itself.
type AuditRecordInput struct {
	Actor          Actor
	Action         Action
	Resource       Resource
	Description    string
	Details        map[string]any
	RequestContext RequestContext
}

// Validation errors for audit record input.
var (
	ErrEmptyAction       = errors.New("audit record action must not be empty")
	ErrEmptyResourceType = errors.New("audit record resource type must not be empty")
	ErrEmptyDescription  = errors.New("audit record description must not be empty")
)

// Validate checks the non-empty invariants of a record input.
func (in *AuditRecordInput) Validate() error {
	if in.Action == "" {
		return ErrEmptyAction
	}
	if in.Resource.Type == "" {
		return ErrEmptyResourceType
	}
	if in.Description == "" {
		return ErrEmptyDescription
	}
	return nil
}

// ActivityOverview is the headline counter block of the stats endpoint.
type ActivityOverview struct {
	TotalActivities    int64 `json:"total_activities" db:"total_activities"`
	ActiveUsers        int64 `json:"active_users" db:"active_users"`
	TotalDispatches    int64 `json:"total_dispatches" db:"total_dispatches"`
	TotalReturns       int64 `json:"total_returns" db:"total_returns"`
	TotalDamageReports int64 `json:"total_damage_reports" db:"total_damage_reports"`
	TotalBulkUploads   int64 `json:"total_bulk_uploads" db:"total_bulk_uploads"`
	TotalLogins        int64 `json:"total_logins" db:"total_logins"`
	Last24Hours        int64 `json:"last_24_hours" db:"last_24_hours"`
}

// ActorActivity is one row of the top-actors leaderboard within the stats window.
type ActorActivity struct {
	UserID        int64  `json:"user_id" db:"user_id"`
	UserName      string `json:"user_name" db:"user_name"`
	ActivityCount int64  `json:"activity_count" db:"activity_count"`
}

// ActionCount is a per-action activity count within the stats window.
type ActionCount struct {
	Action Action `json:"action" db:"action"`
	Count  int64  `json:"count" db:"count"`
}

// ActivityStats is the aggregate view returned by the audit stats endpoint.
type ActivityStats struct {
	Overview      ActivityOverview `json:"overview"`
	TopUsers      []ActorActivity  `json:"top_users"`
	RecentActions []ActionCount    `json:"recent_actions"`
}
