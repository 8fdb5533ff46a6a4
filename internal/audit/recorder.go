// Package audit implements the write and read sides of the warehouse audit
// trail. The Recorder translates completed business actions (dispatch, return,
// damage, recovery, bulk upload, login) into well-formed audit records and
// hands them to the store; the QueryService serves filtered, paginated, and
// aggregated views of the stored log.
//
// Audit writes are best-effort relative to the business operation that
// triggered them: a failed append is logged and counted but never aborts the
// caller's transaction. Audit records are intentionally separate from
// application logs because they have different consumers and retention
// requirements — application logs are ephemeral debug output, while audit
// records are immutable facts that may be subject to compliance retention
// policies measured in years.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockledger/stockledger/internal/db/models"
	"github.com/stockledger/stockledger/internal/safego"
	"github.com/stockledger/stockledger/internal/telemetry"
)

// shipTimeout bounds each asynchronous delivery to an external destination.
const shipTimeout = 5 * time.Second

// Store is the write-side persistence contract the recorder depends on.
type Store interface {
	Insert(ctx context.Context, in *models.AuditRecordInput) (*models.AuditRecord, error)
}

// Recorder builds audit records from semantic business events and appends them
// to the store. A nil shipper disables external delivery.
type Recorder struct {
	store   Store
	shipper Shipper

	// now is injectable for deterministic timestamps in tests.
	now func() time.Time
}

// NewRecorder creates a Recorder writing to store, optionally shipping each
// stored record to shipper.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{
		store:   store,
		shipper: shipper,
		now:     time.Now,
	}
}

// Product identifies the inventory item a stock movement acted on.
type Product struct {
	ID   string
	Name string
	SKU  string
}

func (p Product) resource() models.Resource {
	res := models.Resource{Type: "product"}
	if p.ID != "" {
		id := p.ID
		res.ID = &id
	}
	if p.Name != "" {
		name := p.Name
		res.Name = &name
	}
	return res
}

// actorName returns the display name used inside rendered descriptions.
func actorName(a models.Actor) string {
	if a.UserName != nil && *a.UserName != "" {
		return *a.UserName
	}
	return "System"
}

// DispatchEvent describes a completed stock dispatch.
type DispatchEvent struct {
	Actor     models.Actor
	Product   Product
	Quantity  int
	Warehouse string
	AWBNumber string
	Request   models.RequestContext
}

// Dispatch records a completed dispatch operation.
func (r *Recorder) Dispatch(ctx context.Context, ev DispatchEvent) (*models.AuditRecord, error) {
	return r.record(ctx, &models.AuditRecordInput{
		Actor:    ev.Actor,
		Action:   models.ActionDispatch,
		Resource: ev.Product.resource(),
		Description: fmt.Sprintf("%s dispatched %d units of %s to %s warehouse",
			actorName(ev.Actor), ev.Quantity, ev.Product.Name, ev.Warehouse),
		Details: map[string]any{
			"quantity":      ev.Quantity,
			"warehouse":     ev.Warehouse,
			"awb_number":    ev.AWBNumber,
			"product_sku":   ev.Product.SKU,
			"dispatch_time": r.now().Format(time.RFC3339),
		},
		RequestContext: ev.Request,
	})
}

// ReturnEvent describes a completed stock return.
type ReturnEvent struct {
	Actor     models.Actor
	Product   Product
	Quantity  int
	Reason    string
	AWBNumber string
	Request   models.RequestContext
}

// Return records a completed return operation.
func (r *Recorder) Return(ctx context.Context, ev ReturnEvent) (*models.AuditRecord, error) {
	return r.record(ctx, &models.AuditRecordInput{
		Actor:    ev.Actor,
		Action:   models.ActionReturn,
		Resource: ev.Product.resource(),
		Description: fmt.Sprintf("%s processed return of %d units of %s (%s)",
			actorName(ev.Actor), ev.Quantity, ev.Product.Name, ev.Reason),
		Details: map[string]any{
			"quantity":    ev.Quantity,
			"reason":      ev.Reason,
			"awb_number":  ev.AWBNumber,
			"product_sku": ev.Product.SKU,
			"return_time": r.now().Format(time.RFC3339),
		},
		RequestContext: ev.Request,
	})
}

// DamageEvent describes a completed damage report.
type DamageEvent struct {
	Actor    models.Actor
	Product  Product
	Quantity int
	Reason   string
	Location string
	Request  models.RequestContext
}

// Damage records a completed damage report.
func (r *Recorder) Damage(ctx context.Context, ev DamageEvent) (*models.AuditRecord, error) {
	return r.record(ctx, &models.AuditRecordInput{
		Actor:    ev.Actor,
		Action:   models.ActionDamage,
		Resource: ev.Product.resource(),
		Description: fmt.Sprintf("%s reported %d units of %s damaged at %s (%s)",
			actorName(ev.Actor), ev.Quantity, ev.Product.Name, ev.Location, ev.Reason),
		Details: map[string]any{
			"quantity":    ev.Quantity,
			"reason":      ev.Reason,
			"location":    ev.Location,
			"product_sku": ev.Product.SKU,
			"damage_time": r.now().Format(time.RFC3339),
		},
		RequestContext: ev.Request,
	})
}

// RecoveryEvent describes stock recovered from a prior damage report.
type RecoveryEvent struct {
	Actor    models.Actor
	Product  Product
	Quantity int
	Location string
	Request  models.RequestContext
}

// Recovery records a completed stock recovery.
func (r *Recorder) Recovery(ctx context.Context, ev RecoveryEvent) (*models.AuditRecord, error) {
	return r.record(ctx, &models.AuditRecordInput{
		Actor:    ev.Actor,
		Action:   models.ActionRecovery,
		Resource: ev.Product.resource(),
		Description: fmt.Sprintf("%s recovered %d units of %s at %s",
			actorName(ev.Actor), ev.Quantity, ev.Product.Name, ev.Location),
		Details: map[string]any{
			"quantity":      ev.Quantity,
			"location":      ev.Location,
			"product_sku":   ev.Product.SKU,
			"recovery_time": r.now().Format(time.RFC3339),
		},
		RequestContext: ev.Request,
	})
}

// BulkUploadEvent describes a completed bulk inventory upload.
type BulkUploadEvent struct {
	Actor          models.Actor
	Filename       string
	TotalItems     int
	ProcessedItems int
	Request        models.RequestContext
}

// BulkUpload records a completed bulk inventory upload.
func (r *Recorder) BulkUpload(ctx context.Context, ev BulkUploadEvent) (*models.AuditRecord, error) {
	successRate := 0.0
	if ev.TotalItems > 0 {
		successRate = float64(ev.ProcessedItems) / float64(ev.TotalItems) * 100
	}

	filename := ev.Filename
	return r.record(ctx, &models.AuditRecordInput{
		Actor:    ev.Actor,
		Action:   models.ActionBulkUpload,
		Resource: models.Resource{Type: "inventory", Name: &filename},
		Description: fmt.Sprintf("%s bulk uploaded %s: %d of %d items processed",
			actorName(ev.Actor), ev.Filename, ev.ProcessedItems, ev.TotalItems),
		Details: map[string]any{
			"filename":        ev.Filename,
			"total_items":     ev.TotalItems,
			"processed_items": ev.ProcessedItems,
			"success_rate":    successRate,
			"upload_time":     r.now().Format(time.RFC3339),
		},
		RequestContext: ev.Request,
	})
}

// LoginEvent describes a successful authentication.
type LoginEvent struct {
	Actor   models.Actor
	Request models.RequestContext
}

// Login records a successful login, deriving browser and OS labels from the
// request's user agent.
func (r *Recorder) Login(ctx context.Context, ev LoginEvent) (*models.AuditRecord, error) {
	ua := ""
	if ev.Request.UserAgent != nil {
		ua = *ev.Request.UserAgent
	}
	browser := BrowserFromUserAgent(ua)
	os := OSFromUserAgent(ua)

	return r.record(ctx, &models.AuditRecordInput{
		Actor:    ev.Actor,
		Action:   models.ActionLogin,
		Resource: models.Resource{Type: "session"},
		Description: fmt.Sprintf("%s logged in using %s on %s",
			actorName(ev.Actor), browser, os),
		Details: map[string]any{
			"login_time": r.now().Format(time.RFC3339),
			"browser":    browser,
			"os":         os,
		},
		RequestContext: ev.Request,
	})
}

// Logout records the end of a session.
func (r *Recorder) Logout(ctx context.Context, ev LoginEvent) (*models.AuditRecord, error) {
	return r.record(ctx, &models.AuditRecordInput{
		Actor:       ev.Actor,
		Action:      models.ActionLogout,
		Resource:    models.Resource{Type: "session"},
		Description: fmt.Sprintf("%s logged out", actorName(ev.Actor)),
		Details: map[string]any{
			"logout_time": r.now().Format(time.RFC3339),
		},
		RequestContext: ev.Request,
	})
}

// GenericEvent is the passthrough entry point for action families without a
// dedicated builder (user CRUD, transfers, role changes).
type GenericEvent struct {
	Actor       models.Actor
	Action      models.Action
	Resource    models.Resource
	Description string
	Details     map[string]any
	Request     models.RequestContext
}

// Event records an arbitrary pre-described action.
func (r *Recorder) Event(ctx context.Context, ev GenericEvent) (*models.AuditRecord, error) {
	return r.record(ctx, &models.AuditRecordInput{
		Actor:          ev.Actor,
		Action:         ev.Action,
		Resource:       ev.Resource,
		Description:    ev.Description,
		Details:        ev.Details,
		RequestContext: ev.Request,
	})
}

// record appends the input to the store. It never panics past this boundary
// and never aborts the caller's business flow: every failure is absorbed into
// a logged, counted error return the caller is free to ignore.
func (r *Recorder) record(ctx context.Context, in *models.AuditRecordInput) (rec *models.AuditRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			telemetry.AuditWriteFailuresTotal.Inc()
			slog.Error("panic while recording audit event", "action", in.Action, "panic", p)
			rec = nil
			err = fmt.Errorf("audit record for action %s panicked: %v", in.Action, p)
		}
	}()

	rec, err = r.store.Insert(ctx, in)
	if err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		slog.Error("failed to record audit event",
			"action", in.Action, "resource_type", in.Resource.Type, "error", err)
		return nil, fmt.Errorf("record audit event: %w", err)
	}

	telemetry.AuditRecordsTotal.WithLabelValues(string(rec.Action)).Inc()

	if r.shipper != nil {
		stored := rec
		safego.Go("audit-ship", func() {
			shipCtx, cancel := context.WithTimeout(context.Background(), shipTimeout)
			defer cancel()
			if shipErr := r.shipper.Ship(shipCtx, stored); shipErr != nil {
				slog.Warn("failed to ship audit record", "record_id", stored.ID, "error", shipErr)
			}
		})
	}

	return rec, nil
}
