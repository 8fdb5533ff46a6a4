package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stockledger/stockledger/internal/db/models"
)

// fakeStore captures the last input and plays back a canned response.
type fakeStore struct {
	lastInput *models.AuditRecordInput
	err       error
	panicWith any
	nextID    int64
}

func (s *fakeStore) Insert(_ context.Context, in *models.AuditRecordInput) (*models.AuditRecord, error) {
	s.lastInput = in
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.err != nil {
		return nil, s.err
	}
	s.nextID++
	return &models.AuditRecord{
		ID:             s.nextID,
		Actor:          in.Actor,
		Action:         in.Action,
		Resource:       in.Resource,
		Description:    in.Description,
		Details:        in.Details,
		RequestContext: in.RequestContext,
		CreatedAt:      time.Now(),
	}, nil
}

func newTestRecorder(store Store) *Recorder {
	r := NewRecorder(store, nil)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func testActor() models.Actor {
	id := int64(7)
	name := "Priya"
	return models.Actor{UserID: &id, UserName: &name}
}

func TestDispatchDescriptionAndDetails(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Dispatch(context.Background(), DispatchEvent{
		Actor:     testActor(),
		Product:   Product{ID: "prod-1", Name: "Blue Widget", SKU: "BW-100"},
		Quantity:  5,
		Warehouse: "Mumbai",
		AWBNumber: "AWB123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Priya dispatched 5 units of Blue Widget to Mumbai warehouse"
	if rec.Description != want {
		t.Errorf("description = %q, want %q", rec.Description, want)
	}
	if rec.Action != models.ActionDispatch {
		t.Errorf("action = %s, want DISPATCH", rec.Action)
	}
	if rec.Resource.Type != "product" {
		t.Errorf("resource type = %s, want product", rec.Resource.Type)
	}
	for _, key := range []string{"quantity", "warehouse", "awb_number", "product_sku", "dispatch_time"} {
		if _, ok := rec.Details[key]; !ok {
			t.Errorf("details missing key %q", key)
		}
	}
	if rec.Details["dispatch_time"] != "2026-03-01T12:00:00Z" {
		t.Errorf("dispatch_time = %v, want injected clock value", rec.Details["dispatch_time"])
	}
}

func TestReturnDescription(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Return(context.Background(), ReturnEvent{
		Actor:    testActor(),
		Product:  Product{Name: "Blue Widget", SKU: "BW-100"},
		Quantity: 2,
		Reason:   "damaged in transit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Priya processed return of 2 units of Blue Widget (damaged in transit)"
	if rec.Description != want {
		t.Errorf("description = %q, want %q", rec.Description, want)
	}
}

func TestDamageDescription(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Damage(context.Background(), DamageEvent{
		Actor:    testActor(),
		Product:  Product{Name: "Blue Widget"},
		Quantity: 3,
		Reason:   "water damage",
		Location: "Delhi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Priya reported 3 units of Blue Widget damaged at Delhi (water damage)"
	if rec.Description != want {
		t.Errorf("description = %q, want %q", rec.Description, want)
	}
	if rec.Action != models.ActionDamage {
		t.Errorf("action = %s, want DAMAGE", rec.Action)
	}
}

func TestRecoveryDescription(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Recovery(context.Background(), RecoveryEvent{
		Actor:    testActor(),
		Product:  Product{Name: "Blue Widget"},
		Quantity: 1,
		Location: "Delhi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Description != "Priya recovered 1 units of Blue Widget at Delhi" {
		t.Errorf("unexpected description: %q", rec.Description)
	}
}

func TestBulkUploadSuccessRate(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.BulkUpload(context.Background(), BulkUploadEvent{
		Actor:          testActor(),
		Filename:       "stock.csv",
		TotalItems:     200,
		ProcessedItems: 150,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Details["success_rate"] != 75.0 {
		t.Errorf("success_rate = %v, want 75", rec.Details["success_rate"])
	}
	if !strings.Contains(rec.Description, "150 of 200 items processed") {
		t.Errorf("description missing counts: %q", rec.Description)
	}
	if rec.Resource.Type != "inventory" {
		t.Errorf("resource type = %s, want inventory", rec.Resource.Type)
	}
}

func TestBulkUploadZeroItemsAvoidsDivideByZero(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.BulkUpload(context.Background(), BulkUploadEvent{
		Actor:    testActor(),
		Filename: "empty.csv",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Details["success_rate"] != 0.0 {
		t.Errorf("success_rate = %v, want 0", rec.Details["success_rate"])
	}
}

func TestLoginDerivesBrowserAndOS(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0"
	rec, err := r.Login(context.Background(), LoginEvent{
		Actor:   testActor(),
		Request: models.RequestContext{UserAgent: &ua},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Description != "Priya logged in using Edge on Windows" {
		t.Errorf("unexpected description: %q", rec.Description)
	}
	if rec.Details["browser"] != BrowserEdge || rec.Details["os"] != OSWindows {
		t.Errorf("details = %v, want Edge/Windows", rec.Details)
	}
}

func TestLoginWithoutUserAgent(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Login(context.Background(), LoginEvent{Actor: testActor()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Description != "Priya logged in using Unknown on Unknown" {
		t.Errorf("unexpected description: %q", rec.Description)
	}
}

func TestAnonymousActorRendersAsSystem(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Logout(context.Background(), LoginEvent{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Description != "System logged out" {
		t.Errorf("unexpected description: %q", rec.Description)
	}
}

func TestEventPreservesUnknownAction(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	rec, err := r.Event(context.Background(), GenericEvent{
		Action:      "WAREHOUSE_MOVED",
		Resource:    models.Resource{Type: "warehouse"},
		Description: "warehouse relocated",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Action != "WAREHOUSE_MOVED" {
		t.Errorf("action = %s, unknown actions must be stored verbatim", rec.Action)
	}
}

func TestStoreFailureIsReturnedNotPropagated(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	r := newTestRecorder(store)

	rec, err := r.Dispatch(context.Background(), DispatchEvent{
		Actor:    testActor(),
		Product:  Product{Name: "Blue Widget"},
		Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil on failure", rec)
	}
}

func TestStorePanicIsAbsorbed(t *testing.T) {
	store := &fakeStore{panicWith: "boom"}
	r := newTestRecorder(store)

	// Must not panic past the recorder boundary.
	rec, err := r.Login(context.Background(), LoginEvent{Actor: testActor()})
	if err == nil {
		t.Fatal("expected error from absorbed panic, got nil")
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil", rec)
	}
}

// blockingShipper signals when it receives a record.
type blockingShipper struct {
	shipped chan *models.AuditRecord
}

func (s *blockingShipper) Ship(_ context.Context, rec *models.AuditRecord) error {
	s.shipped <- rec
	return nil
}

func (s *blockingShipper) Close() error { return nil }

func TestSuccessfulWriteIsShippedAsynchronously(t *testing.T) {
	shipper := &blockingShipper{shipped: make(chan *models.AuditRecord, 1)}
	r := NewRecorder(&fakeStore{}, shipper)

	rec, err := r.Event(context.Background(), GenericEvent{
		Action:      models.ActionCreate,
		Resource:    models.Resource{Type: "user"},
		Description: "user created",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case shipped := <-shipper.shipped:
		if shipped.ID != rec.ID {
			t.Errorf("shipped record ID = %d, want %d", shipped.ID, rec.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("record was never shipped")
	}
}

func TestFailedWriteIsNotShipped(t *testing.T) {
	shipper := &blockingShipper{shipped: make(chan *models.AuditRecord, 1)}
	r := NewRecorder(&fakeStore{err: errors.New("down")}, shipper)

	if _, err := r.Event(context.Background(), GenericEvent{
		Action:      models.ActionCreate,
		Resource:    models.Resource{Type: "user"},
		Description: "user created",
	}); err == nil {
		t.Fatal("expected error, got nil")
	}

	select {
	case <-shipper.shipped:
		t.Error("failed write must not reach the shipper")
	case <-time.After(100 * time.Millisecond):
	}
}
