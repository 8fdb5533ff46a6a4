package models

import "testing"

func TestActionKnown(t *testing.T) {
	for _, a := range KnownActions {
		if !a.Known() {
			t.Errorf("Known() = false for %s, want true", a)
		}
	}
	if Action("WAREHOUSE_MOVED").Known() {
		t.Error("Known() = true for WAREHOUSE_MOVED, want false")
	}
	if Action("").Known() {
		t.Error("Known() = true for empty action, want false")
	}
}

func TestAuditRecordInputValidate(t *testing.T) {
	valid := AuditRecordInput{
		Action:      ActionDispatch,
		Resource:    Resource{Type: "product"},
		Description: "someone dispatched something",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*AuditRecordInput)
		wantErr error
	}{
		{"empty action", func(in *AuditRecordInput) { in.Action = "" }, ErrEmptyAction},
		{"empty resource type", func(in *AuditRecordInput) { in.Resource.Type = "" }, ErrEmptyResourceType},
		{"empty description", func(in *AuditRecordInput) { in.Description = "" }, ErrEmptyDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if err := in.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsUnknownAction(t *testing.T) {
	in := AuditRecordInput{
		Action:      "SERVICE_START",
		Resource:    Resource{Type: "service"},
		Description: "service started",
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error for unknown action: %v", err)
	}
}
