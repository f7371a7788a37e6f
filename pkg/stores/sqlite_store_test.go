package stores

import (
	"context"
	"testing"
	"time"

	"github.com/cloudmast/cloudmast/pkg/plans"
	"github.com/cloudmast/cloudmast/pkg/provision"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"resources", "operations", "alerts", "regions", "images", "sizes", "plans", "agreements", "events", "audit"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func testResource(id string) *provision.Resource {
	return &provision.Resource{
		ID:       id,
		Kind:     provision.KindMachine,
		Name:     "web-1",
		Provider: "digitalocean",
		Service:  "do-prod",
		State:    provision.StateCreated,
		Region:   "ams3",
		Cores:    1,
		RAM:      1024,
		Disk:     25600,
		Labels:   map[string]string{"env": "test"},
	}
}

// TestResourceCRUD tests resource save, load, update and delete
func TestResourceCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	r := testResource("res-001")
	if err := store.SaveResource(ctx, r); err != nil {
		t.Fatalf("failed to save resource: %v", err)
	}

	retrieved, err := store.GetResource(ctx, "res-001")
	if err != nil {
		t.Fatalf("failed to get resource: %v", err)
	}
	if retrieved.Name != r.Name {
		t.Errorf("expected name %s, got %s", r.Name, retrieved.Name)
	}
	if retrieved.State != provision.StateCreated {
		t.Errorf("expected state created, got %s", retrieved.State)
	}
	if retrieved.Labels["env"] != "test" {
		t.Errorf("labels not round-tripped: %v", retrieved.Labels)
	}

	// Update through the same upsert path
	retrieved.BackendID = "vm-1"
	retrieved.State = provision.StateOnline
	now := time.Now()
	retrieved.StartTime = &now
	retrieved.Version++
	if err := store.SaveResource(ctx, retrieved); err != nil {
		t.Fatalf("failed to update resource: %v", err)
	}

	updated, err := store.GetResource(ctx, "res-001")
	if err != nil {
		t.Fatalf("failed to get updated resource: %v", err)
	}
	if updated.BackendID != "vm-1" || updated.State != provision.StateOnline {
		t.Errorf("update not persisted: %s/%s", updated.BackendID, updated.State)
	}
	if updated.StartTime == nil {
		t.Error("start time not persisted")
	}

	// List by service
	listed, err := store.ListResources(ctx, "do-prod")
	if err != nil {
		t.Fatalf("failed to list resources: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("expected 1 resource, got %d", len(listed))
	}

	// Delete
	if err := store.DeleteResource(ctx, "res-001"); err != nil {
		t.Fatalf("failed to delete resource: %v", err)
	}
	if _, err := store.GetResource(ctx, "res-001"); !provision.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := store.DeleteResource(ctx, "res-001"); !provision.IsNotFound(err) {
		t.Errorf("expected not found for second delete, got %v", err)
	}
}

// TestOperationLedger tests the single-flight operation ledger
func TestOperationLedger(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	op := &provision.Operation{
		ID:         "op-001",
		ResourceID: "res-001",
		Kind:       provision.OpProvision,
		Status:     provision.OperationStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := store.CreateOperation(ctx, op); err != nil {
		t.Fatalf("failed to create operation: %v", err)
	}

	// A second running operation for the same resource is a conflict
	dup := &provision.Operation{
		ID:         "op-002",
		ResourceID: "res-001",
		Kind:       provision.OpStart,
		Status:     provision.OperationStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := store.CreateOperation(ctx, dup); !provision.IsConflict(err) {
		t.Errorf("expected conflict for second running operation, got %v", err)
	}

	active, err := store.ActiveOperation(ctx, "res-001")
	if err != nil {
		t.Fatalf("failed to get active operation: %v", err)
	}
	if active == nil || active.ID != "op-001" {
		t.Fatalf("expected op-001 active, got %+v", active)
	}

	// Complete and verify the slot frees up
	now := time.Now()
	op.Status = provision.OperationStatusFailed
	op.Attempts = 7
	op.CompletedAt = &now
	op.Error = provision.NewPermanentError("poll budget exhausted", nil).WithCode(provision.ErrCodePollExhausted)
	if err := store.CompleteOperation(ctx, op); err != nil {
		t.Fatalf("failed to complete operation: %v", err)
	}

	active, err = store.ActiveOperation(ctx, "res-001")
	if err != nil {
		t.Fatalf("failed to get active operation: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active operation, got %+v", active)
	}

	if err := store.CreateOperation(ctx, dup); err != nil {
		t.Errorf("operation should be accepted after previous one settled: %v", err)
	}

	// History preserves the recorded failure
	history, err := store.ListOperations(ctx, "res-001", 10, 0)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(history))
	}
	var failed *provision.Operation
	for _, h := range history {
		if h.ID == "op-001" {
			failed = h
		}
	}
	if failed == nil || failed.Error == nil {
		t.Fatal("failed operation should carry its error")
	}
	if failed.Error.Code != provision.ErrCodePollExhausted {
		t.Errorf("error code not round-tripped: %s", failed.Error.Code)
	}
	if failed.Attempts != 7 {
		t.Errorf("attempts not round-tripped: %d", failed.Attempts)
	}
}

// TestAlerts tests idempotent alert open and close
func TestAlerts(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	alert, err := store.OpenAlert(ctx, provision.AlertTokenScope, "do-prod", "read-only token")
	if err != nil {
		t.Fatalf("failed to open alert: %v", err)
	}
	if alert == nil {
		t.Fatal("first open should return the alert")
	}

	// Opening again is a no-op
	again, err := store.OpenAlert(ctx, provision.AlertTokenScope, "do-prod", "still read-only")
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if again != nil {
		t.Error("second open should be a no-op")
	}

	open, err := store.OpenAlerts(ctx, "do-prod")
	if err != nil {
		t.Fatalf("failed to list alerts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open alert, got %d", len(open))
	}

	closed, err := store.CloseAlert(ctx, provision.AlertTokenScope, "do-prod")
	if err != nil {
		t.Fatalf("failed to close alert: %v", err)
	}
	if closed == nil || closed.ClosedAt == nil {
		t.Fatal("close should return the closed alert")
	}

	// Closing again is a no-op
	closed, err = store.CloseAlert(ctx, provision.AlertTokenScope, "do-prod")
	if err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if closed != nil {
		t.Error("second close should be a no-op")
	}

	// A fresh alert can be opened after closing
	alert, err = store.OpenAlert(ctx, provision.AlertTokenScope, "do-prod", "revoked again")
	if err != nil {
		t.Fatalf("failed to reopen alert: %v", err)
	}
	if alert == nil {
		t.Error("reopen after close should create a new alert")
	}
}

// TestProperties tests the vendor catalog swap
func TestProperties(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	props := &provision.Properties{
		Regions: []provision.Region{
			{BackendID: "ams3", Name: "Amsterdam 3"},
			{BackendID: "nyc1", Name: "New York 1"},
		},
		Images: []provision.Image{
			{BackendID: "img-1", Name: "Ubuntu 24.04", Distribution: "Ubuntu", Regions: []string{"ams3", "nyc1"}},
		},
		Sizes: []provision.Size{
			{BackendID: "s-1vcpu-1gb", Name: "s-1vcpu-1gb", Cores: 1, RAM: 1024, Disk: 25600, HourlyPrice: 0.00893},
		},
	}
	if err := store.ReplaceProperties(ctx, "do-prod", props); err != nil {
		t.Fatalf("failed to replace properties: %v", err)
	}

	got, err := store.Properties(ctx, "do-prod")
	if err != nil {
		t.Fatalf("failed to get properties: %v", err)
	}
	if len(got.Regions) != 2 || len(got.Images) != 1 || len(got.Sizes) != 1 {
		t.Fatalf("catalog counts wrong: %d/%d/%d", len(got.Regions), len(got.Images), len(got.Sizes))
	}
	if len(got.Images[0].Regions) != 2 {
		t.Errorf("image regions not round-tripped: %v", got.Images[0].Regions)
	}

	// A second sync replaces the catalog wholesale
	if err := store.ReplaceProperties(ctx, "do-prod", &provision.Properties{
		Regions: []provision.Region{{BackendID: "fra1", Name: "Frankfurt 1"}},
	}); err != nil {
		t.Fatalf("failed to replace properties again: %v", err)
	}

	got, err = store.Properties(ctx, "do-prod")
	if err != nil {
		t.Fatalf("failed to get properties: %v", err)
	}
	if len(got.Regions) != 1 || got.Regions[0].BackendID != "fra1" {
		t.Errorf("old catalog should be gone: %+v", got.Regions)
	}
	if len(got.Images) != 0 || len(got.Sizes) != 0 {
		t.Errorf("old images/sizes should be gone: %d/%d", len(got.Images), len(got.Sizes))
	}
}

// TestPlanCRUD tests plan persistence
func TestPlanCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	plan := &plans.Plan{
		ID:           "plan-small",
		Name:         "Small",
		MonthlyPrice: 19.99,
		Quotas: []plans.Quota{
			{Name: "resource_count", Value: 10},
			{Name: "ram", Value: 16384},
		},
		IsDefault: true,
	}
	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("failed to save plan: %v", err)
	}

	retrieved, err := store.GetPlan(ctx, "plan-small")
	if err != nil {
		t.Fatalf("failed to get plan: %v", err)
	}
	if retrieved.MonthlyPrice != 19.99 || len(retrieved.Quotas) != 2 {
		t.Errorf("plan not round-tripped: %+v", retrieved)
	}
	if v, ok := retrieved.Quota("ram"); !ok || v != 16384 {
		t.Errorf("quota lookup failed: %d %v", v, ok)
	}

	// Archived plans are hidden by default
	plan.Archived = true
	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("failed to archive plan: %v", err)
	}

	visible, err := store.ListPlans(ctx, false)
	if err != nil {
		t.Fatalf("failed to list plans: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("archived plan should be hidden, got %d", len(visible))
	}

	all, err := store.ListPlans(ctx, true)
	if err != nil {
		t.Fatalf("failed to list all plans: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 plan including archived, got %d", len(all))
	}
}

// TestAgreementCRUD tests agreement persistence and the active lookup
func TestAgreementCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	plan := &plans.Plan{ID: "plan-small", Name: "Small", MonthlyPrice: 19.99,
		Quotas: []plans.Quota{{Name: "resource_count", Value: 10}}}

	a := plans.NewAgreement("agr-001", "acme", plan)
	if err := store.SaveAgreement(ctx, a); err != nil {
		t.Fatalf("failed to save agreement: %v", err)
	}

	retrieved, err := store.GetAgreement(ctx, "agr-001")
	if err != nil {
		t.Fatalf("failed to get agreement: %v", err)
	}
	if retrieved.State != plans.AgreementCreated || retrieved.PlanName != "Small" {
		t.Errorf("agreement not round-tripped: %+v", retrieved)
	}
	if len(retrieved.Quotas) != 1 {
		t.Errorf("quota snapshot not round-tripped: %v", retrieved.Quotas)
	}

	// No active agreement yet
	active, err := store.ActiveAgreement(ctx, "acme")
	if err != nil {
		t.Fatalf("failed to get active agreement: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active agreement, got %+v", active)
	}

	retrieved.State = plans.AgreementActive
	retrieved.BackendID = "bill-001"
	if err := store.SaveAgreement(ctx, retrieved); err != nil {
		t.Fatalf("failed to update agreement: %v", err)
	}

	active, err = store.ActiveAgreement(ctx, "acme")
	if err != nil {
		t.Fatalf("failed to get active agreement: %v", err)
	}
	if active == nil || active.ID != "agr-001" {
		t.Fatalf("expected agr-001 active, got %+v", active)
	}

	listed, err := store.ListAgreements(ctx, "acme")
	if err != nil {
		t.Fatalf("failed to list agreements: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("expected 1 agreement, got %d", len(listed))
	}
}

// TestEventLog tests the append-only event log
func TestEventLog(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	resourceID := "res-001"
	details := `{"operation":"provision"}`

	event := &Event{
		EventType:  "operation.started",
		ResourceID: &resourceID,
		Message:    "provision started",
		Details:    &details,
		Timestamp:  time.Now(),
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if event.ID == 0 {
		t.Error("event ID should be assigned")
	}

	other := &Event{
		EventType: "sync.completed",
		Message:   "sync completed",
		Timestamp: time.Now(),
	}
	if err := store.AppendEvent(ctx, other); err != nil {
		t.Fatalf("failed to append second event: %v", err)
	}

	// Filter by resource
	events, err := store.GetEvents(ctx, &resourceID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 || events[0].Message != "provision started" {
		t.Errorf("resource filter wrong: %+v", events)
	}

	// Filter by type
	eventType := "sync.completed"
	events, err = store.GetEvents(ctx, nil, &eventType, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events by type: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "sync.completed" {
		t.Errorf("type filter wrong: %+v", events)
	}
}

// TestAuditTrail tests the audit log
func TestAuditTrail(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	targetID := "res-001"

	entry := &AuditEntry{
		Action:    "resource.provisioned",
		Actor:     "ops@example.com",
		TargetID:  &targetID,
		Timestamp: time.Now(),
	}
	if err := store.CreateAuditEntry(ctx, entry); err != nil {
		t.Fatalf("failed to create audit entry: %v", err)
	}
	if entry.ID == 0 {
		t.Error("audit entry ID should be assigned")
	}

	action := "resource.provisioned"
	entries, err := store.ListAuditEntries(ctx, &action, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "ops@example.com" {
		t.Errorf("audit filter wrong: %+v", entries)
	}
}
