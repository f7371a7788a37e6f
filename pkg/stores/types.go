package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/cloudmast/cloudmast/pkg/plans"
	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Event represents an append-only platform event
type Event struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"event_type"`
	ResourceID *string   `json:"resource_id,omitempty"`
	Message    string    `json:"message"`
	Details    *string   `json:"details,omitempty"` // JSON blob
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g., "resource.provisioned", "agreement.activated"
	Actor     string    `json:"actor"`               // user or system identifier
	TargetID  *string   `json:"target_id,omitempty"` // resource/agreement/etc ID
	Details   *string   `json:"details,omitempty"`   // JSON blob
	IPAddress *string   `json:"ip_address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Resource operations
	GetResource(ctx context.Context, id string) (*provision.Resource, error)
	SaveResource(ctx context.Context, r *provision.Resource) error
	DeleteResource(ctx context.Context, id string) error
	ListResources(ctx context.Context, service string) ([]provision.Resource, error)

	// Operation ledger
	CreateOperation(ctx context.Context, op *provision.Operation) error
	CompleteOperation(ctx context.Context, op *provision.Operation) error
	ActiveOperation(ctx context.Context, resourceID string) (*provision.Operation, error)
	ListOperations(ctx context.Context, resourceID string, limit, offset int) ([]*provision.Operation, error)

	// Alerts
	OpenAlert(ctx context.Context, kind provision.AlertKind, service, message string) (*provision.Alert, error)
	CloseAlert(ctx context.Context, kind provision.AlertKind, service string) (*provision.Alert, error)
	OpenAlerts(ctx context.Context, service string) ([]provision.Alert, error)

	// Vendor catalog
	ReplaceProperties(ctx context.Context, service string, props *provision.Properties) error
	Properties(ctx context.Context, service string) (*provision.Properties, error)

	// Plans and agreements
	GetPlan(ctx context.Context, id string) (*plans.Plan, error)
	ListPlans(ctx context.Context, includeArchived bool) ([]plans.Plan, error)
	SavePlan(ctx context.Context, p *plans.Plan) error
	GetAgreement(ctx context.Context, id string) (*plans.Agreement, error)
	SaveAgreement(ctx context.Context, a *plans.Agreement) error
	ActiveAgreement(ctx context.Context, customer string) (*plans.Agreement, error)
	ListAgreements(ctx context.Context, customer string) ([]plans.Agreement, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, resourceID *string, eventType *string, limit, offset int) ([]*Event, error)

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
