package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/cloudmast/cloudmast/pkg/plans"
	"github.com/cloudmast/cloudmast/pkg/provision"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// GetResource retrieves a resource by ID
func (s *SQLiteStore) GetResource(ctx context.Context, id string) (*provision.Resource, error) {
	query := `
		SELECT id, kind, name, provider, service, backend_id, state, runtime_state,
			   region, cores, ram, disk, external_ip, internal_ip,
			   key_name, key_fingerprint, url, labels, error_message, start_time,
			   created_at, updated_at, version
		FROM resources
		WHERE id = ?
	`

	r, err := scanResource(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, provision.NewNotFoundError("resource not found", nil).WithResource(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return r, nil
}

// SaveResource inserts or updates a resource
func (s *SQLiteStore) SaveResource(ctx context.Context, r *provision.Resource) error {
	labels, err := marshalJSON(r.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `
		INSERT INTO resources (
			id, kind, name, provider, service, backend_id, state, runtime_state,
			region, cores, ram, disk, external_ip, internal_ip,
			key_name, key_fingerprint, url, labels, error_message, start_time,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			backend_id = excluded.backend_id,
			state = excluded.state,
			runtime_state = excluded.runtime_state,
			region = excluded.region,
			cores = excluded.cores,
			ram = excluded.ram,
			disk = excluded.disk,
			external_ip = excluded.external_ip,
			internal_ip = excluded.internal_ip,
			key_name = excluded.key_name,
			key_fingerprint = excluded.key_fingerprint,
			url = excluded.url,
			labels = excluded.labels,
			error_message = excluded.error_message,
			start_time = excluded.start_time,
			updated_at = excluded.updated_at,
			version = excluded.version
	`

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Kind, r.Name, r.Provider, r.Service, r.BackendID, r.State, r.RuntimeState,
		r.Region, r.Cores, r.RAM, r.Disk, r.ExternalIP, r.InternalIP,
		r.KeyName, r.KeyFingerprint, r.URL, labels, r.ErrorMessage, r.StartTime,
		r.CreatedAt, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

// DeleteResource deletes a resource by ID
func (s *SQLiteStore) DeleteResource(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return provision.NewNotFoundError("resource not found", nil).WithResource(id)
	}
	return nil
}

// ListResources lists resources, optionally filtered by service
func (s *SQLiteStore) ListResources(ctx context.Context, service string) ([]provision.Resource, error) {
	query := `
		SELECT id, kind, name, provider, service, backend_id, state, runtime_state,
			   region, cores, ram, disk, external_ip, internal_ip,
			   key_name, key_fingerprint, url, labels, error_message, start_time,
			   created_at, updated_at, version
		FROM resources
		WHERE (? = '' OR service = ?)
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, service, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	resources := []provision.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return resources, nil
}

// CreateOperation records a new running operation. A second non-terminal
// operation for the same resource is rejected with a conflict error.
func (s *SQLiteStore) CreateOperation(ctx context.Context, op *provision.Operation) error {
	opErr, err := marshalJSON(op.Error)
	if err != nil {
		return fmt.Errorf("failed to encode operation error: %w", err)
	}

	query := `
		INSERT INTO operations (id, resource_id, kind, status, action_id, attempts, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		op.ID, op.ResourceID, op.Kind, op.Status, op.ActionID, op.Attempts, opErr, op.StartedAt, op.CompletedAt,
	)
	if err != nil {
		// The partial unique index on running operations enforces the
		// single-flight invariant at the database level.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return provision.NewConflictError("resource has an operation in flight", nil).
				WithCode(provision.ErrCodeOperationActive).
				WithResource(op.ResourceID)
		}
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

// CompleteOperation persists the terminal status of an operation
func (s *SQLiteStore) CompleteOperation(ctx context.Context, op *provision.Operation) error {
	opErr, err := marshalJSON(op.Error)
	if err != nil {
		return fmt.Errorf("failed to encode operation error: %w", err)
	}

	query := `
		UPDATE operations
		SET status = ?, action_id = ?, attempts = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, op.Status, op.ActionID, op.Attempts, opErr, op.CompletedAt, op.ID)
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return provision.NewNotFoundError("operation not found", nil).WithDetail("operation_id", op.ID)
	}
	return nil
}

// ActiveOperation returns the non-terminal operation for a resource, or nil
func (s *SQLiteStore) ActiveOperation(ctx context.Context, resourceID string) (*provision.Operation, error) {
	query := `
		SELECT id, resource_id, kind, status, action_id, attempts, error, started_at, completed_at
		FROM operations
		WHERE resource_id = ? AND status = 'running'
	`

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, resourceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active operation: %w", err)
	}
	return op, nil
}

// ListOperations lists the operation history for a resource
func (s *SQLiteStore) ListOperations(ctx context.Context, resourceID string, limit, offset int) ([]*provision.Operation, error) {
	query := `
		SELECT id, resource_id, kind, status, action_id, attempts, error, started_at, completed_at
		FROM operations
		WHERE resource_id = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, resourceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*provision.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}

// OpenAlert opens an alert, idempotently. Returns nil when an alert of
// the same kind is already open for the service.
func (s *SQLiteStore) OpenAlert(ctx context.Context, kind provision.AlertKind, service, message string) (*provision.Alert, error) {
	alert := &provision.Alert{
		ID:       uuid.New().String(),
		Kind:     kind,
		Service:  service,
		Message:  message,
		OpenedAt: time.Now(),
	}

	query := `
		INSERT INTO alerts (id, kind, service, message, opened_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, alert.ID, alert.Kind, alert.Service, alert.Message, alert.OpenedAt)
	if err != nil {
		// The partial unique index allows one open alert per kind and
		// service; a violation means the alert already exists.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open alert: %w", err)
	}
	return alert, nil
}

// CloseAlert closes the open alert of the given kind for the service.
// Returns the closed alert, or nil when none was open.
func (s *SQLiteStore) CloseAlert(ctx context.Context, kind provision.AlertKind, service string) (*provision.Alert, error) {
	query := `
		UPDATE alerts
		SET closed_at = ?
		WHERE kind = ? AND service = ? AND closed_at IS NULL
		RETURNING id, kind, service, message, opened_at, closed_at
	`

	alert := &provision.Alert{}
	err := s.db.QueryRowContext(ctx, query, time.Now(), kind, service).Scan(
		&alert.ID, &alert.Kind, &alert.Service, &alert.Message, &alert.OpenedAt, &alert.ClosedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close alert: %w", err)
	}
	return alert, nil
}

// OpenAlerts lists open alerts, optionally filtered by service
func (s *SQLiteStore) OpenAlerts(ctx context.Context, service string) ([]provision.Alert, error) {
	query := `
		SELECT id, kind, service, message, opened_at, closed_at
		FROM alerts
		WHERE closed_at IS NULL AND (? = '' OR service = ?)
		ORDER BY opened_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, service, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []provision.Alert{}
	for rows.Next() {
		alert := provision.Alert{}
		err := rows.Scan(&alert.ID, &alert.Kind, &alert.Service, &alert.Message, &alert.OpenedAt, &alert.ClosedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// ReplaceProperties swaps the vendor catalog for a service in one
// transaction.
func (s *SQLiteStore) ReplaceProperties(ctx context.Context, service string, props *provision.Properties) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"regions", "images", "sizes"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE service = ?", service); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, region := range props.Regions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO regions (service, backend_id, name) VALUES (?, ?, ?)`,
			service, region.BackendID, region.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to insert region: %w", err)
		}
	}

	for _, image := range props.Images {
		regions, err := marshalJSON(image.Regions)
		if err != nil {
			return fmt.Errorf("failed to encode image regions: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO images (service, backend_id, name, distribution, type, regions) VALUES (?, ?, ?, ?, ?, ?)`,
			service, image.BackendID, image.Name, image.Distribution, image.Type, regions,
		)
		if err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
	}

	for _, size := range props.Sizes {
		regions, err := marshalJSON(size.Regions)
		if err != nil {
			return fmt.Errorf("failed to encode size regions: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sizes (service, backend_id, name, cores, ram, disk, transfer, hourly_price, regions)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			service, size.BackendID, size.Name, size.Cores, size.RAM, size.Disk, size.Transfer, size.HourlyPrice, regions,
		)
		if err != nil {
			return fmt.Errorf("failed to insert size: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

// Properties returns the stored vendor catalog for a service
func (s *SQLiteStore) Properties(ctx context.Context, service string) (*provision.Properties, error) {
	props := &provision.Properties{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT backend_id, name FROM regions WHERE service = ? ORDER BY name ASC`, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	for rows.Next() {
		region := provision.Region{}
		if err := rows.Scan(&region.BackendID, &region.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		props.Regions = append(props.Regions, region)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regions: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT backend_id, name, distribution, type, regions FROM images WHERE service = ? ORDER BY name ASC`, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	for rows.Next() {
		image := provision.Image{}
		var regions sql.NullString
		if err := rows.Scan(&image.BackendID, &image.Name, &image.Distribution, &image.Type, &regions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		if err := unmarshalJSON(regions, &image.Regions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode image regions: %w", err)
		}
		props.Images = append(props.Images, image)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT backend_id, name, cores, ram, disk, transfer, hourly_price, regions FROM sizes WHERE service = ? ORDER BY name ASC`, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list sizes: %w", err)
	}
	for rows.Next() {
		size := provision.Size{}
		var regions sql.NullString
		if err := rows.Scan(&size.BackendID, &size.Name, &size.Cores, &size.RAM, &size.Disk, &size.Transfer, &size.HourlyPrice, &regions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan size: %w", err)
		}
		if err := unmarshalJSON(regions, &size.Regions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode size regions: %w", err)
		}
		props.Sizes = append(props.Sizes, size)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sizes: %w", err)
	}

	return props, nil
}

// GetPlan retrieves a plan by ID
func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*plans.Plan, error) {
	query := `
		SELECT id, name, monthly_price, quotas, is_default, archived, created_at, updated_at
		FROM plans
		WHERE id = ?
	`

	p, err := scanPlan(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, provision.NewNotFoundError("plan not found", nil).WithDetail("plan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// ListPlans lists plans, excluding archived ones unless asked
func (s *SQLiteStore) ListPlans(ctx context.Context, includeArchived bool) ([]plans.Plan, error) {
	query := `
		SELECT id, name, monthly_price, quotas, is_default, archived, created_at, updated_at
		FROM plans
		WHERE (? OR archived = 0)
		ORDER BY monthly_price ASC
	`

	rows, err := s.db.QueryContext(ctx, query, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	out := []plans.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return out, nil
}

// SavePlan inserts or updates a plan
func (s *SQLiteStore) SavePlan(ctx context.Context, p *plans.Plan) error {
	quotas, err := marshalJSON(p.Quotas)
	if err != nil {
		return fmt.Errorf("failed to encode quotas: %w", err)
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO plans (id, name, monthly_price, quotas, is_default, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			monthly_price = excluded.monthly_price,
			quotas = excluded.quotas,
			is_default = excluded.is_default,
			archived = excluded.archived,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.MonthlyPrice, quotas, p.IsDefault, p.Archived, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// GetAgreement retrieves an agreement by ID
func (s *SQLiteStore) GetAgreement(ctx context.Context, id string) (*plans.Agreement, error) {
	query := `
		SELECT id, customer, plan_id, plan_name, plan_price, quotas, state,
			   backend_id, approval_url, error_message, created_at, updated_at
		FROM agreements
		WHERE id = ?
	`

	a, err := scanAgreement(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, provision.NewNotFoundError("agreement not found", nil).WithDetail("agreement", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	return a, nil
}

// SaveAgreement inserts or updates an agreement
func (s *SQLiteStore) SaveAgreement(ctx context.Context, a *plans.Agreement) error {
	quotas, err := marshalJSON(a.Quotas)
	if err != nil {
		return fmt.Errorf("failed to encode quotas: %w", err)
	}

	query := `
		INSERT INTO agreements (
			id, customer, plan_id, plan_name, plan_price, quotas, state,
			backend_id, approval_url, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			backend_id = excluded.backend_id,
			approval_url = excluded.approval_url,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.Customer, a.PlanID, a.PlanName, a.PlanPrice, quotas, a.State,
		a.BackendID, a.ApprovalURL, a.ErrorMessage, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save agreement: %w", err)
	}
	return nil
}

// ActiveAgreement returns the customer's active agreement, or nil
func (s *SQLiteStore) ActiveAgreement(ctx context.Context, customer string) (*plans.Agreement, error) {
	query := `
		SELECT id, customer, plan_id, plan_name, plan_price, quotas, state,
			   backend_id, approval_url, error_message, created_at, updated_at
		FROM agreements
		WHERE customer = ? AND state = 'active'
	`

	a, err := scanAgreement(s.db.QueryRowContext(ctx, query, customer))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active agreement: %w", err)
	}
	return a, nil
}

// ListAgreements lists a customer's agreements
func (s *SQLiteStore) ListAgreements(ctx context.Context, customer string) ([]plans.Agreement, error) {
	query := `
		SELECT id, customer, plan_id, plan_name, plan_price, quotas, state,
			   backend_id, approval_url, error_message, created_at, updated_at
		FROM agreements
		WHERE customer = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	defer rows.Close()

	out := []plans.Agreement{}
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agreement: %w", err)
		}
		out = append(out, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agreements: %w", err)
	}
	return out, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (event_type, resource_id, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.EventType,
		event.ResourceID,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) GetEvents(ctx context.Context, resourceID *string, eventType *string, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, event_type, resource_id, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR resource_id = ?)
		  AND (? IS NULL OR event_type = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, resourceID, resourceID, eventType, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.ResourceID,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (action, actor, target_id, details, ip_address, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.TargetID,
		entry.Details,
		entry.IPAddress,
		entry.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries with optional filters and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, target_id, details, ip_address, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR actor = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&entry.IPAddress,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row scanner) (*provision.Resource, error) {
	r := &provision.Resource{}
	var labels sql.NullString
	err := row.Scan(
		&r.ID, &r.Kind, &r.Name, &r.Provider, &r.Service, &r.BackendID, &r.State, &r.RuntimeState,
		&r.Region, &r.Cores, &r.RAM, &r.Disk, &r.ExternalIP, &r.InternalIP,
		&r.KeyName, &r.KeyFingerprint, &r.URL, &labels, &r.ErrorMessage, &r.StartTime,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(labels, &r.Labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return r, nil
}

func scanOperation(row scanner) (*provision.Operation, error) {
	op := &provision.Operation{}
	var opErr sql.NullString
	err := row.Scan(
		&op.ID, &op.ResourceID, &op.Kind, &op.Status, &op.ActionID, &op.Attempts, &opErr, &op.StartedAt, &op.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(opErr, &op.Error); err != nil {
		return nil, fmt.Errorf("failed to decode operation error: %w", err)
	}
	return op, nil
}

func scanPlan(row scanner) (*plans.Plan, error) {
	p := &plans.Plan{}
	var quotas sql.NullString
	err := row.Scan(
		&p.ID, &p.Name, &p.MonthlyPrice, &quotas, &p.IsDefault, &p.Archived, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(quotas, &p.Quotas); err != nil {
		return nil, fmt.Errorf("failed to decode quotas: %w", err)
	}
	return p, nil
}

func scanAgreement(row scanner) (*plans.Agreement, error) {
	a := &plans.Agreement{}
	var quotas sql.NullString
	err := row.Scan(
		&a.ID, &a.Customer, &a.PlanID, &a.PlanName, &a.PlanPrice, &quotas, &a.State,
		&a.BackendID, &a.ApprovalURL, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(quotas, &a.Quotas); err != nil {
		return nil, fmt.Errorf("failed to decode quotas: %w", err)
	}
	return a, nil
}

// marshalJSON encodes v to a nullable JSON column value. Nil and empty
// values map to NULL.
func marshalJSON(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(data)
	if str == "null" || str == "{}" || str == "[]" {
		return nil, nil
	}
	return &str, nil
}

// unmarshalJSON decodes a nullable JSON column into out, leaving out
// untouched for NULL.
func unmarshalJSON(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), out)
}
