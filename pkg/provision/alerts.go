package provision

import (
	"context"
	"time"
)

// AlertKind discriminates alert types raised by compensating actions.
type AlertKind string

const (
	// AlertTokenScope is raised when a service's credentials turn out to
	// be read-only or otherwise insufficient for a lifecycle operation.
	AlertTokenScope AlertKind = "token_scope"

	// AlertServiceUnreachable is raised when a service fails its ping.
	AlertServiceUnreachable AlertKind = "service_unreachable"
)

// Alert is a persistent, service-scoped warning. An alert is opened by a
// recoverable error classification and closed again by the first
// successful operation, independent of the main success/failure path.
type Alert struct {
	// ID is the unique alert identifier.
	ID string `json:"id"`

	// Kind is the alert kind.
	Kind AlertKind `json:"kind"`

	// Service is the configured service the alert applies to.
	Service string `json:"service"`

	// Message is the human-readable alert text.
	Message string `json:"message"`

	// OpenedAt is when the alert was first opened.
	OpenedAt time.Time `json:"opened_at"`

	// ClosedAt is when the alert was closed, nil while open.
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the alert is still open.
func (a *Alert) Open() bool {
	return a.ClosedAt == nil
}

// AlertStore is the persistence contract for alerts. Opening an already
// open alert of the same kind and service is a no-op; closing an alert
// that is not open is a no-op.
type AlertStore interface {
	// OpenAlert opens (or re-opens) an alert, idempotently.
	OpenAlert(ctx context.Context, kind AlertKind, service, message string) (*Alert, error)

	// CloseAlert closes the open alert of the given kind for the service,
	// if one exists. Returns the closed alert or nil.
	CloseAlert(ctx context.Context, kind AlertKind, service string) (*Alert, error)

	// OpenAlerts lists all open alerts, optionally filtered by service.
	OpenAlerts(ctx context.Context, service string) ([]Alert, error)
}

// Alerter raises and clears alerts as compensating actions around
// lifecycle operations.
type Alerter struct {
	store  AlertStore
	events EventSink
}

// NewAlerter creates an alerter backed by the given store.
func NewAlerter(store AlertStore, events EventSink) *Alerter {
	return &Alerter{store: store, events: events}
}

// OpenTokenScope opens the token scope alert for a service.
func (a *Alerter) OpenTokenScope(ctx context.Context, service string, cause error) {
	if a == nil || a.store == nil {
		return
	}
	msg := "service token does not allow write operations"
	if cause != nil {
		msg = cause.Error()
	}
	alert, err := a.store.OpenAlert(ctx, AlertTokenScope, service, msg)
	if err != nil || alert == nil {
		return
	}
	a.emit(ctx, EventAlertOpened, service, msg)
}

// CloseTokenScope closes the token scope alert for a service, if open.
func (a *Alerter) CloseTokenScope(ctx context.Context, service string) {
	if a == nil || a.store == nil {
		return
	}
	alert, err := a.store.CloseAlert(ctx, AlertTokenScope, service)
	if err != nil || alert == nil {
		return
	}
	a.emit(ctx, EventAlertClosed, service, "service token scope restored")
}

func (a *Alerter) emit(ctx context.Context, eventType, service, message string) {
	if a.events == nil {
		return
	}
	a.events.Emit(ctx, eventType, "", message, map[string]interface{}{"service": service})
}
