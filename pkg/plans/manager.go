package plans

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Store is the persistence surface the manager needs.
type Store interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context, includeArchived bool) ([]Plan, error)
	SavePlan(ctx context.Context, p *Plan) error

	GetAgreement(ctx context.Context, id string) (*Agreement, error)
	SaveAgreement(ctx context.Context, a *Agreement) error

	// ActiveAgreement returns the customer's active agreement, or nil.
	ActiveAgreement(ctx context.Context, customer string) (*Agreement, error)
	ListAgreements(ctx context.Context, customer string) ([]Agreement, error)
}

// BillingBackend is the external subscription vendor.
type BillingBackend interface {
	// CreateAgreement registers the subscription and returns the vendor
	// agreement token and the URL where the customer approves it.
	CreateAgreement(ctx context.Context, a *Agreement) (backendID, approvalURL string, err error)

	// ExecuteAgreement finalizes an approved subscription.
	ExecuteAgreement(ctx context.Context, backendID string) error

	// CancelAgreement stops billing for the subscription.
	CancelAgreement(ctx context.Context, backendID string) error
}

// QuotaApplier commits plan quotas to a customer's scope.
type QuotaApplier interface {
	ApplyQuotas(ctx context.Context, customer string, quotas []Quota) error
}

// Manager drives agreements through their lifecycle against the billing
// vendor, keeping at most one active agreement per customer.
type Manager struct {
	store   Store
	billing BillingBackend
	quotas  QuotaApplier
	alerts  *provision.Alerter
	events  provision.EventSink
	logger  provision.Logger
}

// billingService is the alert scope for billing vendor credentials.
const billingService = "billing"

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithQuotaApplier wires quota application on activation.
func WithQuotaApplier(q QuotaApplier) ManagerOption {
	return func(m *Manager) { m.quotas = q }
}

// WithAlerter wires the compensating alert actions around billing calls.
func WithAlerter(a *provision.Alerter) ManagerOption {
	return func(m *Manager) { m.alerts = a }
}

// WithEvents wires the event sink.
func WithEvents(e provision.EventSink) ManagerOption {
	return func(m *Manager) { m.events = e }
}

// WithLogger wires the logger.
func WithLogger(l provision.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager over the store and billing vendor.
func NewManager(store Store, billing BillingBackend, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, billing: billing}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultPlan returns the plan marked default, or nil when none is.
func (m *Manager) DefaultPlan(ctx context.Context) (*Plan, error) {
	all, err := m.store.ListPlans(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].IsDefault {
			return &all[i], nil
		}
	}
	return nil, nil
}

// ApplyDefault subscribes the customer to the catalog's default plan
// and drives the agreement all the way to active: create, submit to the
// billing vendor, approve and activate, applying the plan's quotas.
func (m *Manager) ApplyDefault(ctx context.Context, customer string) (*Agreement, error) {
	plan, err := m.DefaultPlan(ctx)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, provision.NewNotFoundError("no default plan in the catalog", nil).
			WithCode(provision.ErrCodeNotFound)
	}

	a, err := m.CreateAgreement(ctx, customer, plan.ID)
	if err != nil {
		return nil, err
	}
	if a, err = m.Submit(ctx, a.ID); err != nil {
		return nil, err
	}
	if a, err = m.Approve(ctx, a.ID); err != nil {
		return nil, err
	}
	return m.Activate(ctx, a.ID)
}

// CreateAgreement snapshots the plan into a new agreement for the
// customer. Archived plans cannot be subscribed to.
func (m *Manager) CreateAgreement(ctx context.Context, customer, planID string) (*Agreement, error) {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Archived {
		return nil, provision.NewConflictError("plan is archived", nil).
			WithCode(provision.ErrCodeValidation).
			WithDetail("plan", planID)
	}

	a := NewAgreement(uuid.New().String(), customer, plan)
	if err := m.store.SaveAgreement(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Submit pushes the agreement to the billing vendor. On success the
// agreement is pending with the vendor token and approval URL recorded;
// a billing failure moves it to erred.
func (m *Manager) Submit(ctx context.Context, agreementID string) (*Agreement, error) {
	a, err := m.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(AgreementPending); err != nil {
		return nil, err
	}

	var backendID, approvalURL string
	err = m.billingCall(ctx, func() error {
		var callErr error
		backendID, approvalURL, callErr = m.billing.CreateAgreement(ctx, a)
		return callErr
	})
	if err != nil {
		return nil, m.erred(ctx, a, err)
	}
	a.BackendID = backendID
	a.ApprovalURL = approvalURL
	if err := m.store.SaveAgreement(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Approve records the customer's vendor-side approval and executes the
// subscription.
func (m *Manager) Approve(ctx context.Context, agreementID string) (*Agreement, error) {
	a, err := m.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(AgreementApproved); err != nil {
		return nil, err
	}

	err = m.billingCall(ctx, func() error {
		return m.billing.ExecuteAgreement(ctx, a.BackendID)
	})
	if err != nil {
		return nil, m.erred(ctx, a, err)
	}
	if err := m.store.SaveAgreement(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Activate makes the approved agreement the customer's live one: any
// previously active agreement is cancelled on the vendor side first,
// then the plan quotas are applied.
func (m *Manager) Activate(ctx context.Context, agreementID string) (*Agreement, error) {
	a, err := m.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}

	previous, err := m.store.ActiveAgreement(ctx, a.Customer)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.ID != a.ID {
		if err := m.cancel(ctx, previous); err != nil {
			return nil, m.erred(ctx, a, err)
		}
	}

	if err := a.Transition(AgreementActive); err != nil {
		return nil, err
	}
	if m.quotas != nil {
		if err := m.quotas.ApplyQuotas(ctx, a.Customer, a.Quotas); err != nil {
			return nil, m.erred(ctx, a, err)
		}
	}
	if err := m.store.SaveAgreement(ctx, a); err != nil {
		return nil, err
	}
	m.emit(ctx, "agreement.activated", a)
	return a, nil
}

// Cancel stops the agreement, cancelling vendor-side billing when the
// agreement was already pushed.
func (m *Manager) Cancel(ctx context.Context, agreementID string) (*Agreement, error) {
	a, err := m.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if err := m.cancel(ctx, a); err != nil {
		return nil, err
	}
	m.emit(ctx, "agreement.cancelled", a)
	return a, nil
}

func (m *Manager) cancel(ctx context.Context, a *Agreement) error {
	if !a.State.CanTransition(AgreementCancelled) {
		return provision.NewConflictError("agreement cannot be cancelled", nil).
			WithCode(provision.ErrCodeInvalidState).
			WithDetail("state", string(a.State))
	}
	if a.BackendID != "" {
		err := m.billingCall(ctx, func() error {
			return m.billing.CancelAgreement(ctx, a.BackendID)
		})
		if err != nil {
			return m.erred(ctx, a, err)
		}
	}
	if err := a.Transition(AgreementCancelled); err != nil {
		return err
	}
	return m.store.SaveAgreement(ctx, a)
}

// billingCall runs one billing vendor call with the token-scope
// compensation: a permission-classified failure opens the alert, any
// success closes it again.
func (m *Manager) billingCall(ctx context.Context, fn func() error) error {
	err := fn()
	if provision.IsPermissionDenied(err) {
		m.alerts.OpenTokenScope(ctx, billingService, err)
		return err
	}
	if err == nil {
		m.alerts.CloseTokenScope(ctx, billingService)
	}
	return err
}

// erred persists the billing failure and returns the cause.
func (m *Manager) erred(ctx context.Context, a *Agreement, cause error) error {
	a.SetErred()
	a.ErrorMessage = cause.Error()
	if err := m.store.SaveAgreement(ctx, a); err != nil && m.logger != nil {
		m.logger.Errorf("failed to persist erred agreement %s: %v", a.ID, err)
	}
	return cause
}

func (m *Manager) emit(ctx context.Context, eventType string, a *Agreement) {
	if m.events == nil {
		return
	}
	m.events.Emit(ctx, eventType, a.ID, a.PlanName, map[string]interface{}{
		"customer": a.Customer,
		"plan":     a.PlanID,
	})
}
