// Package plans implements billing plans and customer agreements. A plan
// bundles a monthly price with quota limits; an agreement subscribes a
// customer to a plan through an external billing vendor and applies the
// plan's quotas once the subscription is active.
package plans

import (
	"time"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Quota is one named limit carried by a plan.
type Quota struct {
	// Name identifies the limited dimension (e.g. "nc_resource_count").
	Name string `json:"name"`

	// Value is the limit. -1 means unlimited.
	Value int64 `json:"value"`
}

// Plan is a priced bundle of quotas offered to customers.
type Plan struct {
	// ID is the unique plan identifier.
	ID string `json:"id"`

	// Name is the human-readable plan name.
	Name string `json:"name"`

	// MonthlyPrice is the subscription price per month.
	MonthlyPrice float64 `json:"monthly_price"`

	// Quotas are the limits this plan grants.
	Quotas []Quota `json:"quotas"`

	// IsDefault marks the plan assigned to customers without an
	// agreement. At most one plan is default.
	IsDefault bool `json:"is_default"`

	// Archived plans are kept for existing agreements but not offered to
	// new ones.
	Archived bool `json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quota returns the named quota value and whether the plan carries it.
func (p *Plan) Quota(name string) (int64, bool) {
	for _, q := range p.Quotas {
		if q.Name == name {
			return q.Value, true
		}
	}
	return 0, false
}

// AgreementState is the lifecycle state of a plan agreement.
type AgreementState string

const (
	// AgreementCreated is the initial state before the billing vendor
	// knows about the agreement.
	AgreementCreated AgreementState = "created"

	// AgreementPending means the vendor accepted the agreement and is
	// waiting for customer approval.
	AgreementPending AgreementState = "pending"

	// AgreementApproved means the customer approved the subscription on
	// the vendor side.
	AgreementApproved AgreementState = "approved"

	// AgreementActive means the subscription is live and the plan quotas
	// are applied.
	AgreementActive AgreementState = "active"

	// AgreementCancelled is terminal.
	AgreementCancelled AgreementState = "cancelled"

	// AgreementErred records a billing failure.
	AgreementErred AgreementState = "erred"
)

// agreementEdges lists the permitted agreement transitions.
var agreementEdges = map[AgreementState][]AgreementState{
	AgreementCreated:  {AgreementPending},
	AgreementPending:  {AgreementApproved, AgreementCancelled},
	AgreementApproved: {AgreementActive, AgreementCancelled},
	AgreementActive:   {AgreementCancelled},
}

// CanTransition reports whether moving from s to target is permitted.
// Erred is reachable from every non-terminal state.
func (s AgreementState) CanTransition(target AgreementState) bool {
	if target == AgreementErred {
		return s != AgreementCancelled && s != AgreementErred
	}
	for _, next := range agreementEdges[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the agreement can change no further.
func (s AgreementState) IsTerminal() bool {
	return s == AgreementCancelled
}

// Agreement subscribes a customer to a plan. The plan's name, price and
// quotas are snapshotted at creation time so later plan edits do not
// change what the customer signed up for.
type Agreement struct {
	// ID is the unique agreement identifier.
	ID string `json:"id"`

	// Customer identifies the subscribing customer.
	Customer string `json:"customer"`

	// PlanID references the plan this agreement was created from.
	PlanID string `json:"plan_id"`

	// PlanName, PlanPrice and Quotas are the snapshot taken at creation.
	PlanName  string  `json:"plan_name"`
	PlanPrice float64 `json:"plan_price"`
	Quotas    []Quota `json:"quotas"`

	// State is the lifecycle state.
	State AgreementState `json:"state"`

	// BackendID is the billing vendor's agreement identifier, set once
	// the agreement is pushed.
	BackendID string `json:"backend_id,omitempty"`

	// ApprovalURL is where the customer approves the subscription.
	ApprovalURL string `json:"approval_url,omitempty"`

	// ErrorMessage holds the last billing failure.
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the agreement to the target state, rejecting edges
// the lifecycle does not permit.
func (a *Agreement) Transition(target AgreementState) error {
	if !a.State.CanTransition(target) {
		return provision.NewConflictError("agreement transition not permitted", nil).
			WithCode(provision.ErrCodeInvalidState).
			WithDetail("from", string(a.State)).
			WithDetail("to", string(target))
	}
	a.State = target
	a.UpdatedAt = time.Now()
	return nil
}

// SetErred moves the agreement to erred unless it is already settled.
func (a *Agreement) SetErred() {
	if a.State.CanTransition(AgreementErred) {
		a.State = AgreementErred
		a.UpdatedAt = time.Now()
	}
}

// NewAgreement snapshots a plan into a fresh agreement for the customer.
func NewAgreement(id, customer string, plan *Plan) *Agreement {
	quotas := make([]Quota, len(plan.Quotas))
	copy(quotas, plan.Quotas)
	now := time.Now()
	return &Agreement{
		ID:        id,
		Customer:  customer,
		PlanID:    plan.ID,
		PlanName:  plan.Name,
		PlanPrice: plan.MonthlyPrice,
		Quotas:    quotas,
		State:     AgreementCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
