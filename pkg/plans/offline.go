package plans

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// OfflineBilling is a billing backend for installations without an
// external subscription vendor. Agreements are tracked locally, never
// need customer approval and never fail.
type OfflineBilling struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewOfflineBilling creates an offline billing backend.
func NewOfflineBilling() *OfflineBilling {
	return &OfflineBilling{active: map[string]bool{}}
}

// CreateAgreement registers the agreement under a locally generated
// token. The approval URL is empty: nothing to approve.
func (ob *OfflineBilling) CreateAgreement(_ context.Context, _ *Agreement) (string, string, error) {
	backendID := "offline-" + uuid.New().String()
	ob.mu.Lock()
	ob.active[backendID] = false
	ob.mu.Unlock()
	return backendID, "", nil
}

// ExecuteAgreement marks the subscription active.
func (ob *OfflineBilling) ExecuteAgreement(_ context.Context, backendID string) error {
	ob.mu.Lock()
	ob.active[backendID] = true
	ob.mu.Unlock()
	return nil
}

// CancelAgreement stops tracking the subscription.
func (ob *OfflineBilling) CancelAgreement(_ context.Context, backendID string) error {
	ob.mu.Lock()
	delete(ob.active, backendID)
	ob.mu.Unlock()
	return nil
}
