package provision_test

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// ExamplePoller_Poll polls a vendor action that reports pending twice
// before completing.
func ExamplePoller_Poll() {
	statuses := []provision.ActionStatus{
		provision.ActionPending,
		provision.ActionPending,
		provision.ActionCompleted,
	}
	calls := 0
	status := func(ctx context.Context, actionID string) (provision.ActionStatus, error) {
		st := statuses[calls]
		calls++
		return st, nil
	}

	poller := provision.NewPoller(5, time.Millisecond)
	result, err := poller.Poll(context.Background(), "action-42", status)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("status=%s attempts=%d\n", result.Status, result.Attempts)
	// Output: status=completed attempts=3
}

// ExamplePoller_Poll_budget shows the attempt budget running out on an
// action that never settles.
func ExamplePoller_Poll_budget() {
	status := func(ctx context.Context, actionID string) (provision.ActionStatus, error) {
		return provision.ActionPending, nil
	}

	poller := provision.NewPoller(3, time.Millisecond)
	_, err := poller.Poll(context.Background(), "action-42", status)
	fmt.Println(provision.IsPermanent(err))
	// Output: true
}
