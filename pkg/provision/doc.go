// Package provision is the core of the cloudmast engine: it drives
// vendor-backed resources through their lifecycle.
//
// # Execution model
//
// A lifecycle operation runs as a task chain:
//
//  1. Guard - the state-transition guard admits the operation only when
//     the lifecycle edge is permitted and no other operation is in
//     flight for the resource.
//  2. Request - the backend adapter translates the operation into a
//     vendor SDK call and returns an opaque action handle.
//  3. Poll - the Poller queries the action at a fixed delay until it
//     completes, fails, or the attempt budget is exhausted.
//  4. Settle - the success or failure side effect commits the final
//     lifecycle state; exactly one of the two callbacks fires.
//
// # Failure taxonomy
//
// Backend adapters classify vendor errors into BackendError classes:
// transient, throttled and conflict errors are retryable within the
// poll budget; permission (token scope) errors are surfaced immediately
// and open a service-scoped alert as a compensating action, closed
// again by the next successful request; not-found errors during
// teardown mean the vendor object already reached its terminal state.
//
// # Sync
//
// The Syncer reconciles local records against the vendor: it pulls the
// catalog (regions, images, sizes), refreshes the state of matching
// resources and marks records erred when their vendor object vanished.
package provision
