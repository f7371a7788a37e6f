package provision

import "context"

// Domain event types emitted by the engine.
const (
	EventOperationStarted     = "operation.started"
	EventOperationCompleted   = "operation.completed"
	EventOperationFailed      = "operation.failed"
	EventResourceStateChanged = "resource.state_changed"
	EventAlertOpened          = "alert.opened"
	EventAlertClosed          = "alert.closed"
	EventSyncCompleted        = "sync.completed"
)

// EventSink receives domain events from the engine. Implementations must
// not block; a nil sink is valid and drops everything.
type EventSink interface {
	Emit(ctx context.Context, eventType, resourceID, message string, details map[string]interface{})
}
