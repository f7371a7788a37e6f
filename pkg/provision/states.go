package provision

import (
	"fmt"
)

// State represents the coarse lifecycle state of a resource as visible
// to platform users.
type State string

const (
	// StateCreated indicates the resource exists locally but has not been
	// pushed to the vendor yet.
	StateCreated State = "created"

	// StateProvisioning indicates a create request is in flight on the
	// vendor side.
	StateProvisioning State = "provisioning"

	// StateOnline indicates the resource is up and reachable.
	StateOnline State = "online"

	// StateOffline indicates the resource exists but is powered off.
	StateOffline State = "offline"

	// StateStarting indicates a power-on request is in flight.
	StateStarting State = "starting"

	// StateStopping indicates a power-off request is in flight.
	StateStopping State = "stopping"

	// StateRestarting indicates a reboot request is in flight.
	StateRestarting State = "restarting"

	// StateResizing indicates a resize request is in flight.
	StateResizing State = "resizing"

	// StateDeleting indicates a destroy request is in flight.
	StateDeleting State = "deleting"

	// StateDeleted indicates the resource is gone on both sides. Terminal.
	StateDeleted State = "deleted"

	// StateErred indicates the last operation failed. A resource can be
	// recovered from erred by a successful sync or restart.
	StateErred State = "erred"
)

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateDeleted
}

// IsStable returns true if the state is settled, i.e. no operation is
// expected to be in flight.
func (s State) IsStable() bool {
	switch s {
	case StateCreated, StateOnline, StateOffline, StateErred, StateDeleted:
		return true
	}
	return false
}

// InTransition returns true if an operation is mid-flight for this state.
func (s State) InTransition() bool {
	return !s.IsStable()
}

// Validate checks if the state is a known lifecycle state.
func (s State) Validate() error {
	switch s {
	case StateCreated, StateProvisioning, StateOnline, StateOffline,
		StateStarting, StateStopping, StateRestarting, StateResizing,
		StateDeleting, StateDeleted, StateErred:
		return nil
	default:
		return fmt.Errorf("invalid lifecycle state: %s", s)
	}
}

// transitions holds the permitted lifecycle edges. Erred is reachable
// from every non-terminal state and is handled separately in CanTransition.
var transitions = map[State][]State{
	StateCreated:      {StateProvisioning, StateDeleting},
	StateProvisioning: {StateOnline},
	StateOnline:       {StateStopping, StateRestarting, StateDeleting, StateOffline},
	StateOffline:      {StateStarting, StateResizing, StateDeleting, StateOnline},
	StateStarting:     {StateOnline},
	StateStopping:     {StateOffline},
	StateRestarting:   {StateOnline},
	StateResizing:     {StateOnline, StateOffline},
	StateDeleting:     {StateDeleted},
	StateErred:        {StateProvisioning, StateStarting, StateRestarting, StateDeleting, StateOnline, StateOffline},
}

// CanTransition reports whether the edge from → to is permitted.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateErred {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a lifecycle edge is not permitted.
type TransitionError struct {
	ResourceID string
	From       State
	To         State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not permitted for resource %s",
		e.From, e.To, e.ResourceID)
}

// Transition moves the resource along a permitted lifecycle edge and
// bumps its version. The state is left untouched when the edge is
// invalid.
func (r *Resource) Transition(to State) error {
	if !CanTransition(r.State, to) {
		return &TransitionError{ResourceID: r.ID, From: r.State, To: to}
	}
	r.State = to
	r.Version++
	return nil
}

// SetErred forces the resource into the erred state. Used by the failure
// side of task chains and by sync when the vendor object disappears.
func (r *Resource) SetErred() {
	if r.State.IsTerminal() {
		return
	}
	r.State = StateErred
	r.Version++
}
