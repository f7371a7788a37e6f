package provision

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"created to provisioning", StateCreated, StateProvisioning, true},
		{"provisioning to online", StateProvisioning, StateOnline, true},
		{"online to stopping", StateOnline, StateStopping, true},
		{"stopping to offline", StateStopping, StateOffline, true},
		{"offline to starting", StateOffline, StateStarting, true},
		{"offline to resizing", StateOffline, StateResizing, true},
		{"resizing to online", StateResizing, StateOnline, true},
		{"online to deleting", StateOnline, StateDeleting, true},
		{"deleting to deleted", StateDeleting, StateDeleted, true},
		{"anything to erred", StateStarting, StateErred, true},
		{"erred to deleting", StateErred, StateDeleting, true},

		{"created straight to online", StateCreated, StateOnline, false},
		{"online to starting", StateOnline, StateStarting, false},
		{"offline to stopping", StateOffline, StateStopping, false},
		{"online to resizing while running", StateOnline, StateResizing, false},
		{"provisioning to offline", StateProvisioning, StateOffline, false},
		{"deleted is terminal", StateDeleted, StateProvisioning, false},
		{"deleted cannot even err", StateDeleted, StateErred, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestTransitionRejectsInvalidEdgeAndKeepsState(t *testing.T) {
	r := &Resource{ID: "res-1", State: StateOnline, Version: 3}

	err := r.Transition(StateStarting)
	if err == nil {
		t.Fatal("expected transition error")
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %T", err)
	}
	if te.From != StateOnline || te.To != StateStarting {
		t.Errorf("unexpected edge in error: %s -> %s", te.From, te.To)
	}
	if r.State != StateOnline || r.Version != 3 {
		t.Errorf("state must be untouched after rejection, got %s v%d", r.State, r.Version)
	}
}

func TestTransitionBumpsVersion(t *testing.T) {
	r := &Resource{ID: "res-1", State: StateCreated, Version: 1}
	if err := r.Transition(StateProvisioning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.State != StateProvisioning {
		t.Errorf("expected provisioning, got %s", r.State)
	}
	if r.Version != 2 {
		t.Errorf("expected version bump, got %d", r.Version)
	}
}

func TestSetErredIsIdempotentOnTerminal(t *testing.T) {
	r := &Resource{ID: "res-1", State: StateDeleted, Version: 5}
	r.SetErred()
	if r.State != StateDeleted {
		t.Errorf("deleted must stay deleted, got %s", r.State)
	}

	r2 := &Resource{ID: "res-2", State: StateStarting, Version: 1}
	r2.SetErred()
	if r2.State != StateErred {
		t.Errorf("expected erred, got %s", r2.State)
	}
}

func TestStateStability(t *testing.T) {
	stable := []State{StateCreated, StateOnline, StateOffline, StateErred, StateDeleted}
	for _, s := range stable {
		if !s.IsStable() {
			t.Errorf("%s should be stable", s)
		}
	}
	busy := []State{StateProvisioning, StateStarting, StateStopping, StateRestarting, StateResizing, StateDeleting}
	for _, s := range busy {
		if !s.InTransition() {
			t.Errorf("%s should be in transition", s)
		}
	}
}

func TestStateValidate(t *testing.T) {
	if err := StateOnline.Validate(); err != nil {
		t.Errorf("online should validate: %v", err)
	}
	if err := State("bogus").Validate(); err == nil {
		t.Error("bogus state should not validate")
	}
}
