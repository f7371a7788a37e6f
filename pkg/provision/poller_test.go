package provision

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedStatus returns canned statuses/errors in order, then repeats
// the last entry.
type scriptedStatus struct {
	calls    int
	statuses []ActionStatus
	errs     []error
}

func (s *scriptedStatus) fn(_ context.Context, _ string) (ActionStatus, error) {
	i := s.calls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.statuses[i], err
}

func newTestPoller(maxAttempts int) *Poller {
	p := NewPoller(maxAttempts, time.Millisecond)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestPollCompletesAfterPending(t *testing.T) {
	script := &scriptedStatus{statuses: []ActionStatus{ActionPending, ActionPending, ActionCompleted}}
	p := newTestPoller(10)

	res, err := p.Poll(context.Background(), "action-1", script.fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ActionCompleted {
		t.Errorf("expected completed status, got %s", res.Status)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestPollFailedActionIsFatal(t *testing.T) {
	script := &scriptedStatus{statuses: []ActionStatus{ActionPending, ActionFailed}}
	p := newTestPoller(10)

	_, err := p.Poll(context.Background(), "action-1", script.fn)
	if err == nil {
		t.Fatal("expected error for failed action")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Code != ErrCodeActionFailed {
		t.Errorf("expected ACTION_FAILED, got %v", err)
	}
	if script.calls != 2 {
		t.Errorf("expected poll to stop after failure, got %d calls", script.calls)
	}
}

func TestPollAttemptBudgetExhausted(t *testing.T) {
	script := &scriptedStatus{statuses: []ActionStatus{ActionPending}}
	p := newTestPoller(5)

	res, err := p.Poll(context.Background(), "action-1", script.fn)
	if err == nil {
		t.Fatal("expected error when budget is exhausted")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Code != ErrCodePollExhausted {
		t.Errorf("expected POLL_EXHAUSTED, got %v", err)
	}
	if res.Attempts != 5 {
		t.Errorf("expected 5 attempts, got %d", res.Attempts)
	}
}

func TestPollRetryableErrorConsumesAttempt(t *testing.T) {
	script := &scriptedStatus{
		statuses: []ActionStatus{ActionPending, ActionPending, ActionCompleted},
		errs:     []error{NewTransientError("connection reset", nil), nil, nil},
	}
	p := newTestPoller(10)

	res, err := p.Poll(context.Background(), "action-1", script.fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestPollNonRetryableErrorIsImmediate(t *testing.T) {
	script := &scriptedStatus{
		statuses: []ActionStatus{ActionPending},
		errs:     []error{NewPermissionError("read-only token", nil)},
	}
	p := newTestPoller(10)

	_, err := p.Poll(context.Background(), "action-1", script.fn)
	if !IsPermissionDenied(err) {
		t.Fatalf("expected permission error surfaced immediately, got %v", err)
	}
	if script.calls != 1 {
		t.Errorf("expected a single status check, got %d", script.calls)
	}
}

func TestPollEmptyHandleIsCompleted(t *testing.T) {
	p := newTestPoller(10)
	called := false

	res, err := p.Poll(context.Background(), "", func(context.Context, string) (ActionStatus, error) {
		called = true
		return ActionPending, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("status func must not be called for an empty handle")
	}
	if res.Status != ActionCompleted {
		t.Errorf("expected completed, got %s", res.Status)
	}
}

func TestPollCancelledContext(t *testing.T) {
	script := &scriptedStatus{statuses: []ActionStatus{ActionPending}}
	p := NewPoller(10, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Poll(ctx, "action-1", script.fn)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Code != ErrCodeTimeout {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(0, 0)
	if p.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected default max attempts, got %d", p.MaxAttempts)
	}
	if p.Delay != DefaultPollDelay {
		t.Errorf("expected default delay, got %s", p.Delay)
	}
}
