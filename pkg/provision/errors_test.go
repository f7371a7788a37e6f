package provision

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		check     func(error) bool
	}{
		{"transient", NewTransientError("timeout", nil), true, IsTransient},
		{"throttled", NewThrottledError("rate limited", nil), true, IsThrottled},
		{"conflict", NewConflictError("busy", nil), true, IsConflict},
		{"permission", NewPermissionError("read-only token", nil), false, IsPermissionDenied},
		{"not found", NewNotFoundError("gone", nil), false, IsNotFound},
		{"permanent", NewPermanentError("bad config", nil), false, IsPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("class predicate failed for %v", tt.err)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestClassPredicatesRejectPlainErrors(t *testing.T) {
	err := errors.New("plain")
	if IsTransient(err) || IsRetryable(err) || IsNotFound(err) || IsPermissionDenied(err) {
		t.Error("plain errors must not match any class")
	}
}

func TestErrorWrappingPreservesClass(t *testing.T) {
	inner := NewPermissionError("denied", errors.New("403"))
	wrapped := fmt.Errorf("while starting machine: %w", inner)
	if !IsPermissionDenied(wrapped) {
		t.Error("class must survive wrapping")
	}
	if IsRetryable(wrapped) {
		t.Error("permission errors are never retryable")
	}
}

func TestErrorContextInMessage(t *testing.T) {
	err := NewTransientError("request failed", errors.New("dial tcp: timeout")).
		WithResource("res-42").
		WithOperation("start").
		WithProvider("digitalocean")

	msg := err.Error()
	for _, want := range []string{"transient", "res-42", "start", "dial tcp"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
}

func TestErrorIsMatchesClassAndCode(t *testing.T) {
	a := NewNotFoundError("gone", nil)
	b := NewNotFoundError("also gone", nil)
	if !errors.Is(a, b) {
		t.Error("same class and code should match")
	}
	c := NewPermanentError("other", nil).WithCode(ErrCodeValidation)
	if errors.Is(a, c) {
		t.Error("different class/code should not match")
	}
}
