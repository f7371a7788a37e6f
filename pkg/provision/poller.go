package provision

import (
	"context"
	"time"
)

// StatusFunc reports the current status of a vendor action identified by
// an opaque handle.
type StatusFunc func(ctx context.Context, actionID string) (ActionStatus, error)

// Poller repeatedly queries an asynchronous vendor action until it
// settles or the attempt budget runs out. The delay between attempts is
// fixed; error-class handling is the caller's concern except that
// retryable errors consume an attempt while non-retryable ones terminate
// the poll immediately.
type Poller struct {
	// MaxAttempts is the attempt budget. Zero means a single attempt.
	MaxAttempts int

	// Delay is the fixed inter-attempt delay.
	Delay time.Duration

	// clock is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultMaxAttempts and DefaultPollDelay match a 15 minute budget at a
// 3 second interval.
const (
	DefaultMaxAttempts = 300
	DefaultPollDelay   = 3 * time.Second
)

// NewPoller creates a poller with the given budget. Non-positive values
// fall back to the defaults.
func NewPoller(maxAttempts int, delay time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay <= 0 {
		delay = DefaultPollDelay
	}
	return &Poller{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		sleep:       sleepCtx,
	}
}

// PollResult describes how a poll run ended.
type PollResult struct {
	// Attempts is the number of status checks performed.
	Attempts int

	// Status is the final vendor status observed, if any.
	Status ActionStatus
}

// Poll drives the status function until the action completes, fails, a
// non-retryable error surfaces, or the attempt budget is exhausted.
// An empty actionID is treated as an already-completed action.
func (p *Poller) Poll(ctx context.Context, actionID string, status StatusFunc) (*PollResult, error) {
	res := &PollResult{}
	if actionID == "" {
		res.Status = ActionCompleted
		return res, nil
	}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt

		st, err := status(ctx, actionID)
		if err != nil {
			if !IsRetryable(err) {
				return res, err
			}
			// Retryable errors consume the attempt and fall through to
			// the delay below.
		} else {
			res.Status = st
			switch st {
			case ActionCompleted:
				return res, nil
			case ActionFailed:
				return res, NewPermanentError("vendor action failed", nil).
					WithCode(ErrCodeActionFailed).
					WithDetail("action_id", actionID)
			}
		}

		if attempt >= p.MaxAttempts {
			return res, NewPermanentError("action did not complete within attempt budget", nil).
				WithCode(ErrCodePollExhausted).
				WithDetail("action_id", actionID).
				WithDetail("attempts", attempt)
		}

		if err := p.sleep(ctx, p.Delay); err != nil {
			return res, NewPermanentError("polling cancelled", err).
				WithCode(ErrCodeTimeout)
		}
	}
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
