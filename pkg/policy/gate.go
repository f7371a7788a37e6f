package policy

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Gate adapts the policy engine to the runner's authorization hook.
// In enforcing mode a blocking violation denies the operation; in
// advisory mode violations are logged and the operation proceeds.
type Gate struct {
	engine      *Engine
	mode        Mode
	environment string
	logger      zerolog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMode sets the gate mode. The default is enforcing.
func WithMode(mode Mode) GateOption {
	return func(g *Gate) {
		g.mode = mode
	}
}

// WithEnvironment sets the environment passed to policy evaluation.
func WithEnvironment(env string) GateOption {
	return func(g *Gate) {
		g.environment = env
	}
}

// NewGate creates a gate backed by the given engine.
func NewGate(engine *Engine, logger zerolog.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		engine: engine,
		mode:   ModeEnforcing,
		logger: logger.With().Str("component", "policy-gate").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize evaluates all enabled policies against the operation and
// denies it when a blocking violation is found in enforcing mode.
func (g *Gate) Authorize(ctx context.Context, r *provision.Resource, op provision.OperationKind) error {
	result, err := g.engine.EvaluateOperation(ctx, r, op, &Context{
		Environment: g.environment,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return provision.NewPermanentError("policy evaluation failed", err).
			WithResource(r.ID).
			WithOperation(string(op))
	}

	for _, w := range result.Warnings {
		g.logger.Warn().
			Str("policy", w.Policy).
			Str("resource", w.Resource).
			Str("operation", string(op)).
			Msg(w.Message)
	}

	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, v.Message)
		g.logger.Error().
			Str("policy", v.Policy).
			Str("resource", v.Resource).
			Str("operation", string(op)).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}

	if g.mode == ModeAdvisory {
		g.logger.Warn().
			Str("resource", r.ID).
			Str("operation", string(op)).
			Int("violations", len(result.Violations)).
			Msg("Advisory mode: operation allowed despite violations")
		return nil
	}

	return provision.NewPermanentError(strings.Join(messages, "; "), nil).
		WithCode(provision.ErrCodePolicyDenied).
		WithResource(r.ID).
		WithOperation(string(op)).
		WithDetail("policies", policyNames(result.Violations))
}

func policyNames(violations []Violation) []string {
	names := make([]string, 0, len(violations))
	seen := make(map[string]bool)
	for _, v := range violations {
		if !seen[v.Policy] {
			seen[v.Policy] = true
			names = append(names, v.Policy)
		}
	}
	return names
}
