package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("service", builtinServiceSchema)
	sr.RegisterSchema("plan", builtinPlanSchema)
	sr.RegisterSchema("settings", builtinSettingsSchema)
	sr.RegisterSchema("policy", builtinPolicySchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinServiceSchema = `
// Service schema for provider service definitions
name:     string & =~"^[a-zA-Z0-9_-]+$"
provider: "digitalocean" | "aws" | "azure" | "gitlab"

credentials: {
	token?:           string
	access_key?:      string
	secret_key?:      string
	subscription_id?: string
	tenant_id?:       string
	client_id?:       string
	client_secret?:   string
	resource_group?:  string
	username?:        string
	password?:        string
	base_url?:        string
}

regions?:  [...string]
options?:  {...}
labels?:   {[string]: string}
ssh_keys?: [...string]
`

const builtinPlanSchema = `
// Plan schema for billing catalog entries
id?:            string
name:           string & =~"^[a-zA-Z0-9 _.-]+$"
monthly_price:  number & >=0
quotas?:        {[string]: int & >=-1}
default?:       bool
pricing_script?: string
`

const builtinSettingsSchema = `
// Settings schema for orchestrator tuning
poll_attempts?:      int & >0 & <=10000
poll_delay_seconds?: int & >0 & <=3600
parallelism?:        int & >0 & <=1024
metrics_address?:    string
database_path?:      string
`

const builtinPolicySchema = `
// Policy schema for the operation policy gate
enabled: bool
paths?:  [...string]
mode?:   "advisory" | "enforcing"
`

// ValidateService validates a service configuration against the service schema.
func (sr *SchemaRegistry) ValidateService(ctx context.Context, service ServiceConfig) error {
	return sr.ValidateAgainstSchema(ctx, "service", service)
}

// ValidatePlan validates a plan catalog entry against the plan schema.
func (sr *SchemaRegistry) ValidatePlan(ctx context.Context, plan PlanConfig) error {
	return sr.ValidateAgainstSchema(ctx, "plan", plan)
}

// ValidateSettings validates orchestrator settings against the settings schema.
func (sr *SchemaRegistry) ValidateSettings(ctx context.Context, settings SettingsConfig) error {
	return sr.ValidateAgainstSchema(ctx, "settings", settings)
}

// ValidatePolicy validates a policy configuration against the policy schema.
func (sr *SchemaRegistry) ValidatePolicy(ctx context.Context, policy PolicyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "policy", policy)
}
