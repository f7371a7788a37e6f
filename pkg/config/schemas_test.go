package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
field1: string
field2: int
`

	err := sr.RegisterSchema("custom", customSchema)
	if err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}

	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	builtins := []string{
		"service",
		"plan",
		"settings",
		"policy",
	}

	for _, name := range builtins {
		t.Run(name, func(t *testing.T) {
			schema, ok := sr.GetSchema(name)
			if !ok {
				t.Fatalf("built-in schema %s not found", name)
			}

			if schema.Err() != nil {
				t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
			}
		})
	}
}

func TestSchemaRegistry_ValidateService(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		service ServiceConfig
		wantErr bool
	}{
		{
			name: "valid service",
			service: ServiceConfig{
				Name:     "do-prod",
				Provider: "digitalocean",
				Credentials: CredentialsConfig{
					Token: "dop_v1_secret",
				},
				Regions: []string{"ams3"},
			},
			wantErr: false,
		},
		{
			name: "invalid service - bad name",
			service: ServiceConfig{
				Name:     "invalid name with spaces",
				Provider: "digitalocean",
				Credentials: CredentialsConfig{
					Token: "t",
				},
			},
			wantErr: true,
		},
		{
			name: "invalid service - unknown provider",
			service: ServiceConfig{
				Name:     "svc",
				Provider: "linode",
				Credentials: CredentialsConfig{
					Token: "t",
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateService(ctx, tt.service)

			if tt.wantErr {
				if err == nil {
					t.Error("expected validation error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSchemaRegistry_ValidatePlan(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		plan    PlanConfig
		wantErr bool
	}{
		{
			name: "valid plan",
			plan: PlanConfig{
				Name:         "Small",
				MonthlyPrice: 10.0,
				Quotas:       map[string]int64{"vcpu": 4},
			},
			wantErr: false,
		},
		{
			name: "valid unlimited quota",
			plan: PlanConfig{
				Name:         "Unlimited",
				MonthlyPrice: 500.0,
				Quotas:       map[string]int64{"vcpu": -1},
			},
			wantErr: false,
		},
		{
			name: "invalid plan - negative price",
			plan: PlanConfig{
				Name:         "Broken",
				MonthlyPrice: -1.0,
			},
			wantErr: true,
		},
		{
			name: "invalid plan - quota below -1",
			plan: PlanConfig{
				Name:         "Broken",
				MonthlyPrice: 1.0,
				Quotas:       map[string]int64{"vcpu": -2},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidatePlan(ctx, tt.plan)

			if tt.wantErr {
				if err == nil {
					t.Error("expected validation error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSchemaRegistry_ValidateSettings(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name     string
		settings SettingsConfig
		wantErr  bool
	}{
		{
			name: "valid settings",
			settings: SettingsConfig{
				PollAttempts:     300,
				PollDelaySeconds: 3,
				Parallelism:      8,
			},
			wantErr: false,
		},
		{
			name:     "empty settings use defaults",
			settings: SettingsConfig{},
			wantErr:  false,
		},
		{
			name: "invalid settings - zero attempts",
			settings: SettingsConfig{
				PollAttempts: -5,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateSettings(ctx, tt.settings)

			if tt.wantErr {
				if err == nil {
					t.Error("expected validation error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSchemaRegistry_ValidatePolicy(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := PolicyConfig{Enabled: true, Mode: "enforcing", Paths: []string{"./policies"}}
	if err := sr.ValidatePolicy(ctx, valid); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	invalid := PolicyConfig{Enabled: true, Mode: "strict"}
	if err := sr.ValidatePolicy(ctx, invalid); err == nil {
		t.Error("expected validation error for unknown mode")
	}
}

func TestSchemaRegistry_ListSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	schemas := sr.ListSchemas()

	if len(schemas) < 4 {
		t.Errorf("expected at least 4 schemas, got %d", len(schemas))
	}

	// Check for built-in schemas
	expectedSchemas := map[string]bool{
		"service":  false,
		"plan":     false,
		"settings": false,
		"policy":   false,
	}

	for _, schema := range schemas {
		if _, exists := expectedSchemas[schema]; exists {
			expectedSchemas[schema] = true
		}
	}

	for name, found := range expectedSchemas {
		if !found {
			t.Errorf("expected built-in schema %s not found", name)
		}
	}
}

func TestSchemaRegistry_InvalidSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	invalidSchema := `
this is not valid CUE syntax
`

	err := sr.RegisterSchema("invalid", invalidSchema)
	if err == nil {
		t.Error("expected error when registering invalid schema")
	}
}
