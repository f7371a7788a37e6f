package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudmast/cloudmast/pkg/plans"
	"github.com/cloudmast/cloudmast/pkg/provision"
)

// ServiceConfig represents a provider service definition from CUE.
type ServiceConfig struct {
	// Name is the unique identifier for this service (e.g., "do-prod").
	Name string `json:"name" validate:"required"`

	// Provider is the backend kind serving this service.
	Provider string `json:"provider" validate:"required,oneof=digitalocean aws azure gitlab"`

	// Credentials holds the provider credentials.
	Credentials CredentialsConfig `json:"credentials"`

	// Regions restricts which provider regions the service may use.
	// Empty means all regions the provider reports.
	Regions []string `json:"regions,omitempty"`

	// Options is provider-specific configuration (e.g., images_regex).
	Options json.RawMessage `json:"options,omitempty"`

	// Labels are key-value pairs for organizing services.
	Labels map[string]string `json:"labels,omitempty"`

	// SSHKeys lists public key material to push to the provider on sync.
	SSHKeys []string `json:"ssh_keys,omitempty"`
}

// CredentialsConfig holds the credential material for a service. Which
// fields are required depends on the provider: token for DigitalOcean
// and GitLab, access/secret key for AWS, the service-principal tuple
// for Azure. GitLab alternatively accepts username/password.
type CredentialsConfig struct {
	// Token is an API token (DigitalOcean, GitLab).
	Token string `json:"token,omitempty"`

	// AccessKey and SecretKey are the AWS credential pair.
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`

	// SubscriptionID, TenantID, ClientID and ClientSecret form the
	// Azure service-principal credentials.
	SubscriptionID string `json:"subscription_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`

	// ResourceGroup is the Azure resource group machines live in.
	ResourceGroup string `json:"resource_group,omitempty"`

	// Username and Password are an alternative to Token for GitLab.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// BaseURL overrides the provider API endpoint (self-hosted GitLab).
	BaseURL string `json:"base_url,omitempty"`
}

// PlanConfig represents a billing plan entry from the catalog.
type PlanConfig struct {
	// ID is the plan identifier. Generated when omitted.
	ID string `json:"id,omitempty"`

	// Name is the human-readable plan name.
	Name string `json:"name" validate:"required"`

	// MonthlyPrice is the base monthly price.
	MonthlyPrice float64 `json:"monthly_price" validate:"gte=0"`

	// Quotas maps quota names to limits. -1 means unlimited.
	Quotas map[string]int64 `json:"quotas,omitempty"`

	// Default marks the plan applied to new customers.
	Default bool `json:"default,omitempty"`

	// PricingScript is an optional Starlark snippet that adjusts the
	// price (discounts, tax). It receives base_price and quotas and
	// must set a price global.
	PricingScript string `json:"pricing_script,omitempty"`
}

// SettingsConfig tunes the orchestrator.
type SettingsConfig struct {
	// PollAttempts bounds how many times a chain polls a vendor action.
	PollAttempts int `json:"poll_attempts,omitempty" validate:"omitempty,gt=0"`

	// PollDelaySeconds is the delay between poll attempts.
	PollDelaySeconds int `json:"poll_delay_seconds,omitempty" validate:"omitempty,gt=0"`

	// Parallelism bounds how many chains run concurrently.
	Parallelism int `json:"parallelism,omitempty" validate:"omitempty,gt=0"`

	// MetricsAddress is the prometheus listener address.
	MetricsAddress string `json:"metrics_address,omitempty"`

	// DatabasePath is the SQLite state store path.
	DatabasePath string `json:"database_path,omitempty"`

	// TracingExporter selects the trace exporter: otlp, stdout or none.
	// Tracing is off when empty.
	TracingExporter string `json:"tracing_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector address.
	TracingEndpoint string `json:"tracing_endpoint,omitempty"`
}

// PollDelay returns the configured poll delay as a duration.
func (s SettingsConfig) PollDelay() time.Duration {
	return time.Duration(s.PollDelaySeconds) * time.Second
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled"`

	// Paths lists additional rego policy directories.
	Paths []string `json:"paths,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// ParsedConfig represents the fully parsed configuration from CUE.
type ParsedConfig struct {
	// Services are the provider services managed by this installation.
	Services []ServiceConfig `json:"services"`

	// Plans is the billing plan catalog.
	Plans []PlanConfig `json:"plans,omitempty"`

	// Settings tunes the orchestrator.
	Settings SettingsConfig `json:"settings"`

	// Policy configures the operation policy gate.
	Policy PolicyConfig `json:"policy"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Service returns the service with the given name, or nil.
func (pc *ParsedConfig) Service(name string) *ServiceConfig {
	for i := range pc.Services {
		if pc.Services[i].Name == name {
			return &pc.Services[i]
		}
	}
	return nil
}

// ToSettings flattens a service definition into the settings shape the
// backend registry binds with. Provider-specific credential fields land
// in the generic token/username/password slots; everything else becomes
// an option.
func (sc *ServiceConfig) ToSettings() provision.ServiceSettings {
	settings := provision.ServiceSettings{
		Name:     sc.Name,
		Provider: sc.Provider,
		Token:    sc.Credentials.Token,
		Username: sc.Credentials.Username,
		Password: sc.Credentials.Password,
		BaseURL:  sc.Credentials.BaseURL,
		Options:  map[string]string{},
	}

	switch sc.Provider {
	case "aws":
		settings.Username = sc.Credentials.AccessKey
		settings.Password = sc.Credentials.SecretKey
	case "azure":
		settings.Username = sc.Credentials.ClientID
		settings.Password = sc.Credentials.ClientSecret
		settings.Options["subscription_id"] = sc.Credentials.SubscriptionID
		settings.Options["tenant_id"] = sc.Credentials.TenantID
		settings.Options["resource_group"] = sc.Credentials.ResourceGroup
	}

	if len(sc.Options) > 0 {
		var raw map[string]interface{}
		if err := json.Unmarshal(sc.Options, &raw); err == nil {
			for key, value := range raw {
				switch v := value.(type) {
				case string:
					settings.Options[key] = v
				case float64:
					settings.Options[key] = fmt.Sprintf("%g", v)
				case bool:
					settings.Options[key] = fmt.Sprintf("%t", v)
				}
			}
		}
	}

	if len(sc.Regions) > 0 && settings.Options["regions"] == "" {
		settings.Options["regions"] = strings.Join(sc.Regions, ",")
	}

	return settings
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "services.do_prod.provider").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// EvaluateOptions controls CUE evaluation behavior.
type EvaluateOptions struct {
	// Package is the CUE package to evaluate.
	Package string `json:"package,omitempty"`

	// Tags are CUE build tags (e.g., "env=prod").
	Tags []string `json:"tags,omitempty"`

	// Concrete requires all values to be concrete (no unresolved references).
	Concrete bool `json:"concrete"`

	// AllowStarlark enables Starlark pricing hook execution.
	AllowStarlark bool `json:"allow_starlark"`

	// StarlarkTimeout is the timeout for Starlark execution.
	StarlarkTimeout time.Duration `json:"starlark_timeout,omitempty"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// ToPlans converts the catalog entries to plan records. Entries without
// an ID get a generated one, so repeated loads of the same file should
// pin IDs in the config to stay stable.
func (pc *ParsedConfig) ToPlans() []plans.Plan {
	out := make([]plans.Plan, len(pc.Plans))
	for i, entry := range pc.Plans {
		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}
		quotas := make([]plans.Quota, 0, len(entry.Quotas))
		for name, value := range entry.Quotas {
			quotas = append(quotas, plans.Quota{Name: name, Value: value})
		}
		out[i] = plans.Plan{
			ID:           id,
			Name:         entry.Name,
			MonthlyPrice: entry.MonthlyPrice,
			Quotas:       quotas,
			IsDefault:    entry.Default,
			CreatedAt:    pc.ParsedAt,
			UpdatedAt:    pc.ParsedAt,
		}
	}
	return out
}
