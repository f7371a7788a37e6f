package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// CUEParser parses and validates CUE configuration files.
type CUEParser struct {
	ctx               *cue.Context
	schemaRegistry    *SchemaRegistry
	starlarkEvaluator *StarlarkEvaluator
	validator         *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:               cuecontext.New(),
		schemaRegistry:    NewSchemaRegistry(),
		starlarkEvaluator: NewStarlarkEvaluator(30 * time.Second),
		validator:         validator.New(),
	}
}

// Load parses the given sources and fails on any validation error.
// This is the entry point the CLI uses.
func (cp *CUEParser) Load(ctx context.Context, sources []string) (*ParsedConfig, error) {
	parsedConfig, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}

	if len(parsedConfig.Errors) > 0 {
		return nil, fmt.Errorf("validation errors: %v", parsedConfig.Errors)
	}

	return parsedConfig, nil
}

// EvaluateStarlark executes a Starlark script for procedural pricing logic.
func (cp *CUEParser) EvaluateStarlark(ctx context.Context, script string, input map[string]interface{}) (map[string]interface{}, error) {
	result, err := cp.starlarkEvaluator.Evaluate(ctx, script, input)
	if err != nil {
		return nil, err
	}

	if result.Error != "" {
		return nil, fmt.Errorf("starlark error: %s", result.Error)
	}

	return result.Output, nil
}

// PlanPrice resolves the effective monthly price of a catalog entry.
// Entries without a pricing script return the base price unchanged.
func (cp *CUEParser) PlanPrice(ctx context.Context, plan PlanConfig) (float64, error) {
	if plan.PricingScript == "" {
		return plan.MonthlyPrice, nil
	}
	return cp.starlarkEvaluator.EvaluatePrice(ctx, plan.PricingScript, plan.MonthlyPrice, plan.Quotas)
}

// MergeConfigs merges multiple parsed configurations into one. Service
// and plan names must be unique across the inputs.
func (cp *CUEParser) MergeConfigs(ctx context.Context, configs []*ParsedConfig) (*ParsedConfig, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configs to merge")
	}

	if len(configs) == 1 {
		return configs[0], nil
	}

	merged := &ParsedConfig{
		ParsedAt: time.Now(),
		Settings: configs[0].Settings,
		Policy:   configs[0].Policy,
	}

	serviceNames := make(map[string]bool)
	planNames := make(map[string]bool)

	for _, cfg := range configs {
		for _, svc := range cfg.Services {
			if serviceNames[svc.Name] {
				return nil, fmt.Errorf("duplicate service %s across configs", svc.Name)
			}
			serviceNames[svc.Name] = true
			merged.Services = append(merged.Services, svc)
		}
		for _, plan := range cfg.Plans {
			if planNames[plan.Name] {
				return nil, fmt.Errorf("duplicate plan %s across configs", plan.Name)
			}
			planNames[plan.Name] = true
			merged.Plans = append(merged.Plans, plan)
		}
		merged.SourceFiles = append(merged.SourceFiles, cfg.SourceFiles...)
	}

	return merged, nil
}

// Parse parses CUE configuration from the given sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	// Determine if sources are files or directories
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			// Load directory as CUE package
			val, files, errs := cp.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			// Load single file
			val, errs := cp.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	// Check for parse errors
	if len(parseErrors) > 0 {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	// Validate the unified value
	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, cp.convertCUEErrors(err)...)
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	// Extract configuration
	parsedConfig, err := cp.extractConfig(cueValue, sourceFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to extract config: %w", err)
	}

	return parsedConfig, nil
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	// Load the package
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	// Get list of files
	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractConfig extracts the configuration from a CUE value.
func (cp *CUEParser) extractConfig(val cue.Value, sourceFiles []string) (*ParsedConfig, error) {
	parsedConfig := &ParsedConfig{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	// Extract orchestrator settings
	settingsVal := val.LookupPath(cue.ParsePath("settings"))
	if settingsVal.Exists() {
		var settings SettingsConfig
		if err := settingsVal.Decode(&settings); err != nil {
			parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
				Path:     "settings",
				Message:  fmt.Sprintf("failed to decode settings: %v", err),
				Severity: "error",
			})
		} else if err := cp.validator.Struct(settings); err != nil {
			parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
				Path:     "settings",
				Message:  err.Error(),
				Severity: "error",
			})
		} else {
			parsedConfig.Settings = settings
		}
	}

	// Extract policy configuration
	policyVal := val.LookupPath(cue.ParsePath("policy"))
	if policyVal.Exists() {
		var policy PolicyConfig
		if err := policyVal.Decode(&policy); err != nil {
			parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
				Path:     "policy",
				Message:  fmt.Sprintf("failed to decode policy: %v", err),
				Severity: "error",
			})
		} else {
			parsedConfig.Policy = policy
		}
	}

	// Extract services
	servicesVal := val.LookupPath(cue.ParsePath("services"))
	if servicesVal.Exists() {
		if servicesVal.Kind() == cue.StructKind {
			// Map of services keyed by name
			iter, err := servicesVal.Fields(cue.All())
			if err != nil {
				parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
					Path:     "services",
					Message:  fmt.Sprintf("failed to iterate services: %v", err),
					Severity: "error",
				})
			} else {
				for iter.Next() {
					service, err := cp.extractService(selectorName(iter.Selector().String()), iter.Value())
					if err != nil {
						parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
							Path:     fmt.Sprintf("services.%s", iter.Selector()),
							Message:  err.Error(),
							Severity: "error",
						})
					} else {
						parsedConfig.Services = append(parsedConfig.Services, service)
					}
				}
			}
		} else if servicesVal.Kind() == cue.ListKind {
			// List of services
			list, err := servicesVal.List()
			if err != nil {
				parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
					Path:     "services",
					Message:  fmt.Sprintf("failed to list services: %v", err),
					Severity: "error",
				})
			} else {
				idx := 0
				for list.Next() {
					service, err := cp.extractService("", list.Value())
					if err != nil {
						parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
							Path:     fmt.Sprintf("services[%d]", idx),
							Message:  err.Error(),
							Severity: "error",
						})
					} else {
						parsedConfig.Services = append(parsedConfig.Services, service)
					}
					idx++
				}
			}
		}
	}

	// Extract plan catalog
	plansVal := val.LookupPath(cue.ParsePath("plans"))
	if plansVal.Exists() {
		list, err := plansVal.List()
		if err != nil {
			parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
				Path:     "plans",
				Message:  fmt.Sprintf("failed to list plans: %v", err),
				Severity: "error",
			})
		} else {
			idx := 0
			defaults := 0
			for list.Next() {
				plan, err := cp.extractPlan(list.Value())
				if err != nil {
					parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
						Path:     fmt.Sprintf("plans[%d]", idx),
						Message:  err.Error(),
						Severity: "error",
					})
				} else {
					if plan.Default {
						defaults++
					}
					parsedConfig.Plans = append(parsedConfig.Plans, plan)
				}
				idx++
			}
			if defaults > 1 {
				parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
					Path:     "plans",
					Message:  "only one plan may be marked default",
					Severity: "error",
				})
			}
		}
	}

	return parsedConfig, nil
}

// extractService extracts a service configuration from a CUE value.
func (cp *CUEParser) extractService(name string, val cue.Value) (ServiceConfig, error) {
	var service ServiceConfig

	if err := val.Decode(&service); err != nil {
		return service, fmt.Errorf("failed to decode service: %w", err)
	}

	// If name is provided as key and not in value, use the key
	if service.Name == "" && name != "" {
		service.Name = name
	}

	// Validate using struct tags
	if err := cp.validator.Struct(service); err != nil {
		return service, fmt.Errorf("validation failed: %w", err)
	}

	if err := validateCredentials(service); err != nil {
		return service, err
	}

	return service, nil
}

// validateCredentials checks that the credential fields a provider
// needs are present.
func validateCredentials(service ServiceConfig) error {
	c := service.Credentials
	switch service.Provider {
	case "digitalocean":
		if c.Token == "" {
			return fmt.Errorf("digitalocean service requires credentials.token")
		}
	case "aws":
		if c.AccessKey == "" || c.SecretKey == "" {
			return fmt.Errorf("aws service requires credentials.access_key and credentials.secret_key")
		}
	case "azure":
		if c.SubscriptionID == "" || c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("azure service requires subscription_id, tenant_id, client_id and client_secret")
		}
	case "gitlab":
		if c.Token == "" && (c.Username == "" || c.Password == "") {
			return fmt.Errorf("gitlab service requires credentials.token or username/password")
		}
	}
	return nil
}

// extractPlan extracts a plan catalog entry from a CUE value.
func (cp *CUEParser) extractPlan(val cue.Value) (PlanConfig, error) {
	var plan PlanConfig

	if err := val.Decode(&plan); err != nil {
		return plan, fmt.Errorf("failed to decode plan: %w", err)
	}

	if err := cp.validator.Struct(plan); err != nil {
		return plan, fmt.Errorf("validation failed: %w", err)
	}

	return plan, nil
}

// selectorName strips CUE selector quoting from a field name.
func selectorName(s string) string {
	return strings.Trim(s, `"`)
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	// Handle CUE error types
	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedConfig, error) {
	val := cp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractConfig(val, []string{"inline"})
}

// ValidateWithSchema validates a CUE value against a schema.
func (cp *CUEParser) ValidateWithSchema(ctx context.Context, data interface{}, schemaName string) error {
	return cp.schemaRegistry.ValidateAgainstSchema(ctx, schemaName, data)
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExtractValue extracts a specific path from a CUE configuration.
func (cp *CUEParser) ExtractValue(val cue.Value, path string) (interface{}, error) {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("path %s not found", path)
	}

	// Try to decode to JSON first
	var result interface{}
	if err := v.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode value at %s: %w", path, err)
	}

	return result, nil
}

// MergeValues merges two CUE values.
func (cp *CUEParser) MergeValues(val1, val2 cue.Value) (cue.Value, error) {
	merged := val1.Unify(val2)
	if err := merged.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to merge values: %w", err)
	}
	return merged, nil
}

// ExportJSON exports a CUE value to JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return json.MarshalIndent(data, "", "  ")
}

// LoadFromDirectory loads all CUE files from a directory.
func (cp *CUEParser) LoadFromDirectory(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
