// Package config provides CUE configuration parsing and Starlark evaluation
// for the cloudmast orchestrator.
//
// # Overview
//
// The config package implements the configuration loading phase of cloudmast,
// responsible for parsing CUE files that define provider services, the billing
// plan catalog, orchestrator tuning and the policy gate, validating them, and
// executing Starlark pricing hooks.
//
// # Features
//
//   - CUE configuration parsing from files, directories, and inline content
//   - Schema validation with built-in schemas for services, plans and settings
//   - Starlark pricing hook execution for discounts and tax
//   - Credential hot reload via an fsnotify watcher
//   - YAML plan catalog fallback
//   - Error reporting with file locations and line numbers
//   - Configuration merging from multiple sources
//
// # Components
//
// CUEParser: Main parser for CUE configuration files. Load is the CLI entry
// point and fails on any validation error.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides built-in schemas
// for services, plans, settings and policy, and supports custom registration.
//
// StarlarkEvaluator: Safe Starlark script execution with timeout enforcement
// and sandboxing. EvaluatePrice runs a plan's pricing hook.
//
// Watcher: fsnotify-based hot reload so service credentials rotate without a
// restart.
//
// # Usage Example
//
//	// Create a new parser
//	parser := config.NewCUEParser()
//
//	// Load configuration files
//	cfg, err := parser.Load(ctx, []string{"mast.cue"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Resolve a plan's effective price through its pricing hook
//	price, err := parser.PlanPrice(ctx, cfg.Plans[0])
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # CUE Configuration Structure
//
// A typical configuration defines services, the plan catalog and tuning:
//
//	settings: {
//	    poll_attempts: 300
//	    poll_delay_seconds: 3
//	    parallelism: 8
//	    database_path: "./mast.db"
//	}
//
//	services: {
//	    do_prod: {
//	        name: "do-prod"
//	        provider: "digitalocean"
//	        credentials: {token: "dop_v1_..."}
//	        regions: ["ams3", "fra1"]
//	    }
//	    aws_eu: {
//	        name: "aws-eu"
//	        provider: "aws"
//	        credentials: {access_key: "AKIA...", secret_key: "..."}
//	        options: {images_regex: "^ubuntu-.*"}
//	    }
//	}
//
//	plans: [
//	    {name: "Small", monthly_price: 10.0, quotas: {vcpu: 4, ram: 8192}, default: true},
//	    {name: "Large", monthly_price: 50.0, quotas: {vcpu: 32, ram: -1}},
//	]
//
// # Starlark Pricing Hooks
//
// A plan entry may carry a pricing script that adjusts its base price.
// The script receives base_price and quotas and sets a price global:
//
//	price = base_price * 0.9  # launch discount
//
// # Error Handling
//
// All parsing and validation errors include detailed location information:
//
//	ValidationError{
//	    File: "mast.cue",
//	    Line: 42,
//	    Column: 5,
//	    Path: "services.do_prod.credentials",
//	    Message: "digitalocean service requires credentials.token",
//	    Severity: "error",
//	}
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//   - Only safe built-in functions provided
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
