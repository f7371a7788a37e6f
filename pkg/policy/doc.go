// Package policy provides Open Policy Agent (OPA) integration for cloudmast.
//
// This package implements policy enforcement for resource lifecycle
// operations using the Rego policy language. It includes built-in policies
// for common governance requirements and supports custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Gate - Adapts the engine to the runner's authorization hook
//  3. Loader - Loads policies from files, directories, and bundles
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine and wiring it to a runner:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gate := policy.NewGate(eng, logger, policy.WithMode(policy.ModeEnforcing))
//	runner := provision.NewRunner(store, registry, provision.WithGate(gate))
//
// The gate evaluates every policy against the resource and operation
// before the chain starts. In enforcing mode a blocking violation fails
// the operation with a POLICY_DENIED error; in advisory mode violations
// are logged and the operation proceeds.
//
// Evaluating a resource outside an operation:
//
//	result, err := eng.EvaluateResource(ctx, resource)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/cloudmast/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = eng.LoadPolicies(ctx, paths)
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. protected-resources - Blocks destroy/stop/resize of resources labeled protected
//  2. allowed-providers - Restricts resources to the supported cloud providers
//  3. region-restrictions - Production resources must live in an approved region
//  4. resource-naming - Enforces naming conventions at provision time
//  5. production-safety - Blocks destroy of production resources outside dry runs
//
// # Custom Policies
//
// Custom policies are written in Rego and loaded from .rego files.
// Violations are collected from the module's deny rule; the input
// document carries the resource, the operation name, and an ambient
// context:
//
//	# Require a backup label before destroying anything
//	# severity: error
//	# tags: backup, safety
//	package custom.policies.backup
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.operation == "destroy"
//	    not input.resource.labels.backup
//
//	    violation := {
//	        "message": "Resources without a backup label cannot be destroyed",
//	        "severity": "error",
//	        "resource": input.resource.id,
//	    }
//	}
//
// Leading comment directives (severity:, tags:) set policy metadata;
// remaining comment lines become the description.
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block operations
//   - error: Issues that block operations
//   - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The
// engine uses OPA's PreparedEvalQuery and caches parsed files at the
// loader level.
package policy
