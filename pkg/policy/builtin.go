package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedResourcesPolicy(),
		allowedProvidersPolicy(),
		regionRestrictionsPolicy(),
		resourceNamingPolicy(),
		productionSafetyPolicy(),
	}
}

// protectedResourcesPolicy blocks destructive operations on resources
// carrying the protected label.
func protectedResourcesPolicy() Policy {
	return Policy{
		Name:        "protected-resources",
		Description: "Blocks destroy, stop, and resize of resources labeled protected",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"operations", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudmast.policies.protected

import rego.v1

guarded_operations := ["destroy", "stop", "resize"]

deny contains violation if {
	input.resource
	resource := input.resource

	some op in guarded_operations
	input.operation == op

	resource.labels.protected == "true"

	violation := {
		"message": sprintf("Cannot %s resource %s: marked as protected", [op, resource.name]),
		"severity": "critical",
		"resource": resource.id,
	}
}`,
	}
}

// allowedProvidersPolicy restricts which backends may host resources.
func allowedProvidersPolicy() Policy {
	return Policy{
		Name:        "allowed-providers",
		Description: "Restricts resources to the supported cloud providers",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"providers"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudmast.policies.providers

import rego.v1

allowed_providers := ["digitalocean", "aws", "azure", "gitlab"]

deny contains violation if {
	input.resource
	resource := input.resource

	not resource.provider in allowed_providers

	violation := {
		"message": sprintf("Resource %s uses unsupported provider: %s", [resource.name, resource.provider]),
		"severity": "error",
		"resource": resource.id,
	}
}`,
	}
}

// regionRestrictionsPolicy flags production resources provisioned outside
// the approved regions for their provider.
func regionRestrictionsPolicy() Policy {
	return Policy{
		Name:        "region-restrictions",
		Description: "Production resources must live in an approved region",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"regions", "compliance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudmast.policies.regions

import rego.v1

approved_regions := {
	"digitalocean": ["ams3", "fra1", "lon1"],
	"aws": ["eu-west-1", "eu-central-1"],
	"azure": ["westeurope", "northeurope"],
}

deny contains violation if {
	input.resource
	resource := input.resource

	resource.labels.env == "production"
	resource.region != ""

	regions := approved_regions[resource.provider]
	not resource.region in regions

	violation := {
		"message": sprintf("Production resource %s is in unapproved region %s", [resource.name, resource.region]),
		"severity": "warning",
		"resource": resource.id,
	}
}`,
	}
}

// resourceNamingPolicy enforces resource naming conventions.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Enforces resource naming conventions at provision time",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudmast.policies.naming

import rego.v1

deny contains violation if {
	input.operation == "provision"
	input.resource
	resource := input.resource

	not resource.name
	violation := {
		"message": sprintf("Resource %s must have a name", [resource.id]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.operation == "provision"
	input.resource
	resource := input.resource
	name := resource.name

	lower(name) != name
	violation := {
		"message": sprintf("Resource name '%s' must be lowercase", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.operation == "provision"
	input.resource
	resource := input.resource
	name := resource.name

	not regex.match("^[a-z0-9][a-z0-9-]*[a-z0-9]$", name)
	violation := {
		"message": sprintf("Resource name '%s' must contain only lowercase letters, numbers, and hyphens", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.operation == "provision"
	input.resource
	resource := input.resource
	name := resource.name

	count(name) > 63
	violation := {
		"message": sprintf("Resource name '%s' must not exceed 63 characters", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}`,
	}
}

// productionSafetyPolicy blocks destroys in production environments
// unless the evaluation is a dry run.
func productionSafetyPolicy() Policy {
	return Policy{
		Name:        "production-safety",
		Description: "Blocks destroy of production-labeled resources outside dry runs",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"operations", "safety", "production"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudmast.policies.production

import rego.v1

deny contains violation if {
	input.resource
	input.context
	resource := input.resource

	input.operation == "destroy"
	resource.labels.env == "production"
	not input.context.dry_run

	violation := {
		"message": sprintf("Destroy of production resource %s requires a dry run first", [resource.name]),
		"severity": "critical",
		"resource": resource.id,
	}
}`,
	}
}
