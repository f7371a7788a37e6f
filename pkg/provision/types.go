package provision

import (
	"time"
)

// ResourceKind discriminates the platform-managed entity types.
type ResourceKind string

const (
	// KindMachine is a virtual machine (instance, droplet, VM).
	KindMachine ResourceKind = "machine"

	// KindVolume is a block storage volume.
	KindVolume ResourceKind = "volume"

	// KindGroup is a source-hosting group (GitLab).
	KindGroup ResourceKind = "group"

	// KindProject is a source-hosting project (GitLab).
	KindProject ResourceKind = "project"
)

// Resource is a platform-managed entity backed by a vendor-side object.
type Resource struct {
	// ID is the unique platform identifier.
	ID string `json:"id"`

	// Kind is the resource kind.
	Kind ResourceKind `json:"kind"`

	// Name is the human-readable name.
	Name string `json:"name"`

	// Provider is the backend kind managing this resource.
	Provider string `json:"provider"`

	// Service is the name of the configured service this resource belongs to.
	Service string `json:"service"`

	// BackendID is the vendor-side identifier, empty until provisioned.
	BackendID string `json:"backend_id,omitempty"`

	// State is the coarse lifecycle state.
	State State `json:"state"`

	// RuntimeState is the raw vendor-reported status (e.g. "active", "off").
	RuntimeState string `json:"runtime_state,omitempty"`

	// Region is the vendor region or location identifier.
	Region string `json:"region,omitempty"`

	// Cores is the number of virtual cores.
	Cores int `json:"cores,omitempty"`

	// RAM is the memory size in MiB.
	RAM int `json:"ram,omitempty"`

	// Disk is the disk size in MiB.
	Disk int `json:"disk,omitempty"`

	// ExternalIP is the public address, recorded when the resource comes online.
	ExternalIP string `json:"external_ip,omitempty"`

	// InternalIP is the private address, when the vendor reports one.
	InternalIP string `json:"internal_ip,omitempty"`

	// KeyName is the name of the SSH public key pushed at provision time.
	KeyName string `json:"key_name,omitempty"`

	// KeyFingerprint is the MD5 fingerprint of the SSH public key.
	KeyFingerprint string `json:"key_fingerprint,omitempty"`

	// URL is the vendor-side web address of the object, for resource
	// kinds that have one (git groups and projects).
	URL string `json:"url,omitempty"`

	// Labels are key-value pairs for organizing and selecting resources.
	Labels map[string]string `json:"labels,omitempty"`

	// ErrorMessage holds the last failure reason when State is erred.
	ErrorMessage string `json:"error_message,omitempty"`

	// StartTime is when the resource last came online.
	StartTime *time.Time `json:"start_time,omitempty"`

	// CreatedAt is when the resource was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the resource was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	// Version is the resource version for optimistic locking.
	Version int64 `json:"version"`
}

// OperationKind enumerates the lifecycle operations a chain can run.
type OperationKind string

const (
	OpProvision OperationKind = "provision"
	OpStart     OperationKind = "start"
	OpStop      OperationKind = "stop"
	OpRestart   OperationKind = "restart"
	OpResize    OperationKind = "resize"
	OpDestroy   OperationKind = "destroy"
)

// Validate checks if the operation kind is known.
func (o OperationKind) Validate() error {
	switch o {
	case OpProvision, OpStart, OpStop, OpRestart, OpResize, OpDestroy:
		return nil
	}
	return NewPermanentError("unknown operation kind", nil).WithCode(ErrCodeValidation)
}

// IsDestructive returns true if the operation removes the resource.
func (o OperationKind) IsDestructive() bool {
	return o == OpDestroy
}

// OperationStatus is the platform-side status of a lifecycle operation.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// IsTerminal returns true for settled operation statuses.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusSucceeded || s == OperationStatusFailed
}

// Operation is the in-flight ledger entry for a lifecycle operation.
// At most one non-terminal operation exists per resource.
type Operation struct {
	// ID is the unique operation identifier.
	ID string `json:"id"`

	// ResourceID is the resource this operation drives.
	ResourceID string `json:"resource_id"`

	// Kind is the lifecycle operation kind.
	Kind OperationKind `json:"kind"`

	// Status is the platform-side status.
	Status OperationStatus `json:"status"`

	// ActionID is the opaque vendor-side action handle being polled.
	ActionID string `json:"action_id,omitempty"`

	// Attempts is the number of poll attempts consumed.
	Attempts int `json:"attempts"`

	// Error holds the failure, if the operation failed.
	Error *BackendError `json:"error,omitempty"`

	// StartedAt is when the operation started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the operation reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ActionStatus is the vendor-side status of an asynchronous action.
type ActionStatus string

const (
	// ActionPending means the vendor action has not settled yet.
	ActionPending ActionStatus = "pending"

	// ActionCompleted means the vendor action finished successfully.
	ActionCompleted ActionStatus = "completed"

	// ActionFailed means the vendor action failed remotely.
	ActionFailed ActionStatus = "failed"
)

// Region is a canonical vendor region or location.
type Region struct {
	BackendID string `json:"backend_id"`
	Name      string `json:"name"`
}

// Image is a canonical machine image.
type Image struct {
	BackendID    string   `json:"backend_id"`
	Name         string   `json:"name"`
	Distribution string   `json:"distribution,omitempty"`
	Type         string   `json:"type,omitempty"`
	Regions      []string `json:"regions,omitempty"`
}

// Size is a canonical machine size/flavor.
type Size struct {
	BackendID string `json:"backend_id"`
	Name      string `json:"name"`

	// Cores is the number of virtual cores.
	Cores int `json:"cores"`

	// RAM is the memory size in MiB.
	RAM int `json:"ram"`

	// Disk is the disk size in MiB.
	Disk int `json:"disk"`

	// Transfer is the bandwidth allowance in MiB, when the vendor reports one.
	Transfer int `json:"transfer,omitempty"`

	// HourlyPrice is the vendor price per hour.
	HourlyPrice float64 `json:"hourly_price,omitempty"`

	// Regions lists the region backend IDs offering this size.
	Regions []string `json:"regions,omitempty"`
}

// MachineSpec is the canonical request shape for provisioning a machine.
type MachineSpec struct {
	Name     string `json:"name"`
	Region   string `json:"region"`
	ImageID  string `json:"image_id"`
	SizeID   string `json:"size_id"`
	UserData string `json:"user_data,omitempty"`

	// SSHKey is an optional public key to install on the machine.
	SSHKey *SSHKey `json:"ssh_key,omitempty"`

	// Labels are propagated to the resource record.
	Labels map[string]string `json:"labels,omitempty"`
}

// RemoteResource is the canonical shape of a vendor-side object, used by
// sync and import.
type RemoteResource struct {
	BackendID    string       `json:"backend_id"`
	Kind         ResourceKind `json:"kind"`
	Name         string       `json:"name"`
	State        State        `json:"state"`
	RuntimeState string       `json:"runtime_state,omitempty"`
	Region       string       `json:"region,omitempty"`
	Cores        int          `json:"cores,omitempty"`
	RAM          int          `json:"ram,omitempty"`
	Disk         int          `json:"disk,omitempty"`
	ExternalIP   string       `json:"external_ip,omitempty"`
	InternalIP   string       `json:"internal_ip,omitempty"`
	FlavorName   string       `json:"flavor_name,omitempty"`
	URL          string       `json:"url,omitempty"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
}
