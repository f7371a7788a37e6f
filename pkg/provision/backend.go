package provision

import (
	"context"
)

// ServiceSettings carries the credentials and options of a configured
// service account against a vendor API.
type ServiceSettings struct {
	// Name is the configured service name (unique).
	Name string `json:"name" validate:"required"`

	// Provider is the backend kind, e.g. "digitalocean", "aws".
	Provider string `json:"provider" validate:"required"`

	// Token is the API token, when the vendor uses token auth.
	Token string `json:"token,omitempty"`

	// Username and Password are used by vendors with basic credentials
	// (AWS access key ID / secret, GitLab username/password).
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// BaseURL overrides the vendor API endpoint (GitLab host, Azure cloud).
	BaseURL string `json:"base_url,omitempty"`

	// Options holds provider-specific settings, e.g. "images_regex",
	// "resource_group", "tenant_id".
	Options map[string]string `json:"options,omitempty"`
}

// Option returns a provider-specific option value, or the fallback.
func (s ServiceSettings) Option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Properties is the set of vendor catalog objects pulled during sync.
type Properties struct {
	Regions []Region `json:"regions,omitempty"`
	Images  []Image  `json:"images,omitempty"`
	Sizes   []Size   `json:"sizes,omitempty"`
}

// Backend is the per-provider adapter contract. Implementations wrap a
// vendor SDK, classify vendor errors into BackendError and translate
// vendor objects into the canonical shapes.
type Backend interface {
	// Kind returns the backend kind, e.g. "digitalocean".
	Kind() string

	// Ping checks service reachability with the configured credentials.
	Ping(ctx context.Context) error

	// PullProperties fetches the vendor catalog (regions, images, sizes).
	PullProperties(ctx context.Context) (*Properties, error)

	// PullResources fetches all vendor-side resources owned by the service.
	PullResources(ctx context.Context) ([]RemoteResource, error)
}

// CreateResult is returned by resource creation calls.
type CreateResult struct {
	// BackendID is the vendor identifier of the new object.
	BackendID string

	// ActionID is the opaque handle of the asynchronous vendor action to
	// poll. Empty when the operation completed synchronously.
	ActionID string
}

// MachineBackend is implemented by backends that manage virtual machines.
// Lifecycle calls return an opaque action handle; an empty handle means
// the operation already settled. The handle's format is private to the
// backend that issued it.
type MachineBackend interface {
	Backend

	// CreateMachine requests a new machine and returns its backend ID and
	// the creation action handle.
	CreateMachine(ctx context.Context, spec MachineSpec) (*CreateResult, error)

	// StartMachine powers the machine on.
	StartMachine(ctx context.Context, backendID string) (string, error)

	// StopMachine powers the machine off.
	StopMachine(ctx context.Context, backendID string) (string, error)

	// RestartMachine reboots the machine.
	RestartMachine(ctx context.Context, backendID string) (string, error)

	// ResizeMachine changes the machine size/flavor.
	ResizeMachine(ctx context.Context, backendID, sizeID string) (string, error)

	// DestroyMachine removes the machine. A not-found error means the
	// machine is already gone remotely.
	DestroyMachine(ctx context.Context, backendID string) (string, error)

	// GetMachine fetches the machine's canonical representation.
	GetMachine(ctx context.Context, backendID string) (*RemoteResource, error)

	// GetAction reports the status of a previously issued action handle.
	GetAction(ctx context.Context, actionID string) (ActionStatus, error)
}

// ActionReporter reports the status of asynchronous vendor actions.
// Backends whose operations settle synchronously never issue handles
// and may omit it.
type ActionReporter interface {
	GetAction(ctx context.Context, actionID string) (ActionStatus, error)
}

// GroupSpec is the canonical request shape for creating a git group.
type GroupSpec struct {
	Name string `json:"name"`

	// Path is the URL path segment. Derived from Name when empty.
	Path string `json:"path,omitempty"`

	Description string `json:"description,omitempty"`

	// Visibility is private, internal or public.
	Visibility string `json:"visibility,omitempty"`
}

// ProjectSpec is the canonical request shape for creating a git project.
type ProjectSpec struct {
	Name string `json:"name"`

	// Path is the URL path segment. Derived from Name when empty.
	Path string `json:"path,omitempty"`

	Description string `json:"description,omitempty"`

	// GroupID is the backend ID of the parent group; empty creates the
	// project in the service account's own namespace.
	GroupID string `json:"group_id,omitempty"`

	// Visibility is private, internal or public.
	Visibility string `json:"visibility,omitempty"`

	WikiEnabled          bool `json:"wiki_enabled"`
	IssuesEnabled        bool `json:"issues_enabled"`
	SnippetsEnabled      bool `json:"snippets_enabled"`
	MergeRequestsEnabled bool `json:"merge_requests_enabled"`
}

// CollabBackend is implemented by backends that manage git collaboration
// objects (groups and projects). Operations settle synchronously: the
// returned action handle is always empty.
type CollabBackend interface {
	Backend

	// CreateGroup creates a new group.
	CreateGroup(ctx context.Context, spec GroupSpec) (*CreateResult, error)

	// CreateProject creates a new project, optionally inside a group.
	CreateProject(ctx context.Context, spec ProjectSpec) (*CreateResult, error)

	// DeleteObject removes a group or project. A not-found error means
	// the object is already gone remotely.
	DeleteObject(ctx context.Context, kind ResourceKind, backendID string) error

	// GetObject fetches the canonical representation of a group or project.
	GetObject(ctx context.Context, kind ResourceKind, backendID string) (*RemoteResource, error)
}

// VolumeSpec is the canonical request shape for creating a volume.
type VolumeSpec struct {
	Name string `json:"name"`

	// SizeGiB is the volume size in GiB.
	SizeGiB int `json:"size_gib"`

	Region string `json:"region"`

	// Type is the vendor volume type (e.g. "gp2", "io1", "standard").
	Type string `json:"type,omitempty"`
}

// VolumeBackend is implemented by backends that manage block storage.
type VolumeBackend interface {
	// CreateVolume requests a new volume.
	CreateVolume(ctx context.Context, spec VolumeSpec) (*CreateResult, error)

	// DeleteVolume removes a volume.
	DeleteVolume(ctx context.Context, backendID string) error

	// AttachVolume attaches a volume to a machine under the given device name.
	AttachVolume(ctx context.Context, machineID, volumeID, device string) error

	// DetachVolume detaches a volume from whatever machine holds it.
	DetachVolume(ctx context.Context, backendID string) error

	// GetVolume fetches the volume's canonical representation.
	GetVolume(ctx context.Context, backendID string) (*RemoteResource, error)
}

// KeyBackend is implemented by backends that track SSH public keys.
type KeyBackend interface {
	// EnsureKey uploads the key unless one with the same fingerprint
	// exists, and returns the vendor-side key identifier.
	EnsureKey(ctx context.Context, key SSHKey) (string, error)

	// RemoveKey deletes the key; a missing key is not an error.
	RemoveKey(ctx context.Context, key SSHKey) error
}

// CostEstimator is implemented by backends that can price a resource.
type CostEstimator interface {
	// MonthlyCostEstimate returns the estimated monthly price of the
	// vendor-side object.
	MonthlyCostEstimate(ctx context.Context, backendID string) (float64, error)
}

// ResourcePinger is implemented by backends that can cheaply probe a
// single vendor-side object.
type ResourcePinger interface {
	// PingResource reports whether the vendor-side object is reachable.
	PingResource(ctx context.Context, backendID string) bool
}
