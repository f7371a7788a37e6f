package provision

import (
	"context"
	"time"
)

// SyncStore is the persistence surface sync needs.
type SyncStore interface {
	ListResources(ctx context.Context, service string) ([]Resource, error)
	SaveResource(ctx context.Context, r *Resource) error
	ReplaceProperties(ctx context.Context, service string, props *Properties) error
}

// SyncResult summarizes one sync pass over a service.
type SyncResult struct {
	Service string `json:"service"`

	// Regions, Images, Sizes count the catalog objects pulled.
	Regions int `json:"regions"`
	Images  int `json:"images"`
	Sizes   int `json:"sizes"`

	// Refreshed counts local resources whose state was updated from the
	// vendor.
	Refreshed int `json:"refreshed"`

	// Stale counts local resources marked erred because the vendor no
	// longer knows them.
	Stale int `json:"stale"`

	// Duration is the wall time of the pass.
	Duration time.Duration `json:"duration"`
}

// Syncer reconciles local resource records with vendor-side reality:
// pulls the vendor catalog, refreshes the state of matching resources
// and marks records erred when their vendor object disappeared.
type Syncer struct {
	store    SyncStore
	backends *Registry
	events   EventSink
	logger   Logger
}

// NewSyncer creates a syncer over the store and registry.
func NewSyncer(store SyncStore, backends *Registry, events EventSink, logger Logger) *Syncer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Syncer{store: store, backends: backends, events: events, logger: logger}
}

// Sync runs a full pass for one service: catalog first, then resources.
func (s *Syncer) Sync(ctx context.Context, service string) (*SyncResult, error) {
	backend, err := s.backends.Get(service)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &SyncResult{Service: service}

	props, err := backend.PullProperties(ctx)
	if err != nil {
		return nil, err
	}
	if props != nil {
		if err := s.store.ReplaceProperties(ctx, service, props); err != nil {
			return nil, err
		}
		result.Regions = len(props.Regions)
		result.Images = len(props.Images)
		result.Sizes = len(props.Sizes)
	}

	if err := s.syncResources(ctx, service, backend, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	if s.events != nil {
		s.events.Emit(ctx, EventSyncCompleted, "", "sync completed", map[string]interface{}{
			"service":   service,
			"refreshed": result.Refreshed,
			"stale":     result.Stale,
		})
	}
	return result, nil
}

func (s *Syncer) syncResources(ctx context.Context, service string, backend Backend, result *SyncResult) error {
	remotes, err := backend.PullResources(ctx)
	if err != nil {
		return err
	}
	remoteByID := make(map[string]RemoteResource, len(remotes))
	for _, remote := range remotes {
		remoteByID[remote.BackendID] = remote
	}

	locals, err := s.store.ListResources(ctx, service)
	if err != nil {
		return err
	}

	for i := range locals {
		local := &locals[i]
		if local.BackendID == "" || local.State.InTransition() {
			// Resources mid-chain are owned by the runner; unprovisioned
			// ones have nothing to reconcile against.
			continue
		}

		remote, exists := remoteByID[local.BackendID]
		if !exists {
			if local.State == StateErred {
				continue
			}
			local.SetErred()
			local.ErrorMessage = "vendor-side object disappeared"
			if err := s.store.SaveResource(ctx, local); err != nil {
				return err
			}
			result.Stale++
			s.logger.Warnf("resource %s (%s) vanished on the vendor side, marked erred", local.ID, local.BackendID)
			continue
		}

		if local.State == remote.State && local.RuntimeState == remote.RuntimeState {
			continue
		}
		local.State = remote.State
		local.RuntimeState = remote.RuntimeState
		if remote.ExternalIP != "" {
			local.ExternalIP = remote.ExternalIP
		}
		if remote.URL != "" {
			local.URL = remote.URL
		}
		local.Version++
		if err := s.store.SaveResource(ctx, local); err != nil {
			return err
		}
		result.Refreshed++
	}
	return nil
}

// ImportCandidates lists vendor-side resources not yet tracked locally,
// in the canonical import shape.
func (s *Syncer) ImportCandidates(ctx context.Context, service string) ([]RemoteResource, error) {
	backend, err := s.backends.Get(service)
	if err != nil {
		return nil, err
	}

	remotes, err := backend.PullResources(ctx)
	if err != nil {
		return nil, err
	}

	locals, err := s.store.ListResources(ctx, service)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]struct{}, len(locals))
	for _, local := range locals {
		if local.BackendID != "" {
			tracked[local.BackendID] = struct{}{}
		}
	}

	candidates := make([]RemoteResource, 0, len(remotes))
	for _, remote := range remotes {
		if _, ok := tracked[remote.BackendID]; ok {
			continue
		}
		if remote.State == StateDeleted {
			continue
		}
		candidates = append(candidates, remote)
	}
	return candidates, nil
}
