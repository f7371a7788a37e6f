package provision

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the runner needs: resource records
// and the in-flight operation ledger.
type Store interface {
	GetResource(ctx context.Context, id string) (*Resource, error)
	SaveResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id string) error

	// CreateOperation records a new running operation. Implementations
	// must reject a second non-terminal operation for the same resource
	// with a conflict error.
	CreateOperation(ctx context.Context, op *Operation) error

	// CompleteOperation persists the terminal status of an operation.
	CompleteOperation(ctx context.Context, op *Operation) error

	// ActiveOperation returns the non-terminal operation for a resource,
	// or nil when the resource is idle.
	ActiveOperation(ctx context.Context, resourceID string) (*Operation, error)
}

// Gate authorizes lifecycle operations before they run. A nil gate
// allows everything.
type Gate interface {
	Authorize(ctx context.Context, r *Resource, op OperationKind) error
}

// ChainMetrics receives execution measurements. A nil implementation is
// valid.
type ChainMetrics interface {
	ObserveOperation(provider string, kind OperationKind, status OperationStatus, d time.Duration)
	ObservePollAttempts(provider string, kind OperationKind, attempts int)
}

// Callbacks fire exactly once per chain: either OnSuccess or OnFailure,
// never both. The resource's lifecycle state has already been committed
// when a callback runs.
type Callbacks struct {
	OnSuccess func(r *Resource)
	OnFailure func(r *Resource, err error)
}

// Runner drives resources through lifecycle task chains: request the
// change against the backend, poll the resulting vendor action to
// completion, then commit the final state and side effects. Each
// resource has at most one in-flight chain; concurrent requests are
// rejected with a conflict error.
type Runner struct {
	store    Store
	backends *Registry
	poller   *Poller
	alerts   *Alerter
	events   EventSink
	gate     Gate
	metrics  ChainMetrics
	logger   Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Logger is the minimal logging surface the engine needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// nopLogger drops everything.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithPoller overrides the default poll budget.
func WithPoller(p *Poller) RunnerOption {
	return func(r *Runner) { r.poller = p }
}

// WithAlerter wires the compensating alert actions.
func WithAlerter(a *Alerter) RunnerOption {
	return func(r *Runner) { r.alerts = a }
}

// WithEvents wires the event sink.
func WithEvents(e EventSink) RunnerOption {
	return func(r *Runner) { r.events = e }
}

// WithGate wires the policy gate.
func WithGate(g Gate) RunnerOption {
	return func(r *Runner) { r.gate = g }
}

// WithMetrics wires chain metrics.
func WithMetrics(m ChainMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger wires the logger.
func WithLogger(l Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner over the given store and backend registry.
func NewRunner(store Store, backends *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:    store,
		backends: backends,
		poller:   NewPoller(0, 0),
		logger:   nopLogger{},
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provision runs the create chain: created -> provisioning -> online.
func (r *Runner) Provision(ctx context.Context, resourceID string, spec MachineSpec, cb Callbacks) error {
	return r.run(ctx, resourceID, OpProvision, StateProvisioning, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			mb, err := machineBackend(b)
			if err != nil {
				return "", err
			}
			created, err := mb.CreateMachine(ctx, spec)
			if err != nil {
				return "", err
			}
			res.BackendID = created.BackendID
			if spec.SSHKey != nil {
				res.KeyName = spec.SSHKey.Name
				res.KeyFingerprint = spec.SSHKey.Fingerprint
			}
			if err := r.store.SaveResource(ctx, res); err != nil {
				return "", NewPermanentError("failed to record backend id", err).WithCode(ErrCodeInternal)
			}
			return created.ActionID, nil
		},
		r.settleOnline)
}

// ProvisionGroup runs the create chain for a git group. Group creation
// settles synchronously, so no vendor action is polled.
func (r *Runner) ProvisionGroup(ctx context.Context, resourceID string, spec GroupSpec, cb Callbacks) error {
	return r.run(ctx, resourceID, OpProvision, StateProvisioning, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			colb, err := collabBackend(b)
			if err != nil {
				return "", err
			}
			created, err := colb.CreateGroup(ctx, spec)
			if err != nil {
				return "", err
			}
			res.BackendID = created.BackendID
			if err := r.store.SaveResource(ctx, res); err != nil {
				return "", NewPermanentError("failed to record backend id", err).WithCode(ErrCodeInternal)
			}
			return created.ActionID, nil
		},
		r.settleObject)
}

// ProvisionProject runs the create chain for a git project.
func (r *Runner) ProvisionProject(ctx context.Context, resourceID string, spec ProjectSpec, cb Callbacks) error {
	return r.run(ctx, resourceID, OpProvision, StateProvisioning, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			colb, err := collabBackend(b)
			if err != nil {
				return "", err
			}
			created, err := colb.CreateProject(ctx, spec)
			if err != nil {
				return "", err
			}
			res.BackendID = created.BackendID
			if err := r.store.SaveResource(ctx, res); err != nil {
				return "", NewPermanentError("failed to record backend id", err).WithCode(ErrCodeInternal)
			}
			return created.ActionID, nil
		},
		r.settleObject)
}

// ProvisionVolume runs the create chain for a block storage volume.
func (r *Runner) ProvisionVolume(ctx context.Context, resourceID string, spec VolumeSpec, cb Callbacks) error {
	return r.run(ctx, resourceID, OpProvision, StateProvisioning, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			vb, err := volumeBackend(b)
			if err != nil {
				return "", err
			}
			created, err := vb.CreateVolume(ctx, spec)
			if err != nil {
				return "", err
			}
			res.BackendID = created.BackendID
			if err := r.store.SaveResource(ctx, res); err != nil {
				return "", NewPermanentError("failed to record backend id", err).WithCode(ErrCodeInternal)
			}
			return created.ActionID, nil
		},
		r.settleVolume)
}

// Start runs the power-on chain: offline -> starting -> online.
func (r *Runner) Start(ctx context.Context, resourceID string, cb Callbacks) error {
	return r.run(ctx, resourceID, OpStart, StateStarting, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			mb, err := machineBackend(b)
			if err != nil {
				return "", err
			}
			return mb.StartMachine(ctx, res.BackendID)
		},
		r.settleOnline)
}

// Stop runs the power-off chain: online -> stopping -> offline.
func (r *Runner) Stop(ctx context.Context, resourceID string, cb Callbacks) error {
	return r.run(ctx, resourceID, OpStop, StateStopping, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			mb, err := machineBackend(b)
			if err != nil {
				return "", err
			}
			return mb.StopMachine(ctx, res.BackendID)
		},
		func(ctx context.Context, res *Resource, _ Backend) error {
			res.StartTime = nil
			return res.Transition(StateOffline)
		})
}

// Restart runs the reboot chain: online -> restarting -> online.
func (r *Runner) Restart(ctx context.Context, resourceID string, cb Callbacks) error {
	return r.run(ctx, resourceID, OpRestart, StateRestarting, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			mb, err := machineBackend(b)
			if err != nil {
				return "", err
			}
			return mb.RestartMachine(ctx, res.BackendID)
		},
		r.settleOnline)
}

// Resize runs the resize chain: offline -> resizing -> online. The new
// size's dimensions are committed on success.
func (r *Runner) Resize(ctx context.Context, resourceID string, size Size, cb Callbacks) error {
	return r.run(ctx, resourceID, OpResize, StateResizing, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			mb, err := machineBackend(b)
			if err != nil {
				return "", err
			}
			return mb.ResizeMachine(ctx, res.BackendID, size.BackendID)
		},
		func(ctx context.Context, res *Resource, _ Backend) error {
			res.Cores = size.Cores
			res.RAM = size.RAM
			res.Disk = size.Disk
			return res.Transition(StateOnline)
		})
}

// Destroy runs the teardown chain: * -> deleting -> deleted. A not-found
// answer from the vendor means the object is already gone and counts as
// success.
func (r *Runner) Destroy(ctx context.Context, resourceID string, cb Callbacks) error {
	return r.run(ctx, resourceID, OpDestroy, StateDeleting, cb,
		func(ctx context.Context, res *Resource, b Backend) (string, error) {
			var actionID string
			var err error
			switch res.Kind {
			case KindGroup, KindProject:
				var colb CollabBackend
				colb, err = collabBackend(b)
				if err == nil {
					err = colb.DeleteObject(ctx, res.Kind, res.BackendID)
				}
			case KindVolume:
				var vb VolumeBackend
				vb, err = volumeBackend(b)
				if err == nil {
					err = vb.DeleteVolume(ctx, res.BackendID)
				}
			default:
				var mb MachineBackend
				mb, err = machineBackend(b)
				if err == nil {
					actionID, err = mb.DestroyMachine(ctx, res.BackendID)
				}
			}
			if IsNotFound(err) {
				return "", nil
			}
			return actionID, err
		},
		func(ctx context.Context, res *Resource, _ Backend) error {
			if err := res.Transition(StateDeleted); err != nil {
				return err
			}
			return r.store.DeleteResource(ctx, res.ID)
		})
}

// requestFunc issues the backend change and returns the action handle.
type requestFunc func(ctx context.Context, res *Resource, b Backend) (string, error)

// settleFunc commits the success side of a chain.
type settleFunc func(ctx context.Context, res *Resource, b Backend) error

// machineBackend asserts machine lifecycle support.
func machineBackend(b Backend) (MachineBackend, error) {
	mb, ok := b.(MachineBackend)
	if !ok {
		return nil, NewPermanentError("service backend does not manage machines", nil).
			WithCode(ErrCodeValidation)
	}
	return mb, nil
}

// volumeBackend asserts block storage support.
func volumeBackend(b Backend) (VolumeBackend, error) {
	vb, ok := b.(VolumeBackend)
	if !ok {
		return nil, NewPermanentError("service backend does not manage volumes", nil).
			WithCode(ErrCodeValidation)
	}
	return vb, nil
}

// collabBackend asserts git group/project support.
func collabBackend(b Backend) (CollabBackend, error) {
	cb, ok := b.(CollabBackend)
	if !ok {
		return nil, NewPermanentError("service backend does not manage git objects", nil).
			WithCode(ErrCodeValidation)
	}
	return cb, nil
}

// settleOnline is the shared success side of provision/start/restart:
// record start time and the machine's external address, then go online.
func (r *Runner) settleOnline(ctx context.Context, res *Resource, b Backend) error {
	now := time.Now()
	res.StartTime = &now

	mb, err := machineBackend(b)
	if err != nil {
		return err
	}
	remote, err := mb.GetMachine(ctx, res.BackendID)
	if err != nil {
		r.logger.Warnf("could not refresh machine %s after settling: %v", res.ID, err)
	} else {
		res.ExternalIP = remote.ExternalIP
		res.InternalIP = remote.InternalIP
		res.RuntimeState = remote.RuntimeState
	}
	return res.Transition(StateOnline)
}

// settleVolume is the success side of volume provisioning: record the
// vendor-reported dimensions, then go online.
func (r *Runner) settleVolume(ctx context.Context, res *Resource, b Backend) error {
	vb, err := volumeBackend(b)
	if err != nil {
		return err
	}
	remote, err := vb.GetVolume(ctx, res.BackendID)
	if err != nil {
		r.logger.Warnf("could not refresh volume %s after settling: %v", res.ID, err)
	} else {
		res.Disk = remote.Disk
		res.RuntimeState = remote.RuntimeState
	}
	return res.Transition(StateOnline)
}

// settleObject is the success side of group/project provisioning:
// record the vendor web address, then go online.
func (r *Runner) settleObject(ctx context.Context, res *Resource, b Backend) error {
	colb, err := collabBackend(b)
	if err != nil {
		return err
	}
	remote, err := colb.GetObject(ctx, res.Kind, res.BackendID)
	if err != nil {
		r.logger.Warnf("could not refresh %s %s after settling: %v", res.Kind, res.ID, err)
	} else {
		res.URL = remote.URL
		res.RuntimeState = remote.RuntimeState
	}
	return res.Transition(StateOnline)
}

// run executes one task chain under the single-flight guard.
func (r *Runner) run(
	ctx context.Context,
	resourceID string,
	kind OperationKind,
	transitional State,
	cb Callbacks,
	request requestFunc,
	settle settleFunc,
) error {
	res, err := r.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}

	if err := r.acquire(ctx, res.ID); err != nil {
		return err
	}
	defer r.release(res.ID)

	if r.gate != nil {
		if err := r.gate.Authorize(ctx, res, kind); err != nil {
			return err
		}
	}

	backend, err := r.backends.Get(res.Service)
	if err != nil {
		return err
	}

	// Power and resize chains only make sense for machines. Volumes and
	// git objects are created and destroyed through kind-aware paths.
	switch kind {
	case OpStart, OpStop, OpRestart, OpResize:
		if res.Kind != KindMachine {
			return NewPermanentError("operation applies to machines only", nil).
				WithCode(ErrCodeValidation).
				WithResource(res.ID).
				WithOperation(string(kind))
		}
	}

	// State-transition guard: reject the operation before any vendor call
	// when the lifecycle edge is not permitted.
	if err := res.Transition(transitional); err != nil {
		return NewConflictError("operation not permitted in current state", err).
			WithCode(ErrCodeInvalidState).
			WithResource(res.ID).
			WithOperation(string(kind))
	}
	if err := r.store.SaveResource(ctx, res); err != nil {
		return err
	}

	op := &Operation{
		ID:         uuid.New().String(),
		ResourceID: res.ID,
		Kind:       kind,
		Status:     OperationStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := r.store.CreateOperation(ctx, op); err != nil {
		return err
	}
	r.emit(ctx, EventOperationStarted, res.ID, string(kind)+" started", nil)

	actionID, err := r.requestWithCompensation(ctx, res, request)
	if err != nil {
		return r.fail(ctx, res, op, cb, err)
	}
	op.ActionID = actionID

	pollRes, err := r.poller.Poll(ctx, actionID, func(ctx context.Context, id string) (ActionStatus, error) {
		reporter, ok := backend.(ActionReporter)
		if !ok {
			return "", NewPermanentError("backend issued an action handle it cannot report on", nil).
				WithCode(ErrCodeInternal).
				WithDetail("action_id", id)
		}
		st, perr := reporter.GetAction(ctx, id)
		// A vanished action during teardown means the object is gone.
		if kind == OpDestroy && IsNotFound(perr) {
			return ActionCompleted, nil
		}
		return st, perr
	})
	if pollRes != nil {
		op.Attempts = pollRes.Attempts
		if r.metrics != nil {
			r.metrics.ObservePollAttempts(res.Provider, kind, pollRes.Attempts)
		}
	}
	if err != nil {
		return r.fail(ctx, res, op, cb, err)
	}

	if err := settle(ctx, res, backend); err != nil {
		return r.fail(ctx, res, op, cb, err)
	}
	res.ErrorMessage = ""
	if res.State != StateDeleted {
		if err := r.store.SaveResource(ctx, res); err != nil {
			return r.fail(ctx, res, op, cb, err)
		}
	}

	now := time.Now()
	op.Status = OperationStatusSucceeded
	op.CompletedAt = &now
	if err := r.store.CompleteOperation(ctx, op); err != nil {
		r.logger.Errorf("failed to complete operation %s: %v", op.ID, err)
	}
	if r.metrics != nil {
		r.metrics.ObserveOperation(res.Provider, kind, OperationStatusSucceeded, now.Sub(op.StartedAt))
	}
	r.emit(ctx, EventOperationCompleted, res.ID, string(kind)+" completed", nil)
	r.emit(ctx, EventResourceStateChanged, res.ID, string(res.State), nil)

	if cb.OnSuccess != nil {
		cb.OnSuccess(res)
	}
	return nil
}

// requestWithCompensation issues the backend change and applies the
// token scope compensating action: a permission error re-opens the
// alert, any other outcome of the request closes it.
func (r *Runner) requestWithCompensation(ctx context.Context, res *Resource, request requestFunc) (string, error) {
	backend, err := r.backends.Get(res.Service)
	if err != nil {
		return "", err
	}
	actionID, err := request(ctx, res, backend)
	if IsPermissionDenied(err) {
		r.alerts.OpenTokenScope(ctx, res.Service, err)
		return "", err
	}
	if err == nil {
		r.alerts.CloseTokenScope(ctx, res.Service)
	}
	return actionID, err
}

// fail commits the erred state, closes the operation and fires the
// failure callback exactly once.
func (r *Runner) fail(ctx context.Context, res *Resource, op *Operation, cb Callbacks, cause error) error {
	res.SetErred()
	res.ErrorMessage = cause.Error()
	if err := r.store.SaveResource(ctx, res); err != nil {
		r.logger.Errorf("failed to persist erred state for %s: %v", res.ID, err)
	}

	now := time.Now()
	op.Status = OperationStatusFailed
	op.CompletedAt = &now
	if be, ok := cause.(*BackendError); ok {
		op.Error = be
	} else {
		op.Error = NewPermanentError("chain failed", cause).WithCode(ErrCodeBackendFailed)
	}
	if err := r.store.CompleteOperation(ctx, op); err != nil {
		r.logger.Errorf("failed to complete operation %s: %v", op.ID, err)
	}
	if r.metrics != nil {
		r.metrics.ObserveOperation(res.Provider, op.Kind, OperationStatusFailed, now.Sub(op.StartedAt))
	}
	r.emit(ctx, EventOperationFailed, res.ID, cause.Error(), map[string]interface{}{"operation": string(op.Kind)})

	if cb.OnFailure != nil {
		cb.OnFailure(res, cause)
	}
	return cause
}

// acquire takes the per-resource single-flight slot, consulting both the
// in-memory set and the persisted operation ledger so restarts cannot
// double-drive a resource.
func (r *Runner) acquire(ctx context.Context, resourceID string) error {
	r.mu.Lock()
	if _, busy := r.inflight[resourceID]; busy {
		r.mu.Unlock()
		return NewConflictError("resource has an operation in flight", nil).
			WithCode(ErrCodeOperationActive).
			WithResource(resourceID)
	}
	r.inflight[resourceID] = struct{}{}
	r.mu.Unlock()

	active, err := r.store.ActiveOperation(ctx, resourceID)
	if err != nil {
		r.release(resourceID)
		return err
	}
	if active != nil {
		r.release(resourceID)
		return NewConflictError("resource has an operation in flight", nil).
			WithCode(ErrCodeOperationActive).
			WithResource(resourceID).
			WithDetail("operation_id", active.ID)
	}
	return nil
}

func (r *Runner) release(resourceID string) {
	r.mu.Lock()
	delete(r.inflight, resourceID)
	r.mu.Unlock()
}

func (r *Runner) emit(ctx context.Context, eventType, resourceID, message string, details map[string]interface{}) {
	if r.events == nil {
		return
	}
	r.events.Emit(ctx, eventType, resourceID, message, details)
}
