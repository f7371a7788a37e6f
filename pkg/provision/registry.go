package provision

import (
	"context"
	"sync"
)

// BackendFactory builds a backend from configured service settings.
type BackendFactory func(ctx context.Context, settings ServiceSettings) (Backend, error)

// Registry manages backend factories per provider kind and the backend
// instances bound to configured services. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
	services  map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]BackendFactory),
		services:  make(map[string]Backend),
	}
}

// RegisterFactory adds a backend factory for a provider kind. Typically
// called from backend package init code in the composition root.
func (r *Registry) RegisterFactory(kind string, f BackendFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return NewConflictError("backend factory already registered", nil).
			WithCode(ErrCodeAlreadyExists).
			WithDetail("kind", kind)
	}
	r.factories[kind] = f
	return nil
}

// Bind instantiates a backend for the service settings and registers it
// under the service name.
func (r *Registry) Bind(ctx context.Context, settings ServiceSettings) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[settings.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, NewPermanentError("no backend registered for provider", nil).
			WithCode(ErrCodeNotFound).
			WithDetail("provider", settings.Provider)
	}

	backend, err := factory(ctx, settings)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.services[settings.Name] = backend
	r.mu.Unlock()
	return backend, nil
}

// Get returns the backend bound to a service name.
func (r *Registry) Get(service string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.services[service]
	if !ok {
		return nil, NewNotFoundError("service is not bound", nil).
			WithDetail("service", service)
	}
	return b, nil
}

// Machine returns the backend bound to a service, asserting machine
// lifecycle support.
func (r *Registry) Machine(service string) (MachineBackend, error) {
	b, err := r.Get(service)
	if err != nil {
		return nil, err
	}
	mb, ok := b.(MachineBackend)
	if !ok {
		return nil, NewPermanentError("service backend does not manage machines", nil).
			WithCode(ErrCodeValidation).
			WithDetail("service", service)
	}
	return mb, nil
}

// Collab returns the backend bound to a service, asserting git
// group/project support.
func (r *Registry) Collab(service string) (CollabBackend, error) {
	b, err := r.Get(service)
	if err != nil {
		return nil, err
	}
	cb, ok := b.(CollabBackend)
	if !ok {
		return nil, NewPermanentError("service backend does not manage git objects", nil).
			WithCode(ErrCodeValidation).
			WithDetail("service", service)
	}
	return cb, nil
}

// Services lists the bound service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}
