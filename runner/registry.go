package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateInstance is returned when registering a correlation id
	// twice.
	ErrDuplicateInstance = errors.New("runner: instance already registered")
	// ErrUnknownInstance is returned when looking up an unregistered
	// correlation id.
	ErrUnknownInstance = errors.New("runner: unknown instance")
)

// Instance is the registry's type-erased view of a running instance.
type Instance interface {
	DeliverPartyStream(ctx context.Context, ps PartyStream) error
	Done() <-chan struct{}
}

// Registry tracks running instances by correlation id so inbound streams can
// be routed to them. The lock is only held for map access, never while
// delivering.
type Registry struct {
	mu        sync.Mutex
	instances map[uuid.UUID]Instance
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[uuid.UUID]Instance)}
}

// Register adds an instance under id.
func (r *Registry) Register(id uuid.UUID, inst Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, id)
	}
	r.instances[id] = inst
	return nil
}

// Deregister removes id, if present.
func (r *Registry) Deregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
}

// Lookup returns the instance registered under id.
func (r *Registry) Lookup(id uuid.UUID) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Route delivers an inbound peer stream to the instance registered under id.
func (r *Registry) Route(ctx context.Context, id uuid.UUID, ps PartyStream) error {
	inst, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	return inst.DeliverPartyStream(ctx, ps)
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}
