package weft

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// capabilityKey pairs a concrete value type with a capability interface
// type.
type capabilityKey struct {
	concrete   reflect.Type
	capability reflect.Type
}

// Descriptor is the dispatch entry for one (concrete type, capability)
// pairing: how to view a stored value as the capability interface.
type Descriptor struct {
	Concrete   reflect.Type
	Capability reflect.Type
	adapt      func(any) any
}

// capabilityRegistry maps (concrete type, capability) pairings to dispatch
// descriptors. It is populated during startup and sealed by the first
// resolution; after that the read path runs without write contention and
// registration fails with StaleRegistryError.
type capabilityRegistry struct {
	mu      sync.RWMutex
	sealed  atomic.Bool
	entries map[capabilityKey]*Descriptor
}

func newCapabilityRegistry() *capabilityRegistry {
	return &capabilityRegistry{
		entries: make(map[capabilityKey]*Descriptor),
	}
}

func (r *capabilityRegistry) seal() {
	r.sealed.Store(true)
}

func (r *capabilityRegistry) register(desc *Descriptor) error {
	if r.sealed.Load() {
		return &StaleRegistryError{Concrete: desc.Concrete, Capability: desc.Capability}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[capabilityKey{concrete: desc.Concrete, capability: desc.Capability}] = desc
	return nil
}

func (r *capabilityRegistry) lookup(concrete, capability reflect.Type) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.entries[capabilityKey{concrete: concrete, capability: capability}]
	return desc, ok
}

func capabilityType[C any]() reflect.Type {
	return reflect.TypeOf((*C)(nil)).Elem()
}

// RegisterCapability declares that values of type V satisfy capability C
// (a Go interface type). The implementation relation is checked once, at
// registration; resolution then dispatches through the stored descriptor
// without further reflection.
//
// Registration must complete before the runtime's first resolution.
func RegisterCapability[C any, V any](rt *Runtime) error {
	capT := capabilityType[C]()
	if capT.Kind() != reflect.Interface {
		return fmt.Errorf("capability %v is not an interface type", capT)
	}

	vT := reflect.TypeOf((*V)(nil)).Elem()
	if !vT.Implements(capT) {
		return fmt.Errorf("type %v does not satisfy capability %v", vT, capT)
	}

	return rt.registry.register(&Descriptor{
		Concrete:   vT,
		Capability: capT,
		adapt: func(value any) any {
			return value.(C)
		},
	})
}

// RegisterAdapter declares capability C for values of type V through an
// explicit adapter, for value types that do not implement the interface
// directly.
func RegisterAdapter[C any, V any](rt *Runtime, adapt func(V) C) error {
	capT := capabilityType[C]()
	if capT.Kind() != reflect.Interface {
		return fmt.Errorf("capability %v is not an interface type", capT)
	}

	return rt.registry.register(&Descriptor{
		Concrete:   reflect.TypeOf((*V)(nil)).Elem(),
		Capability: capT,
		adapt: func(value any) any {
			return adapt(value.(V))
		},
	})
}

// MustRegisterCapability is RegisterCapability that panics on error, for
// startup wiring where a failed registration is a process bug.
func MustRegisterCapability[C any, V any](rt *Runtime) {
	if err := RegisterCapability[C, V](rt); err != nil {
		panic(err)
	}
}
