package weft

import (
	"context"
	"reflect"
)

// TraitRef is a transient, capability-typed view of a task's value: the task
// identity bundled with the dispatch descriptor proving the resolved
// concrete type implements C. It holds no value of its own: every use goes
// back through the cell store, so a TraitRef never serves a stale value
// silently. Handles keep the cell alive; a TraitRef is re-derived (or
// generation-checked) on use.
type TraitRef[C any] struct {
	handle     AnyHandle
	desc       *Descriptor
	generation uint64
}

// As upgrades a handle into a capability reference. The handle's task is
// resolved to learn the current concrete type, then the (type, capability)
// pairing is looked up in the registry; a missing pairing fails with
// NoSuchCapabilityError and no reference is constructed.
//
// Handles are small values, so converting a handle held by value and one
// held by pointer behave identically.
func As[C any](ctx context.Context, h AnyHandle) (TraitRef[C], error) {
	var zero TraitRef[C]

	if h == nil {
		return zero, ErrUnboundHandle
	}

	value, gen, err := h.resolveAny(ctx)
	if err != nil {
		return zero, err
	}

	capT := capabilityType[C]()
	concrete := reflect.TypeOf(value)

	desc, ok := h.Runtime().registry.lookup(concrete, capT)
	if !ok {
		return zero, &NoSuchCapabilityError{Concrete: concrete, Capability: capT}
	}

	return TraitRef[C]{handle: h, desc: desc, generation: gen}, nil
}

// Task returns the identity of the task whose value backs this reference.
func (r TraitRef[C]) Task() TaskID {
	if r.handle == nil {
		return TaskID{}
	}
	return r.handle.Task()
}

// Generation returns the generation the reference was derived from.
func (r TraitRef[C]) Generation() uint64 {
	return r.generation
}

// Resolve returns the task's current value viewed through the capability.
// The task is re-resolved on every call: if the cell moved to a new
// generation since the reference was derived, the new value is dispatched,
// and if its concrete type changed the descriptor is re-derived from the
// registry.
func (r TraitRef[C]) Resolve(ctx context.Context) (C, error) {
	var zero C

	if r.handle == nil || r.desc == nil {
		return zero, ErrUnboundHandle
	}

	value, _, err := r.handle.resolveAny(ctx)
	if err != nil {
		return zero, err
	}

	desc := r.desc
	if concrete := reflect.TypeOf(value); concrete != desc.Concrete {
		refreshed, ok := r.handle.Runtime().registry.lookup(concrete, desc.Capability)
		if !ok {
			return zero, &NoSuchCapabilityError{Concrete: concrete, Capability: desc.Capability}
		}
		desc = refreshed
	}

	return desc.adapt(value).(C), nil
}

// With resolves the capability view and passes it to fn. Shorthand for the
// resolve-then-call pattern at capability call sites.
func (r TraitRef[C]) With(ctx context.Context, fn func(C) error) error {
	view, err := r.Resolve(ctx)
	if err != nil {
		return err
	}
	return fn(view)
}
