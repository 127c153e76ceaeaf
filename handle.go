package weft

import "context"

// AnyHandle is a type-erased view of a handle, for code that moves handles
// across boundaries where the value type is unknown (capability dispatch,
// debugging extensions, plugin seams).
type AnyHandle interface {
	// Task returns the identity of the producing task.
	Task() TaskID

	// Runtime returns the runtime the handle is bound to.
	Runtime() *Runtime

	// resolveAny resolves erased: value, generation, error.
	resolveAny(ctx context.Context) (any, uint64, error)
}

// Handle is a typed, copyable reference to a task's cell. It carries no data
// of its own: resolving goes through the runtime's cell store, and copies of
// a handle are interchangeable. The type parameter is fixed at Bind time to
// the task function's return type.
type Handle[T any] struct {
	id TaskID
	rt *Runtime
}

// Task returns the identity of the producing task.
func (h Handle[T]) Task() TaskID {
	return h.id
}

// Runtime returns the runtime the handle is bound to.
func (h Handle[T]) Runtime() *Runtime {
	return h.rt
}

// Resolve returns the task's current value, computing it when the cell is
// missing or stale. Concurrent resolves of one identity share a single
// execution. Suspends (without holding a worker) until the value is
// available or ctx is cancelled.
func (h Handle[T]) Resolve(ctx context.Context) (T, error) {
	value, _, err := h.resolveAny(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return safeAssert[T](value)
}

// ResolveGeneration is Resolve plus the generation stamp of the value.
func (h Handle[T]) ResolveGeneration(ctx context.Context) (T, uint64, error) {
	value, gen, err := h.resolveAny(ctx)
	if err != nil {
		var zero T
		return zero, gen, err
	}
	typed, err := safeAssert[T](value)
	return typed, gen, err
}

// Peek returns the cached value without computing. ok is false when the cell
// has never published or is currently stale.
func (h Handle[T]) Peek() (T, bool) {
	var zero T
	if h.rt == nil {
		return zero, false
	}

	c, ok := h.rt.store.lookup(h.id)
	if !ok {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation == 0 || c.stale || c.err != nil {
		return zero, false
	}

	typed, ok := c.value.(T)
	return typed, ok
}

// Generation returns the cell's current generation, if it has ever
// published.
func (h Handle[T]) Generation() (uint64, bool) {
	if h.rt == nil {
		return 0, false
	}
	return h.rt.Generation(h.id)
}

// Invalidate marks the cell and its transitive consumers stale. Nothing
// recomputes until the next resolve.
func (h Handle[T]) Invalidate() int {
	if h.rt == nil {
		return 0
	}
	return h.rt.Invalidate(h.id)
}

func (h Handle[T]) resolveAny(ctx context.Context) (any, uint64, error) {
	if h.rt == nil || h.id.IsZero() {
		return nil, 0, ErrUnboundHandle
	}
	return h.rt.resolve(ctx, h.id)
}
