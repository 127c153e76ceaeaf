// Package weft provides a single-process incremental memoization runtime
// with capability-based dynamic dispatch.
//
// # Overview
//
// Weft organizes code around four core concepts:
//
//  1. Tasks: named, memoized computations bound to argument values
//  2. Cells: the stored, versioned result of each task
//  3. Handles: typed, copyable references to a task's cell
//  4. Capabilities: interface views over a cell's value, dispatched through
//     a startup-time registry
//
// # Basic Usage
//
// Define task functions, bind them to arguments, and resolve handles:
//
//	rt := weft.New()
//
//	square := weft.Define("square", func(ctx context.Context, x int) (int, error) {
//	    return x * x, nil
//	})
//
//	h := weft.Bind(rt, square, 4)
//	v, err := h.Resolve(ctx) // 16, computed once
//
// Two binds with equal arguments share one cell: resolving either handle
// returns the memoized value; concurrent resolves of a missing value attach
// to a single execution.
//
// # Dependencies and Invalidation
//
// A task body that resolves another handle records a dependency edge:
//
//	total := weft.Define("total", func(ctx context.Context, n int) (int, error) {
//	    v, err := weft.Bind(rt, square, n).Resolve(ctx)
//	    if err != nil {
//	        return 0, err
//	    }
//	    return v + 1, nil
//	})
//
// Invalidating a producer marks it and every transitive consumer stale.
// Nothing recomputes until the next resolve, which bumps the cell to a new
// generation:
//
//	h.Invalidate()           // marking only
//	v, _ = h.Resolve(ctx)    // recomputed now, generation 2
//
// A failed computation is cached like a value: repeated resolves return the
// same error until the cell is invalidated and recomputed successfully.
//
// # Capabilities
//
// Consumers that only need a behavior, not a concrete type, upgrade a handle
// into a capability reference:
//
//	type Sized interface{ Size() int64 }
//
//	weft.MustRegisterCapability[Sized, *Blob](rt) // before first resolve
//
//	ref, err := weft.As[Sized](ctx, handle) // NoSuchCapabilityError if unregistered
//	sized, err := ref.Resolve(ctx)          // always the current generation
//	n := sized.Size()
//
// The registry is sealed by the first resolution; registrations after that
// fail with StaleRegistryError.
//
// # Concurrency
//
// Task bodies run on a bounded worker pool. A task waiting on another task's
// cell suspends without holding a worker, so graphs deeper than the pool
// still make progress. A resolution that re-enters its own task on the same
// call chain fails with CycleError instead of deadlocking. Cancelling a
// caller abandons its wait but never cancels an execution other callers are
// attached to.
package weft
