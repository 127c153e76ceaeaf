package weft

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// errRetryResolve signals a waiter that the execution it attached to was
// abandoned before it ran (its initiator was cancelled while queueing for a
// worker slot). The waiter re-enters resolve and takes over.
var errRetryResolve = errors.New("resolve retry")

// resolve returns the current value and generation for a task, computing it
// when the cell is missing or stale. Concurrent resolves of one identity
// attach to a single in-flight execution; cached errors are returned like
// cached values.
//
// The chain carried in ctx is the first cycle guard: re-entering a TaskID
// already on the chain fails with CycleError instead of waiting on itself.
// Cycles whose sides run on separate requests are caught at waiter attach
// through the wait-for graph.
func (rt *Runtime) resolve(ctx context.Context, id TaskID) (any, uint64, error) {
	rt.sealOnce.Do(rt.registry.seal)

	chain, ok := chainFrom(ctx)
	if !ok {
		chain = newResolveChain()
		ctx = withChain(ctx, chain)
	}

	if chain.contains(id) {
		return nil, 0, &CycleError{Request: chain.request, Path: chain.cyclePath(id)}
	}

	if consumer, ok := consumerFrom(ctx); ok {
		rt.graph.recordRead(consumer, id)
	}

	c := rt.store.cell(id)

	for {
		c.mu.Lock()
		if c.flight == nil && c.generation > 0 && !c.stale {
			value, err, gen := c.value, c.err, c.generation
			c.mu.Unlock()
			rt.hits.Add(1)
			return value, gen, err
		}

		if fl := c.flight; fl != nil {
			c.mu.Unlock()

			// A chain only sees its own path. When the waiter is itself an
			// executing task, record a wait-for edge so a loop of executions
			// spread across separate requests is refused instead of
			// deadlocking.
			consumer, executing := consumerFrom(ctx)
			if executing {
				if loop := rt.waits.add(consumer, id); loop != nil {
					return nil, 0, &CycleError{Request: chain.request, Path: loop}
				}
			}
			value, gen, err := rt.await(ctx, fl)
			if executing {
				rt.waits.remove(consumer, id)
			}
			if errors.Is(err, errRetryResolve) {
				continue
			}
			return value, gen, err
		}

		fl := &inflight{done: make(chan struct{})}
		c.flight = fl
		staleSeq := c.staleSeq
		c.mu.Unlock()

		// A nested execution is a wait too: the outer body blocks until the
		// inner task publishes, so it takes part in deadlock detection.
		if consumer, executing := consumerFrom(ctx); executing {
			if loop := rt.waits.add(consumer, id); loop != nil {
				c.mu.Lock()
				c.flight = nil
				c.mu.Unlock()
				fl.err = &CycleError{Request: chain.request, Path: loop}
				fl.aborted = true
				close(fl.done)
				return nil, 0, fl.err
			}
			defer rt.waits.remove(consumer, id)
		}

		return rt.execute(ctx, id, chain, c, fl, staleSeq)
	}
}

// await suspends the caller until an in-flight execution publishes. A caller
// that holds a worker slot yields it for the duration of the wait, so a
// bounded pool keeps making progress while tasks block on each other.
// Cancelling the waiter abandons the wait only; the shared execution keeps
// running for its other waiters and still publishes.
func (rt *Runtime) await(ctx context.Context, fl *inflight) (any, uint64, error) {
	rt.attached.Add(1)
	fl.waiters.Add(1)
	defer fl.waiters.Add(-1)

	held := slotHeld(ctx)
	if held {
		rt.workers.Release(1)
	}

	select {
	case <-fl.done:
		if held {
			if err := rt.workers.Acquire(ctx, 1); err != nil {
				return nil, 0, err
			}
		}
		if fl.aborted {
			return nil, 0, errRetryResolve
		}
		return fl.value, fl.generation, fl.err

	case <-ctx.Done():
		if held {
			// Restore the slot so the unwinding task body stays accounted.
			if err := rt.workers.Acquire(context.Background(), 1); err != nil {
				return nil, 0, err
			}
		}
		return nil, 0, ctx.Err()
	}
}

// execute runs the single-flight computation for a cell and publishes the
// result as a new generation. The body runs detached from the triggering
// caller's cancellation: once started, an execution always publishes, since
// other chains may be attached to it.
func (rt *Runtime) execute(ctx context.Context, id TaskID, chain *resolveChain, c *cell, fl *inflight, staleSeq uint64) (any, uint64, error) {
	b, ok := rt.lookupBinding(id)
	if !ok {
		// Nothing to run. Clear the marker without touching the published
		// value; the error is per-chain, not a cell result.
		c.mu.Lock()
		c.flight = nil
		c.mu.Unlock()
		fl.err = fmt.Errorf("%w: %v", ErrUnboundTask, id)
		close(fl.done)
		return nil, 0, fl.err
	}

	held := slotHeld(ctx)
	if !held {
		if err := rt.workers.Acquire(ctx, 1); err != nil {
			c.mu.Lock()
			c.flight = nil
			c.mu.Unlock()
			fl.err = err
			fl.aborted = true
			close(fl.done)
			return nil, 0, err
		}
		defer rt.workers.Release(1)
	}

	// Reads recorded by the previous run no longer apply.
	rt.graph.clearConsumer(id)

	bodyCtx := withSlot(withConsumer(withChain(context.WithoutCancel(ctx), chain.extend(id)), id))

	exts := rt.snapshotExtensions()
	op := &Operation{Kind: OpCompute, Task: id, Runtime: rt}

	next := func() (any, error) {
		return rt.runBody(bodyCtx, id, b)
	}
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(bodyCtx, currentNext, op)
		}
	}

	value, err := next()
	rt.computes.Add(1)

	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, rt)
		}
	}

	// A cycle is a property of this call chain, not of the cell: it is
	// never published. Waiters retry and detect (or avoid) the cycle on
	// their own chains.
	var cycle *CycleError
	if errors.As(err, &cycle) {
		c.mu.Lock()
		c.flight = nil
		c.mu.Unlock()
		fl.err = err
		fl.aborted = true
		close(fl.done)
		return nil, 0, err
	}

	// Publish: full replace under the cell lock, then wake waiters. An
	// invalidation that raced the compute leaves the cell stale.
	c.mu.Lock()
	c.generation++
	c.value = value
	c.err = err
	c.stale = c.staleSeq != staleSeq
	gen := c.generation
	c.flight = nil
	c.mu.Unlock()

	fl.value = value
	fl.generation = gen
	fl.err = err
	close(fl.done)

	if err != nil {
		rt.log.Debug().Stringer("task", id).Uint64("generation", gen).Err(err).Msg("compute failed")
	} else {
		rt.log.Debug().Stringer("task", id).Uint64("generation", gen).Msg("computed")
	}

	return value, gen, err
}

// runBody invokes the task body, converting failures and panics into
// ComputeError so the cached result carries the taxonomy callers match on.
func (rt *Runtime) runBody(ctx context.Context, id TaskID, b *binding) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ComputeError{
				Task:       id,
				Err:        fmt.Errorf("panic: %v", r),
				StackTrace: debug.Stack(),
			}
		}
	}()

	value, err = b.run(ctx)
	if err != nil {
		err = &ComputeError{Task: id, Err: err}
	}
	return value, err
}

// ResolveAll resolves several handles concurrently and returns their values
// in order. The first error cancels the remaining waits (in-flight
// executions still publish for other callers).
func ResolveAll[T any](ctx context.Context, handles ...Handle[T]) ([]T, error) {
	g, gctx := errgroup.WithContext(ctx)

	out := make([]T, len(handles))
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			value, err := h.Resolve(gctx)
			if err != nil {
				return err
			}
			out[i] = value
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
