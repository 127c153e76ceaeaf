package weft

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Runtime owns the shared state of the memoization graph: the cell store,
// the dependency tracker, the capability registry and the worker pool. All
// mutation funnels through the single-flight compute-then-publish path, so
// the runtime is safe for use from any number of goroutines.
type Runtime struct {
	store    *cellStore
	graph    *depGraph
	waits    *waitGraph
	registry *capabilityRegistry
	workers  *semaphore.Weighted
	log      zerolog.Logger
	tags     sync.Map

	mu         sync.RWMutex
	bindings   map[TaskID]*binding
	extensions []Extension

	sealOnce sync.Once

	computes      atomic.Uint64
	hits          atomic.Uint64
	attached      atomic.Uint64
	invalidations atomic.Uint64
}

// binding is the executable registered for a TaskID by Bind: the task
// function closed over its argument value, plus the function's metadata.
type binding struct {
	name string
	tags map[any]any
	run  func(ctx context.Context) (any, error)
}

// RuntimeOption is a modifier for runtimes.
type RuntimeOption func(*Runtime)

// WithWorkers bounds the number of concurrently executing task bodies.
// Suspended tasks do not count against the bound.
func WithWorkers(n int) RuntimeOption {
	return func(rt *Runtime) {
		if n > 0 {
			rt.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the structured logger used by the runtime core.
func WithLogger(log zerolog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		rt.log = log
	}
}

// WithExtension returns an option that registers an extension to a runtime.
func WithExtension(ext Extension) RuntimeOption {
	return func(rt *Runtime) {
		if err := rt.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithRuntimeTag returns an option that sets a tag on a runtime.
func WithRuntimeTag[T any](tag Tag[T], val T) RuntimeOption {
	return func(rt *Runtime) {
		tag.Set(rt, val)
	}
}

// New creates a runtime with optional configuration. With no options the
// worker pool is sized to the number of CPUs and logging is disabled.
func New(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		store:    newCellStore(),
		graph:    newDepGraph(),
		waits:    newWaitGraph(),
		registry: newCapabilityRegistry(),
		workers:  semaphore.NewWeighted(int64(runtime.NumCPU())),
		log:      zerolog.Nop(),
		bindings: make(map[TaskID]*binding),
	}

	for _, opt := range opts {
		opt(rt)
	}

	return rt
}

func (rt *Runtime) bind(id TaskID, b *binding) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.bindings[id]; ok {
		return
	}
	rt.bindings[id] = b
}

func (rt *Runtime) lookupBinding(id TaskID) (*binding, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b, ok := rt.bindings[id]
	return b, ok
}

// UseExtension registers an extension to the runtime.
func (rt *Runtime) UseExtension(ext Extension) error {
	rt.mu.Lock()
	rt.extensions = append(rt.extensions, ext)
	sort.SliceStable(rt.extensions, func(i, j int) bool {
		return rt.extensions[i].Order() < rt.extensions[j].Order()
	})
	rt.mu.Unlock()

	return ext.Init(rt)
}

func (rt *Runtime) snapshotExtensions() []Extension {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	exts := make([]Extension, len(rt.extensions))
	copy(exts, rt.extensions)
	return exts
}

// Invalidate marks a task's cell stale and transitively marks every
// consumer recorded in the dependency graph. Marking is the whole job:
// nothing recomputes until the next resolve of a stale cell. Returns the
// number of cells newly marked; re-invalidating an already-stale subgraph
// returns 0.
func (rt *Runtime) Invalidate(id TaskID) int {
	exts := rt.snapshotExtensions()
	op := &Operation{Kind: OpInvalidate, Task: id, Runtime: rt}

	next := func() (any, error) {
		marked := 0
		if rt.store.markStale(id) {
			marked++
		}
		for _, consumer := range rt.graph.dependentsOf(id) {
			if rt.store.markStale(consumer) {
				marked++
			}
		}
		return marked, nil
	}

	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	result, err := next()
	marked, _ := result.(int)
	if err != nil {
		rt.log.Error().Err(err).Stringer("task", id).Msg("invalidate middleware failed")
	}

	if marked > 0 {
		rt.invalidations.Add(uint64(marked))
		rt.log.Debug().Stringer("task", id).Int("marked", marked).Msg("invalidated")
	}
	return marked
}

// Generation returns the current generation of a task's cell, if the task
// has ever published a value.
func (rt *Runtime) Generation(id TaskID) (uint64, bool) {
	return rt.store.currentGeneration(id)
}

// Dependents returns the tasks that transitively read a producer's value
// during their last execution.
func (rt *Runtime) Dependents(id TaskID) []TaskID {
	return rt.graph.dependentsOf(id)
}

// DependenciesOf returns the producers a task read during its last
// execution.
func (rt *Runtime) DependenciesOf(id TaskID) []TaskID {
	return rt.graph.producersOf(id)
}

// ExportDependencyGraph returns a copy of the reverse dependency edges
// (producer -> consumers), for debugging extensions.
func (rt *Runtime) ExportDependencyGraph() map[TaskID][]TaskID {
	return rt.graph.export()
}

// GetTag retrieves a tag value from the runtime.
func (rt *Runtime) GetTag(tag any) (any, bool) {
	return rt.tags.Load(tag)
}

// SetTag stores a tag value on the runtime.
func (rt *Runtime) SetTag(tag any, val any) {
	rt.tags.Store(tag, val)
}

// TaskTag reads a tag from the task function a TaskID was bound from.
func (rt *Runtime) TaskTag(id TaskID, tag any) (any, bool) {
	b, ok := rt.lookupBinding(id)
	if !ok {
		return nil, false
	}
	val, ok := b.tags[tag]
	return val, ok
}

// Stats is a snapshot of runtime counters.
type Stats struct {
	Cells         int
	Computes      uint64
	CacheHits     uint64
	Attached      uint64
	Invalidations uint64
}

// Stats returns a snapshot of the runtime's counters.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Cells:         rt.store.size(),
		Computes:      rt.computes.Load(),
		CacheHits:     rt.hits.Load(),
		Attached:      rt.attached.Load(),
		Invalidations: rt.invalidations.Load(),
	}
}

// Close disposes all extensions. The runtime itself needs no teardown: its
// state lives for the process.
func (rt *Runtime) Close() error {
	for _, ext := range rt.snapshotExtensions() {
		if err := ext.Dispose(rt); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}
	return nil
}
