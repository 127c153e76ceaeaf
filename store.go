package weft

import (
	"sync"
	"sync/atomic"
)

const shardCount = 32

// cellStore is the process-wide table of computed values, keyed by TaskID
// and sharded by the ID's digest to spread lock contention. Cells are owned
// exclusively by the store; values cross its boundary only as published,
// fully computed snapshots.
type cellStore struct {
	shards [shardCount]cellShard
}

type cellShard struct {
	mu    sync.Mutex
	cells map[TaskID]*cell
}

// cell holds the most recent result for one TaskID. generation starts at 1
// on first publish and increases monotonically on every recomputation.
// flight is non-nil while a single-flight execution is in progress.
//
// staleSeq counts invalidations; an executor snapshots it when it starts so
// an invalidation arriving mid-compute is not lost when the result is
// published.
type cell struct {
	mu         sync.Mutex
	value      any
	err        error
	generation uint64
	stale      bool
	staleSeq   uint64
	flight     *inflight
}

// inflight is the execution-in-progress marker for a cell. Waiters attach to
// done instead of starting duplicate work; the published result is written
// before done is closed. The waiter count exists for observability and never
// gates completion: a shared execution always runs to publish even if every
// waiter cancels.
type inflight struct {
	done       chan struct{}
	waiters    atomic.Int64
	value      any
	err        error
	generation uint64
	aborted    bool
}

func newCellStore() *cellStore {
	s := &cellStore{}
	for i := range s.shards {
		s.shards[i].cells = make(map[TaskID]*cell)
	}
	return s
}

func (s *cellStore) shard(id TaskID) *cellShard {
	return &s.shards[id.Digest()%shardCount]
}

// cell returns the cell for id, creating it on first use.
func (s *cellStore) cell(id TaskID) *cell {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.cells[id]
	if !ok {
		c = &cell{}
		sh.cells[id] = c
	}
	return c
}

// lookup returns the cell for id without creating one.
func (s *cellStore) lookup(id TaskID) (*cell, bool) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.cells[id]
	return c, ok
}

// markStale flags a cell for lazy recomputation. The previous value stays
// published so readers that started before the invalidation keep their
// snapshot. Returns false when there is nothing to mark: the cell is absent,
// never computed, or already stale.
func (s *cellStore) markStale(id TaskID) bool {
	c, ok := s.lookup(id)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation == 0 && c.flight == nil {
		return false
	}

	c.staleSeq++
	if c.stale && c.flight == nil {
		return false
	}
	c.stale = true
	return true
}

// generation returns the current generation of a cell, if it has ever
// published a value.
func (s *cellStore) currentGeneration(id TaskID) (uint64, bool) {
	c, ok := s.lookup(id)
	if !ok {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation == 0 {
		return 0, false
	}
	return c.generation, true
}

// size reports the number of cells across all shards.
func (s *cellStore) size() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.cells)
		sh.mu.Unlock()
	}
	return n
}
