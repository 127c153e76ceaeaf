package weft

import (
	"sync"
)

// depGraph tracks dependency edges between tasks with safe traversal.
// Edges are recorded while a task body executes: every nested resolve adds
// (consumer -> producer). The reverse index drives invalidation propagation.
type depGraph struct {
	// Adjacency sets in both directions.
	upstream   map[TaskID]map[TaskID]struct{} // consumer -> producers it read
	downstream map[TaskID]map[TaskID]struct{} // producer -> consumers that read it
	mu         sync.RWMutex
}

func newDepGraph() *depGraph {
	return &depGraph{
		upstream:   make(map[TaskID]map[TaskID]struct{}),
		downstream: make(map[TaskID]map[TaskID]struct{}),
	}
}

// recordRead adds a dependency edge. Idempotent for repeated reads.
func (g *depGraph) recordRead(consumer, producer TaskID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	down := g.downstream[producer]
	if down == nil {
		down = make(map[TaskID]struct{})
		g.downstream[producer] = down
	}
	down[consumer] = struct{}{}

	up := g.upstream[consumer]
	if up == nil {
		up = make(map[TaskID]struct{})
		g.upstream[consumer] = up
	}
	up[producer] = struct{}{}
}

// clearConsumer drops all outgoing edges of a consumer. Called before a task
// re-executes so the recorded reads reflect only the latest run.
func (g *depGraph) clearConsumer(consumer TaskID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for producer := range g.upstream[consumer] {
		delete(g.downstream[producer], consumer)
		if len(g.downstream[producer]) == 0 {
			delete(g.downstream, producer)
		}
	}
	delete(g.upstream, consumer)
}

// dependentsOf performs iterative traversal over reverse edges to find all
// transitive consumers of a producer. An explicit stack is used instead of
// recursion to stay safe on deep or cyclic graphs.
func (g *depGraph) dependentsOf(start TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stack := make([]TaskID, 0, 32)
	stack = append(stack, start)

	dependents := make([]TaskID, 0, 32)
	visited := make(map[TaskID]bool, 32)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		if current != start {
			dependents = append(dependents, current)
		}

		for consumer := range g.downstream[current] {
			if !visited[consumer] {
				stack = append(stack, consumer)
			}
		}
	}

	return dependents
}

// directDependents returns only direct consumers (no traversal).
func (g *depGraph) directDependents(producer TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	down, ok := g.downstream[producer]
	if !ok {
		return nil
	}

	result := make([]TaskID, 0, len(down))
	for consumer := range down {
		result = append(result, consumer)
	}
	return result
}

// producersOf returns the producers a consumer read during its last run.
func (g *depGraph) producersOf(consumer TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	up, ok := g.upstream[consumer]
	if !ok {
		return nil
	}

	result := make([]TaskID, 0, len(up))
	for producer := range up {
		result = append(result, producer)
	}
	return result
}

// waitGraph tracks which execution each suspended task body is waiting on.
// Edges exist only while an executing task is attached to another task's
// in-flight execution; they catch cycles whose sides run on different
// top-level requests, where no single resolve chain sees the whole loop.
//
// The graph is kept acyclic: an edge that would close a loop is refused, so
// walks always terminate.
type waitGraph struct {
	mu    sync.Mutex
	waits map[TaskID]map[TaskID]int
}

func newWaitGraph() *waitGraph {
	return &waitGraph{waits: make(map[TaskID]map[TaskID]int)}
}

// add records that waiter is about to suspend on awaited's execution. When
// the edge would close a loop of mutually waiting executions, nothing is
// recorded and the loop's task path is returned instead.
func (w *waitGraph) add(waiter, awaited TaskID) []TaskID {
	w.mu.Lock()
	defer w.mu.Unlock()

	if loop := w.pathTo(awaited, waiter, []TaskID{waiter}); loop != nil {
		return loop
	}

	m := w.waits[waiter]
	if m == nil {
		m = make(map[TaskID]int)
		w.waits[waiter] = m
	}
	m[awaited]++
	return nil
}

// remove drops one waiter -> awaited edge after the wait ends.
func (w *waitGraph) remove(waiter, awaited TaskID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	m := w.waits[waiter]
	if m == nil {
		return
	}
	m[awaited]--
	if m[awaited] <= 0 {
		delete(m, awaited)
	}
	if len(m) == 0 {
		delete(w.waits, waiter)
	}
}

// pathTo walks outgoing wait edges from cur looking for target, returning
// the full path when found.
func (w *waitGraph) pathTo(cur, target TaskID, path []TaskID) []TaskID {
	path = append(path, cur)
	if cur == target {
		return path
	}
	for next := range w.waits[cur] {
		if loop := w.pathTo(next, target, path); loop != nil {
			return loop
		}
	}
	return nil
}

// export returns a copy of the reverse adjacency for debugging extensions.
func (g *depGraph) export() map[TaskID][]TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[TaskID][]TaskID, len(g.downstream))
	for producer, consumers := range g.downstream {
		list := make([]TaskID, 0, len(consumers))
		for consumer := range consumers {
			list = append(list, consumer)
		}
		out[producer] = list
	}
	return out
}
