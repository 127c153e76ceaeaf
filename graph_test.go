package weft

import (
	"sort"
	"testing"
)

func tid(name string) TaskID {
	return newTaskID(name, "0")
}

func sortIDs(ids []TaskID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}

func TestDepGraph_TransitiveDependents(t *testing.T) {
	g := newDepGraph()

	p := tid("p")
	c1 := tid("c1")
	c2 := tid("c2")
	other := tid("other")

	g.recordRead(c1, p)
	g.recordRead(c2, c1)
	g.recordRead(other, c2)

	deps := g.dependentsOf(p)
	if len(deps) != 3 {
		t.Fatalf("expected 3 transitive dependents, got %v", deps)
	}

	direct := g.directDependents(p)
	if len(direct) != 1 || direct[0] != c1 {
		t.Errorf("expected [c1], got %v", direct)
	}
}

func TestDepGraph_RecordIsIdempotent(t *testing.T) {
	g := newDepGraph()

	p := tid("p")
	c := tid("c")

	g.recordRead(c, p)
	g.recordRead(c, p)

	if direct := g.directDependents(p); len(direct) != 1 {
		t.Errorf("duplicate edges recorded: %v", direct)
	}
	if up := g.producersOf(c); len(up) != 1 {
		t.Errorf("duplicate upstream edges recorded: %v", up)
	}
}

func TestDepGraph_ClearConsumer(t *testing.T) {
	g := newDepGraph()

	p1 := tid("p1")
	p2 := tid("p2")
	c := tid("c")

	g.recordRead(c, p1)
	g.recordRead(c, p2)

	g.clearConsumer(c)

	if deps := g.dependentsOf(p1); len(deps) != 0 {
		t.Errorf("edges survived clearConsumer: %v", deps)
	}
	if up := g.producersOf(c); len(up) != 0 {
		t.Errorf("upstream survived clearConsumer: %v", up)
	}
}

func TestDepGraph_CyclicEdgesTerminate(t *testing.T) {
	g := newDepGraph()

	a := tid("a")
	b := tid("b")

	g.recordRead(a, b)
	g.recordRead(b, a)

	deps := g.dependentsOf(a)
	if got := sortIDs(deps); len(got) != 1 {
		t.Errorf("expected traversal to visit b once, got %v", got)
	}
}

func TestDepGraph_Export(t *testing.T) {
	g := newDepGraph()

	p := tid("p")
	c1 := tid("c1")
	c2 := tid("c2")

	g.recordRead(c1, p)
	g.recordRead(c2, p)

	exported := g.export()
	if len(exported[p]) != 2 {
		t.Errorf("expected 2 consumers of p, got %v", exported[p])
	}

	// The export is a copy: mutating it leaves the graph intact.
	exported[p] = nil
	if len(g.directDependents(p)) != 2 {
		t.Error("export aliases internal state")
	}
}

func TestWaitGraph_RefusesClosingEdge(t *testing.T) {
	w := newWaitGraph()
	a, b, c := tid("wait-a"), tid("wait-b"), tid("wait-c")

	if loop := w.add(a, b); loop != nil {
		t.Fatalf("unexpected loop: %v", loop)
	}
	if loop := w.add(b, c); loop != nil {
		t.Fatalf("unexpected loop: %v", loop)
	}

	loop := w.add(c, a)
	if loop == nil {
		t.Fatal("edge closing a loop must be refused")
	}
	if loop[0] != c || loop[len(loop)-1] != c {
		t.Errorf("loop path should start and end at the waiter: %v", loop)
	}

	// The refused edge left the graph unchanged; once one wait ends the
	// same edge is fine.
	w.remove(b, c)
	if loop := w.add(c, a); loop != nil {
		t.Errorf("expected no loop after the wait ended, got %v", loop)
	}
}

func TestWaitGraph_CountsParallelWaits(t *testing.T) {
	w := newWaitGraph()
	a, b, c := tid("par-a"), tid("par-b"), tid("par-c")

	// One task waiting on the same target from two goroutines: the edge
	// must survive until both waits end.
	if loop := w.add(a, b); loop != nil {
		t.Fatalf("unexpected loop: %v", loop)
	}
	if loop := w.add(a, b); loop != nil {
		t.Fatalf("unexpected loop: %v", loop)
	}
	w.remove(a, b)

	if loop := w.add(b, a); loop == nil {
		t.Error("edge a -> b should still be held by the second wait")
	}

	w.remove(a, b)
	if loop := w.add(b, c); loop != nil {
		t.Errorf("unexpected loop: %v", loop)
	}
}
