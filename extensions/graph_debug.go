package extensions

import (
	"context"
	"sync"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/rs/zerolog"

	weft "github.com/weft-run/weft"
)

// GraphDebugExtension renders the dependency neighborhood of a failing task
// when a computation errors, so cycle and invalidation bugs can be read off
// the log instead of reconstructed.
//
// The drawing walks reverse edges (producer -> consumers) from the failed
// task, so the output answers "who depended on this".
type GraphDebugExtension struct {
	weft.BaseExtension
	log zerolog.Logger

	mu     sync.Mutex
	failed map[weft.TaskID]error
}

// NewGraphDebugExtension creates a graph debug extension backed by a zerolog
// logger.
func NewGraphDebugExtension(log zerolog.Logger) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: weft.NewBaseExtension("graph-debug"),
		log:           log,
		failed:        make(map[weft.TaskID]error),
	}
}

// Order places graph debugging outside other extensions so it observes their
// failures too.
func (e *GraphDebugExtension) Order() int {
	return 10
}

func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *weft.Operation) (any, error) {
	result, err := next()

	if err != nil && op.Kind == weft.OpCompute {
		e.mu.Lock()
		e.failed[op.Task] = err
		e.mu.Unlock()
	}

	return result, err
}

// OnError logs the failed task's direct dependents as a drawn tree, plus the
// transitive dependent count.
func (e *GraphDebugExtension) OnError(err error, op *weft.Operation, rt *weft.Runtime) {
	e.log.Error().
		Err(err).
		Stringer("task", op.Task).
		Int("transitive_dependents", len(rt.Dependents(op.Task))).
		Str("dependents", e.renderDependents(rt, op.Task)).
		Msg("computation failed")
}

// renderDependents draws the failed task with its direct consumers.
func (e *GraphDebugExtension) renderDependents(rt *weft.Runtime, root weft.TaskID) string {
	graph := rt.ExportDependencyGraph()
	consumers := graph[root]
	if len(consumers) == 0 {
		return "(no dependents tracked)"
	}

	t := tree.NewTree(tree.NodeString(e.label(root)))
	for _, consumer := range consumers {
		t.AddChild(tree.NodeString(e.label(consumer)))
	}

	return "\n" + t.String()
}

func (e *GraphDebugExtension) label(id weft.TaskID) string {
	e.mu.Lock()
	_, failed := e.failed[id]
	e.mu.Unlock()

	if failed {
		return id.String() + " !"
	}
	return id.String()
}
