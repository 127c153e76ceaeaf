package weft

import "context"

// TaskFunc is a named, memoizable computation. Binding it to an argument
// value yields a Handle whose TaskID is derived from the function name and
// the argument encoding, so equal arguments share one cell.
//
// The argument type is constrained to comparable: memoization keys must be
// hashable, and comparable values have a stable canonical encoding.
type TaskFunc[A comparable, T any] struct {
	name string
	fn   func(ctx context.Context, args A) (T, error)
	tags map[any]any
}

// TaskOption is a modifier for task functions.
type TaskOption func(Taggable)

// WithTaskTag returns an option that sets a tag on a task function.
func WithTaskTag[T any](tag Tag[T], val T) TaskOption {
	return func(t Taggable) {
		tag.Set(t, val)
	}
}

// Define registers a task function under a name. The name is part of every
// derived TaskID and must be unique within the process; reusing a name for
// a different function aliases their memoization cells.
//
// The body receives a context that carries the resolve chain; any nested
// Handle.Resolve call made with it is recorded as a dependency edge.
func Define[A comparable, T any](name string, fn func(ctx context.Context, args A) (T, error), opts ...TaskOption) *TaskFunc[A, T] {
	t := &TaskFunc[A, T]{
		name: name,
		fn:   fn,
		tags: make(map[any]any),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Name returns the task function's registered name.
func (f *TaskFunc[A, T]) Name() string {
	return f.name
}

// GetTag retrieves a tag value from the task function.
func (f *TaskFunc[A, T]) GetTag(tag any) (any, bool) {
	val, ok := f.tags[tag]
	return val, ok
}

// SetTag stores a tag value on the task function.
func (f *TaskFunc[A, T]) SetTag(tag any, val any) {
	f.tags[tag] = val
}

// Bind applies a task function to an argument value within a runtime and
// returns the typed handle for the resulting task. Binding is cheap and
// idempotent: equal arguments always map to the same TaskID, and rebinding
// an existing identity leaves the cached cell untouched.
func Bind[A comparable, T any](rt *Runtime, f *TaskFunc[A, T], args A) Handle[T] {
	id := newTaskID(f.name, encodeArgs(args))

	// Snapshot the tags: the binding is read concurrently by computes, and
	// the task function stays mutable to its owner.
	tags := make(map[any]any, len(f.tags))
	for k, v := range f.tags {
		tags[k] = v
	}

	rt.bind(id, &binding{
		name: f.name,
		tags: tags,
		run: func(ctx context.Context) (any, error) {
			return f.fn(ctx, args)
		},
	})

	return Handle[T]{id: id, rt: rt}
}
