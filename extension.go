package weft

import "context"

// Extension provides hooks into the runtime's operation lifecycle.
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a runtime
	Init(rt *Runtime) error

	// Wrap intercepts operations (compute, invalidate)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors during computation
	OnError(err error, op *Operation, rt *Runtime)

	// Dispose is called when the runtime is closed
	Dispose(rt *Runtime) error
}

// BaseExtension provides default implementations for Extension methods.
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name.
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(rt *Runtime) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, rt *Runtime) {
}

func (e *BaseExtension) Dispose(rt *Runtime) error {
	return nil
}

// Operation describes what operation is happening.
type Operation struct {
	Kind    OperationKind
	Task    TaskID
	Runtime *Runtime
}

// OperationKind represents the type of operation.
type OperationKind string

const (
	// OpCompute indicates a task body execution
	OpCompute OperationKind = "compute"
	// OpInvalidate indicates an invalidation sweep
	OpInvalidate OperationKind = "invalidate"
)
