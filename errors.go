package weft

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrUnboundTask is returned when a TaskID reaches the scheduler without
	// a registered binding. This is a caller-side invariant violation; it
	// fails the requesting call chain and is never cached in a cell.
	ErrUnboundTask = errors.New("task is not bound to this runtime")

	// ErrUnboundHandle is returned when resolving a zero-value handle that
	// was never produced by Bind.
	ErrUnboundHandle = errors.New("handle is not bound to a runtime")
)

// ComputeError wraps a failure of a task body. The error is published as the
// cell's value for that generation, so repeated reads observe the same
// failure until the cell is invalidated and successfully recomputed.
type ComputeError struct {
	Task       TaskID
	Err        error
	StackTrace []byte
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute error in task %v: %v", e.Task, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// CycleError reports a re-entrant resolution: a task transitively required
// its own value on the same resolve chain. It fails only the offending
// chain; cells computed by other chains are unaffected.
type CycleError struct {
	Request string
	Path    []TaskID
}

func (e *CycleError) Error() string {
	steps := make([]string, len(e.Path))
	for i, id := range e.Path {
		steps[i] = id.String()
	}
	return fmt.Sprintf("dependency cycle in request %s: %s", e.Request, strings.Join(steps, " -> "))
}

// NoSuchCapabilityError reports a capability lookup miss: the resolved
// concrete type has no registered dispatch descriptor for the requested
// capability.
type NoSuchCapabilityError struct {
	Concrete   reflect.Type
	Capability reflect.Type
}

func (e *NoSuchCapabilityError) Error() string {
	return fmt.Sprintf("type %v does not implement capability %v", e.Concrete, e.Capability)
}

// StaleRegistryError reports a capability registration attempted after the
// registry was sealed by the first resolution. Registrations must complete
// during startup, before any handle is resolved.
type StaleRegistryError struct {
	Concrete   reflect.Type
	Capability reflect.Type
}

func (e *StaleRegistryError) Error() string {
	return fmt.Sprintf("capability registry is sealed: cannot register %v for %v", e.Capability, e.Concrete)
}

// safeAssert performs a checked type assertion with a descriptive error.
func safeAssert[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
