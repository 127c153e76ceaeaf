package extensions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	weft "github.com/weft-run/weft"
)

// TaskName tags task functions with a human-readable name for log output.
var TaskName = weft.NewTag[string]("task.name")

// LoggingExtension logs every compute and invalidation with timing.
type LoggingExtension struct {
	weft.BaseExtension
	log zerolog.Logger
}

// NewLoggingExtension creates a logging extension backed by a zerolog
// logger.
func NewLoggingExtension(log zerolog.Logger) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: weft.NewBaseExtension("logging"),
		log:           log,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *weft.Operation) (any, error) {
	start := time.Now()
	result, err := next()
	elapsed := time.Since(start)

	evt := e.log.Debug()
	if err != nil {
		evt = e.log.Error().Err(err)
	}

	name := op.Task.Func()
	if tagged, ok := op.Runtime.TaskTag(op.Task, TaskName); ok {
		if s, ok := tagged.(string); ok {
			name = s
		}
	}

	evt.Str("op", string(op.Kind)).
		Stringer("task", op.Task).
		Str("name", name).
		Dur("elapsed", elapsed).
		Msg("operation")

	return result, err
}

func (e *LoggingExtension) OnError(err error, op *weft.Operation, rt *weft.Runtime) {
	e.log.Error().
		Err(err).
		Str("op", string(op.Kind)).
		Stringer("task", op.Task).
		Msg("operation failed")
}
