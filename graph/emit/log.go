// Package emit provides event emission and observability for graph execution.
package emit

import (
	"context"

	"go.uber.org/zap"
)

// LogEmitter implements Emitter by writing structured log entries through a
// zap.Logger. Each event becomes one log line with run/vertex/kind fields
// plus whatever Meta carries.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter wraps logger. A nil logger falls back to zap.NewNop.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, len(event.Meta)+2)
	fields = append(fields, zap.String("run_id", event.RunID))
	if event.VertexID != "" {
		fields = append(fields, zap.String("vertex_id", event.VertexID))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}

	switch event.Kind {
	case VertexFailed, WorkflowFailed:
		l.logger.Error(string(event.Kind), fields...)
	case WorkflowCancelled, VertexCancelled:
		l.logger.Warn(string(event.Kind), fields...)
	default:
		l.logger.Info(string(event.Kind), fields...)
	}
}

func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

func (l *LogEmitter) Flush(_ context.Context) error {
	return l.logger.Sync()
}
