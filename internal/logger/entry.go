package logger

import (
	"context"
)

// Entry accumulates metric fields (duration_ms, count, attempts, status) for
// one log line. The context passed at emit time wins: tracing fields carried
// in ctx are merged under the metric fields.
type Entry struct {
	logger *Logger
	fields Fields
}

// With starts an Entry with the given metric fields.
// Example: logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Reclaimed jobs")
func With(fields Fields) *Entry {
	return &Entry{
		logger: getDefaultLogger(),
		fields: fields,
	}
}

// With returns a new Entry with additional fields merged in. Later fields
// overwrite earlier ones on key collision.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{
		logger: e.logger,
		fields: merged,
	}
}

// resolve picks the logger for emission, preferring the one carried in ctx so
// operation_id/queue/job_id tracing fields survive onto the line.
func (e *Entry) resolve(ctx context.Context) *Logger {
	if ctx != nil {
		return FromContext(ctx)
	}
	return e.logger
}

// Debug emits the entry at Debug level.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Debugf(format, args...)
}

// Info emits the entry at Info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn emits the entry at Warn level.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Warnf(format, args...)
}

// Error emits the entry at Error level.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Errorf(format, args...)
}
