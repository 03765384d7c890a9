// Package observability carries structured logging context through the task
// pipeline so every log line identifies its task, round, and stage.
package observability

import (
	"context"
	"log/slog"
	"strconv"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	TaskID string
	Round  int
	Stage  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithTask binds a task identity to the context.
func WithTask(ctx context.Context, taskID string, round int) context.Context {
	lc := extractLogContext(ctx)
	lc.TaskID = taskID
	lc.Round = round
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage records the pipeline stage currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.TaskID != "" {
		attrs = append(attrs, slog.String("task.id", lc.TaskID))
	}
	if lc.Round > 0 {
		attrs = append(attrs, slog.String("task.round", strconv.Itoa(lc.Round)))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}
	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelInfo, msg, append(getLogAttrs(ctx), attrs...)...)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelWarn, msg, append(getLogAttrs(ctx), attrs...)...)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelError, msg, append(getLogAttrs(ctx), attrs...)...)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelDebug, msg, append(getLogAttrs(ctx), attrs...)...)
}
