// Package rtelog is the ambient structured-logging wrapper used
// throughout the analysis engine, adapted from the teacher's
// utils.Logger: a small interface plus a slog-backed default
// implementation that can carry default fields on a context.
package rtelog

import (
	"context"
	"log/slog"
	"os"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return &DefaultLogger{logger: logger}
}

const prefix = "[regiontree] "

func (d *DefaultLogger) Debug(msg string, args ...any) { d.logger.Debug(prefix+msg, args...) }
func (d *DefaultLogger) Info(msg string, args ...any)  { d.logger.Info(prefix+msg, args...) }
func (d *DefaultLogger) Warn(msg string, args ...any)  { d.logger.Warn(prefix+msg, args...) }
func (d *DefaultLogger) Error(msg string, args ...any) { d.logger.Error(prefix+msg, args...) }

var defaultArgsKey int

func getDefaultArgs(ctx context.Context) []any {
	v := ctx.Value(&defaultArgsKey)
	if v == nil {
		return nil
	}
	return v.([]any)
}

// WithDefaultArgs returns a context that carries extra slog args to be
// appended to every *Ctx log call made with it — used to thread
// (op_unique_id, context_unique_id) through a call chain without
// plumbing them as explicit parameters everywhere.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	dargs := append(append([]any{}, getDefaultArgs(ctx)...), args...)
	return context.WithValue(ctx, &defaultArgsKey, dargs)
}

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Debug(prefix+msg, args...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Info(prefix+msg, args...)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Warn(prefix+msg, args...)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Error(prefix+msg, args...)
}

// Nop is a Logger that discards everything, for tests that don't care
// about log output.
type Nop struct{}

func (Nop) Debug(string, ...any)                            {}
func (Nop) Info(string, ...any)                              {}
func (Nop) Warn(string, ...any)                              {}
func (Nop) Error(string, ...any)                             {}
func (Nop) DebugCtx(context.Context, string, ...any)         {}
func (Nop) InfoCtx(context.Context, string, ...any)          {}
func (Nop) WarnCtx(context.Context, string, ...any)          {}
func (Nop) ErrorCtx(context.Context, string, ...any)         {}
