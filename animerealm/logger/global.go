package logger

import (
	"log/slog"
	"time"
)

// LogCommand records one handled bot command with its timing.
func LogCommand(name, userName string, took time.Duration) {
	slog.Info("Command handled",
		slog.String("type", "cmd"),
		slog.String("name", name),
		slog.String("user_name", userName),
		slog.Duration("took", took))
}

// LogSystem logs lifecycle events.
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events.
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
