// Package logger defines the logging interface used across the SDK.
// The zero-dependency NoopLogger is the default; NewZapLogger provides a
// production structured logger.
package logger

// Logger is the minimal structured logging surface the SDK needs.
// Any logging backend can be adapted to it.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards all log output.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
