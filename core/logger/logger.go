// Package logger defines the logging contract the engine's components depend
// on, keeping the core packages free of any concrete logging backend.
package logger

// Logger is the leveled logging interface threaded through the pipeline,
// tracker and auditor.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw attaches structured fields to a debug message.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger is the optional field-logging capability; adapters that
// support it (such as the zerolog one) satisfy this interface.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
}
