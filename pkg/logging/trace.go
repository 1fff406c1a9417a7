package logging

import "log/slog"

// EnableTrace switches on per-entry logs (cache lookups, snapshot scans).
// Set by a "TRACE" log level.
var EnableTrace = false

// Trace logs at DEBUG level, but only if EnableTrace is true.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
