// Package logging provides structured logging for rmtemplates.
//
// This package wraps a global zap logger with convenience functions. Logging is
// silent unless RMTEMPLATES_LOG_LEVEL is set, so CLI output stays clean by default.
//
// # Log Levels
//
//   - Debug: device call timings, health ticks, websocket traffic
//   - Info: connection state changes, sync and backup results
//   - Warn: failed device calls, best-effort steps that did not succeed
//   - Error: failures that abort a command
//
// # Sinks
//
// Console output goes to stderr with ISO8601 timestamps. Setting
// RMTEMPLATES_LOG_FILE adds a rotated JSON file sink:
//
//	RMTEMPLATES_LOG_LEVEL=debug RMTEMPLATES_LOG_FILE=/tmp/rmtemplates.log rmtemplates push Cornell.svg
//
// # Domain Helpers
//
//	logging.LogStateChange(sess.ID, "connected", "lost", err)
//	logging.LogDeviceCall(addr, "apply_sync", started, err)
//
// All logging functions are safe for concurrent use.
package logging
