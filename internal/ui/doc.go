// Package ui provides terminal UI components for the rmtemplates CLI.
//
// Most output follows a "run once and exit" pattern: a Header describing the
// command, a progress line while the device works, and a Result box at the
// end. Components render to strings so commands decide where they go; the
// Printer is the usual way to write them.
//
// # Progress
//
// Device calls report nothing until they return, so SyncProgress simulates
// progress. It implements syncer.Observer and, once registered with a
// coordinator, draws a bar that advances on a timer (10% every 200ms for a
// backup, 80%/n every 300ms for a sync of n files) and stops at 90% until
// the result arrives.
//
// # Interactive models
//
// LostPrompt asks whether to retry or disconnect after the health check
// fails. WatchModel is a live view of the connection state and template
// registry with key bindings for sync, retry and disconnect.
//
// # Logging Integration
//
// Logging is controlled via the RMTEMPLATES_LOG_LEVEL environment variable.
// When unset, zap logging is silent so the UI output stays clean.
package ui
