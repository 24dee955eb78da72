package session

import "errors"

var (
	// ErrConnectionLost means the device stopped answering or the session is not connected
	ErrConnectionLost = errors.New("connection lost")
	// ErrBusy means another network operation is in flight; the trigger is refused, not queued
	ErrBusy = errors.New("another operation is in progress")
	// ErrNotConnected means the operation needs an established session
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidTransition means the event is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoSavedConfig means quick connect found no saved device
	ErrNoSavedConfig = errors.New("no saved device configuration")
)
