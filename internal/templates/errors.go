package templates

import "errors"

// Errors returned by registry operations. Callers match them with errors.Is;
// the returned values wrap them with the offending filename or name.
var (
	// ErrDuplicateTemplate means the filename or display name is already taken (case-insensitive)
	ErrDuplicateTemplate = errors.New("duplicate template")
	// ErrInvalidFilename means the filename contains characters outside [A-Za-z0-9_-]
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrMissingSource means a local template was added without a source file
	ErrMissingSource = errors.New("missing source path")
	// ErrNotFound means no template has the given filename
	ErrNotFound = errors.New("template not found")
	// ErrNotRenamable means the template is already on the device
	ErrNotRenamable = errors.New("only unsynced templates can be renamed")
	// ErrInvalidName means the display name is empty
	ErrInvalidName = errors.New("template name cannot be empty")
	// ErrInFlight means the template is part of a sync that has not finished
	ErrInFlight = errors.New("template is being synced")
)
