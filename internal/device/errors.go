package device

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeConnect indicates the SSH connection could not be established
	ErrTypeConnect ErrorType = iota
	// ErrTypeAuth indicates the device rejected the key or password
	ErrTypeAuth
	// ErrTypeUnreachable indicates an established connection stopped responding
	ErrTypeUnreachable
	// ErrTypeTimeout indicates the device did not answer in time
	ErrTypeTimeout
	// ErrTypeSync indicates uploads or the templates.json rewrite failed
	ErrTypeSync
	// ErrTypeBackup indicates the remote templates could not be archived
	ErrTypeBackup
	// ErrTypeTransport indicates a remote command failed for another reason
	ErrTypeTransport
	// ErrTypeNotConnected indicates an operation was attempted without a connection
	ErrTypeNotConnected
	// ErrTypeInvalidFile indicates a local file that cannot be used as a template
	ErrTypeInvalidFile
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeConnect:
		return "Connection Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeUnreachable:
		return "Device Unreachable"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeSync:
		return "Sync Error"
	case ErrTypeBackup:
		return "Backup Error"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeNotConnected:
		return "Not Connected"
	case ErrTypeInvalidFile:
		return "Invalid File"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred during device communication
type DeviceError struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable error message
	Err       error     // Underlying error (if any)
	Address   string    // Device address (for context)
	Retryable bool      // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ErrNotConnected is returned by operations that need an open connection
var ErrNotConnected = &DeviceError{Type: ErrTypeNotConnected, Message: "not connected to reMarkable device"}

// ClassifyConnectError turns a dial or handshake failure into a DeviceError
func ClassifyConnectError(err error, address string) *DeviceError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, syscall.ETIMEDOUT) {
		return &DeviceError{
			Type:      ErrTypeTimeout,
			Message:   "Connection timed out",
			Err:       err,
			Address:   address,
			Retryable: true,
		}
	}

	// x/crypto/ssh only reports auth failures as text
	if strings.Contains(err.Error(), "unable to authenticate") {
		return &DeviceError{
			Type:      ErrTypeAuth,
			Message:   "Device rejected the credentials",
			Err:       err,
			Address:   address,
			Retryable: false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &DeviceError{
				Type:      ErrTypeConnect,
				Message:   "Device refused connection",
				Err:       err,
				Address:   address,
				Retryable: true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH), errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &DeviceError{
				Type:      ErrTypeUnreachable,
				Message:   "Host unreachable",
				Err:       err,
				Address:   address,
				Retryable: true,
			}
		}
	}

	return &DeviceError{
		Type:      ErrTypeConnect,
		Message:   "Failed to connect",
		Err:       err,
		Address:   address,
		Retryable: true,
	}
}

// NewUnreachableError creates an error for a failed health check
func NewUnreachableError(address string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeUnreachable,
		Message:   "connection lost",
		Err:       err,
		Address:   address,
		Retryable: true,
	}
}

// NewSyncError creates an error for a failed sync step
func NewSyncError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeSync,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewBackupError creates an error for a failed backup step
func NewBackupError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeBackup,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewTransportError creates an error for a failed remote command
func NewTransportError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeTransport,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewInvalidFileError creates an error for a local file that cannot become a template
func NewInvalidFileError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeInvalidFile,
		Message: message,
		Err:     err,
	}
}

func typeOf(err error) (ErrorType, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Type, true
	}
	return ErrTypeUnknown, false
}

// IsConnectError checks if an error is a connection failure (including timeouts and auth)
func IsConnectError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeConnect || t == ErrTypeTimeout || t == ErrTypeAuth)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeAuth
}

// IsUnreachable checks if an error means the device stopped answering
func IsUnreachable(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeUnreachable || t == ErrTypeTimeout)
}

// IsSyncError checks if an error is a sync error
func IsSyncError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeSync
}

// IsBackupError checks if an error is a backup error
func IsBackupError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeBackup
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// TroubleshootingHint returns user-friendly troubleshooting advice for an error
func TroubleshootingHint(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout, ErrTypeUnreachable:
		return strings.Join([]string{
			"The reMarkable did not respond.",
			"Troubleshooting:",
			"  • Make sure the tablet is awake (tap the screen)",
			"  • Over USB the address is 10.11.99.1",
			"  • Over WiFi, check Settings > Help > Copyrights and licenses for the IP",
			"  • Confirm your computer is on the same network",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"The device rejected the login.",
			"Troubleshooting:",
			"  • Upload your public key first: rmtemplates keys upload",
			"  • The root password is shown under Settings > Help > Copyrights and licenses",
			"  • The password changes after a factory reset",
		}, "\n")

	case ErrTypeConnect:
		return strings.Join([]string{
			"Could not open an SSH connection.",
			"Troubleshooting:",
			"  • Check the device address",
			"  • SSH over WiFi must be enabled on newer firmware",
			"  • Try the USB cable and 10.11.99.1",
		}, "\n")

	case ErrTypeSync:
		return strings.Join([]string{
			"The templates could not be written to the device.",
			"Nothing was changed locally; you can sync again.",
			"Troubleshooting:",
			"  • The device may be low on space",
			"  • A firmware update may have made the root filesystem read-only; reconnect to remount it",
		}, "\n")

	case ErrTypeBackup:
		return "The backup could not be completed. Check that the target directory is writable."

	case ErrTypeNotConnected:
		return "Connect to the device first."

	case ErrTypeInvalidFile:
		return "Templates must be .svg or .png files named with letters, numbers, '-' and '_' only."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeAuth:
		return "Authentication failed - check your SSH key"
	case ErrTypeUnreachable:
		return "Device unreachable - check the connection"
	case ErrTypeConnect:
		return "Could not connect to device"
	case ErrTypeSync:
		return "Sync failed - " + devErr.Message
	case ErrTypeBackup:
		return "Backup failed - " + devErr.Message
	default:
		return devErr.Message
	}
}
