package device

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyConnectError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"Timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, ErrTypeTimeout, true},
		{"Refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ErrTypeConnect, true},
		{"Host unreachable", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, ErrTypeUnreachable, true},
		{"Auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none publickey]"), ErrTypeAuth, false},
		{"Other", errors.New("ssh: handshake failed: EOF"), ErrTypeConnect, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyConnectError(tt.err, "10.11.99.1")
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.Address != "10.11.99.1" {
				t.Errorf("Address = %q", got.Address)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error does not wrap the cause")
			}
		})
	}

	if ClassifyConnectError(nil, "x") != nil {
		t.Error("ClassifyConnectError(nil) should return nil")
	}
}

func TestErrorHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("sync: %w", NewSyncError("failed to upload Grid", errors.New("broken pipe")))

	if !IsSyncError(err) {
		t.Error("IsSyncError() = false for wrapped sync error")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false for sync error")
	}
	if IsAuthError(err) || IsBackupError(err) || IsConnectError(err) {
		t.Error("sync error matched another category")
	}
	if got := ShortMessage(err); got != "Sync failed - failed to upload Grid" {
		t.Errorf("ShortMessage() = %q", got)
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestTroubleshootingHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewUnreachableError("10.11.99.1", nil), "10.11.99.1"},
		{&DeviceError{Type: ErrTypeAuth}, "keys upload"},
		{NewSyncError("x", nil), "sync again"},
		{ErrNotConnected, "Connect"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tt := range tests {
		if got := TroubleshootingHint(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("TroubleshootingHint(%v) = %q, want it to mention %q", tt.err, got, tt.want)
		}
	}
}

func TestDeviceErrorMessage(t *testing.T) {
	err := NewBackupError("failed to create archive file", errors.New("permission denied"))
	want := "Backup Error: failed to create archive file (caused by: permission denied)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if ErrNotConnected.Error() != "Not Connected: not connected to reMarkable device" {
		t.Errorf("ErrNotConnected.Error() = %q", ErrNotConnected.Error())
	}
}
