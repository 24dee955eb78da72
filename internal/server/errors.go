package server

import (
	"errors"
	"net/http"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/syncer"
	"github.com/muurk/rmtemplates/internal/templates"
)

// errorBody is the JSON body of every error response
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

// statusFor maps an error to an HTTP status and a stable code for frontends
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, templates.ErrInFlight):
		return http.StatusConflict, "busy"
	case errors.Is(err, templates.ErrDuplicateTemplate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, templates.ErrInvalidFilename),
		errors.Is(err, templates.ErrInvalidName),
		errors.Is(err, templates.ErrMissingSource),
		errors.Is(err, templates.ErrNotRenamable):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, templates.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrConnectionLost):
		return http.StatusServiceUnavailable, "connection_lost"
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, session.ErrNoSavedConfig):
		return http.StatusNotFound, "no_saved_config"
	case errors.Is(err, syncer.ErrSyncFailed), errors.Is(err, syncer.ErrBackupFailed):
		return http.StatusBadGateway, "device_failed"
	}

	var devErr *device.DeviceError
	if errors.As(err, &devErr) {
		switch devErr.Type {
		case device.ErrTypeInvalidFile:
			return http.StatusBadRequest, "invalid"
		case device.ErrTypeAuth:
			return http.StatusUnauthorized, "auth"
		default:
			return http.StatusBadGateway, "device_failed"
		}
	}
	return http.StatusInternalServerError, "internal"
}

// hintFor returns troubleshooting advice for device errors only
func hintFor(err error) string {
	var devErr *device.DeviceError
	if !errors.As(err, &devErr) {
		return ""
	}
	return device.TroubleshootingHint(err)
}
