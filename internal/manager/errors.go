package manager

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no experiment exists under the requested id in
// any storage tier.
var ErrNotFound = eris.New("manager: experiment not found")

// ValidationError rejects an operation before any I/O happens. The message is
// written for end users.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: eris.Errorf(format, args...).Error()}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError wraps a failed experimentation-platform call. Message carries
// the platform's own words when it provided any, so the user sees "Experiment
// name already in use" rather than a bare status code.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return "platform: " + e.Message }

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
