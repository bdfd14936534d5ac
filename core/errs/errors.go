package errs

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the job lifecycle and its collaborators.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid request")
	ErrProcessStart       = errors.New("process start failed")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrUpstream           = errors.New("upstream service error")
	ErrRegistrationFailed = errors.New("model registration failed")
)

// Error wraps a kind with a message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newf(kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// NotFound reports an unknown dataset or job id.
func NotFound(format string, args ...any) error {
	return newf(ErrNotFound, nil, format, args...)
}

// Invalid reports a malformed request.
func Invalid(format string, args ...any) error {
	return newf(ErrInvalid, nil, format, args...)
}

// ProcessStart reports an external executable that could not be spawned.
func ProcessStart(cause error, format string, args ...any) error {
	return newf(ErrProcessStart, cause, format, args...)
}

// ArtifactNotFound reports registration attempted without a success artifact.
func ArtifactNotFound(format string, args ...any) error {
	return newf(ErrArtifactNotFound, nil, format, args...)
}

// Upstream reports the model-serving daemon being unreachable or returning an error frame.
func Upstream(cause error, format string, args ...any) error {
	return newf(ErrUpstream, cause, format, args...)
}

// RegistrationFailed reports a registration command that exited non-zero.
func RegistrationFailed(format string, args ...any) error {
	return newf(ErrRegistrationFailed, nil, format, args...)
}
