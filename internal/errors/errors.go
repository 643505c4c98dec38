// Package errors re-exports github.com/cockroachdb/errors and defines the
// sentinel errors shared by the signal pipeline.
//
//	if err := ingestor.Window(text); err != nil {
//	    return errors.Wrap(err, "import failed")
//	}
//
// Check with errors.Is against the sentinels below.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

var (
	// ErrModelLoad is returned when the model artifact cannot be fetched or parsed.
	ErrModelLoad = New("model load failed")

	// ErrInference is returned when a forward pass fails.
	ErrInference = New("inference failed")

	// ErrShapeMismatch marks an inference input or output with the wrong length.
	ErrShapeMismatch = New("shape mismatch")

	// ErrModelNotReady means the model is still loading.
	ErrModelNotReady = New("model not ready")

	// ErrOutOfRange marks a buffer write outside [0, size-1].
	ErrOutOfRange = New("index out of range")

	// ErrShortWindow means the imported file has fewer lines than the window needs.
	ErrShortWindow = New("signal window too short")

	// ErrMalformedSample means a line in the window is not a number.
	ErrMalformedSample = New("malformed sample")

	// ErrSessionFailed is returned for any operation on a session in the terminal state.
	ErrSessionFailed = New("session failed")

	// ErrSessionNotFound means no session exists with the requested id.
	ErrSessionNotFound = New("session not found")

	// ErrInvalidRequest indicates a malformed request.
	ErrInvalidRequest = New("invalid request")
)

// IsFatal reports whether err is one of the two terminal error kinds:
// a model load failure or an inference failure.
func IsFatal(err error) bool {
	return err != nil && IsAny(err, ErrModelLoad, ErrInference)
}

// IsInputError reports whether err was caused by bad caller input.
func IsInputError(err error) bool {
	return err != nil && IsAny(err, ErrInvalidRequest, ErrShortWindow, ErrMalformedSample, ErrOutOfRange)
}

// Fatal marks err as an inference failure while keeping its message.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return WithHint(Mark(err, ErrInference), "reload to start a new session")
}
