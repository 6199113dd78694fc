package avp

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptArchive    = errors.New("corrupt archive")
	ErrMissingManifest   = errors.New("missing manifest")
	ErrMalformedManifest = errors.New("malformed manifest")
	ErrMissingAudio      = errors.New("missing audio entry")
	ErrUnsafePath        = errors.New("unsafe entry path")
	ErrMissingAsset      = errors.New("missing asset entry")
	ErrTooLarge          = errors.New("package too large")
)

// FormatError is returned when bytes are not a usable lesson package. The
// message always starts with the stable reason fragment so callers and UIs
// can match on it ("corrupt archive", "missing manifest",
// "missing audio entry: <path>").
type FormatError struct {
	Reason error  // one of the Err* sentinels
	Path   string // entry path, when the reason concerns one
	Err    error  // underlying cause, if any
}

func (e *FormatError) Error() string {
	msg := e.Reason.Error()
	if e.Reason == ErrMissingAudio || e.Reason == ErrUnsafePath || e.Reason == ErrMissingAsset {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return "invalid avp: " + msg
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

func formatErr(reason error, path string, cause error) error {
	return &FormatError{Reason: reason, Path: path, Err: cause}
}

// IsFormatError reports whether err (or anything it wraps) is a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// ValidationError lists manifest problems found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid manifest: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid manifest: %s (and %d more)", e.Problems[0], len(e.Problems)-1)
}
