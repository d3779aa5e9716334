package hostsfile

import (
	"errors"
	"fmt"
)

// ErrEmptyDomain is returned by Add and Remove for an empty domain.
var ErrEmptyDomain = errors.New("domain must not be empty")

// FormatError reports a managed block whose markers are duplicated or out of order.
// The file is left untouched; repairing it is up to the operator.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed managed block at line %d: %s", e.Line, e.Reason)
	}
	return "malformed managed block: " + e.Reason
}

// IOError reports a failure to read or write the managed file.
type IOError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err carries a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsIOError reports whether err carries an *IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
