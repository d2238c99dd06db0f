package glkstream

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// kind is an error category. Each kind optionally matches a standard library
// sentinel so callers may test with either.
type kind struct {
	msg string
	std error
}

func (k *kind) Error() string { return k.msg }

func (k *kind) Is(target error) bool {
	return k.std != nil && target == k.std
}

// Error categories shared by all stream and file reference operations.
var (
	// ErrNotFound is returned when the backing resource does not exist.
	// errors.Is(ErrNotFound, fs.ErrNotExist) reports true.
	ErrNotFound error = &kind{"glkstream: not found", fs.ErrNotExist}

	// ErrPermission is returned when the backing resource cannot be accessed.
	ErrPermission error = &kind{"glkstream: permission denied", fs.ErrPermission}

	// ErrClosed is returned by every operation on a closed stream.
	ErrClosed error = &kind{"glkstream: already closed", fs.ErrClosed}

	// ErrUnsupported is returned when a stream lacks the capability an
	// operation needs, e.g. seeking a network stream.
	ErrUnsupported error = &kind{"glkstream: unsupported operation", errors.ErrUnsupported}

	// ErrDecode is returned for malformed fixed-width code points and for
	// input that ends in the middle of a code point.
	ErrDecode error = &kind{"glkstream: decode error", nil}
)

// Error records a failed stream operation. Kind is one of the package error
// categories; Err is the underlying cause, if any.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	s := "glkstream: " + e.Op
	if e.Path != "" {
		s += " " + e.Path
	}
	switch {
	case e.Err != nil:
		return s + ": " + e.Err.Error()
	case e.Kind != nil:
		if k, ok := e.Kind.(*kind); ok {
			return s + ": " + strings.TrimPrefix(k.msg, "glkstream: ")
		}
		return s + ": " + e.Kind.Error()
	}
	return s
}

// Unwrap exposes both the category and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op string, k error) error {
	return &Error{Op: op, Kind: k}
}

// Classify wraps err in an *Error whose Kind is derived from the cause.
// Causes that match none of the categories are wrapped with a nil Kind.
// A nil err yields nil, and an err that is already an *Error is returned
// unchanged.
func Classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	e := &Error{Op: op, Path: path, Err: err}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e.Kind = ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		e.Kind = ErrPermission
	case errors.Is(err, fs.ErrClosed):
		e.Kind = ErrClosed
	case errors.Is(err, errors.ErrUnsupported):
		e.Kind = ErrUnsupported
	}
	return e
}

func kindError(op string, k error, format string, args ...any) error {
	return &Error{Op: op, Kind: k, Err: fmt.Errorf(format, args...)}
}
