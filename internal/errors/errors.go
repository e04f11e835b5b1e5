// Package errors provides the error taxonomy used throughout throttle.
//
// It re-exports the wrapping helpers from github.com/pkg/errors so call
// sites get stack-trace-capturing Wrap/Wrapf/New/Errorf, and adds a Fatal
// marker used to distinguish errors that should end a role's process (after
// logging and a supervised restart) from errors that are recoverable at the
// call site.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// New, Wrap, Wrapf, Errorf, Cause and Is/As are the pkg/errors API surface
// this package re-exports so callers only ever import one errors package.
var (
	New    = errors.New
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Errorf = errors.Errorf
	Cause  = errors.Cause
	Is     = errors.Is
	As     = errors.As
)

// fatalError marks an error as unrecoverable for the role that produced it.
type fatalError struct {
	msg string
}

func (e *fatalError) Error() string { return e.msg }

// Fatal builds an error that IsFatal reports true for.
func Fatal(msg string) error {
	return &fatalError{msg: msg}
}

// Fatalf is like Fatal but accepts a format string.
func Fatalf(format string, args ...interface{}) error {
	return &fatalError{msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err (or something it wraps) was created by Fatal
// or Fatalf.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// Kind classifies an error per the taxonomy in spec.md §7.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindAuth
	KindTransport
	KindDisk
	KindIntegrity
	KindTimeout
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindAuth:
		return "AuthError"
	case KindTransport:
		return "TransportError"
	case KindDisk:
		return "DiskError"
	case KindIntegrity:
		return "IntegrityError"
	case KindTimeout:
		return "TimeoutError"
	case KindResource:
		return "ResourceError"
	default:
		return "UnknownError"
	}
}

// Classified wraps an error with a Kind from the error taxonomy, so callers
// at role boundaries (IPC replies, record state transitions) can branch on
// the kind without string matching.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string {
	return fmt.Sprintf("%s: %v", c.Kind, c.Err)
}

func (c *Classified) Unwrap() error { return c.Err }

// Classify wraps err with kind, preserving the wrapped error for errors.Is/As.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: err}
}

// KindOf extracts the Kind from a classified error, defaulting to
// KindTransport for unclassified errors (the most common recoverable case).
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return KindTransport
}
