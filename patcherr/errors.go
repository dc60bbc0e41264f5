// Package patcherr gives the patch-engine error taxonomy a concrete type.
//
// Every error the core produces carries a Kind (Io, DownloadFailed,
// Decompression, InvalidFormat, PatchFailed, Custom) alongside the usual
// wrapped cause, so callers can branch on failure class without parsing
// message text. Construction goes through pkg/errors so %+v still prints
// a stack trace from the point the error was created.
package patcherr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Io covers filesystem or transport I/O failures.
	Io Kind = iota
	// DownloadFailed covers exhausted mirror failover or a non-2xx patch list fetch.
	DownloadFailed
	// Decompression covers zlib/gzip failures.
	Decompression
	// InvalidFormat covers bad magic, bad tags, or unsupported carrier/GRF versions.
	InvalidFormat
	// PatchFailed covers logical apply failures: bad checksum, unknown extension, missing entry.
	PatchFailed
	// Custom covers bounded-length violations and internal invariant breaches.
	Custom
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case DownloadFailed:
		return "download_failed"
	case Decompression:
		return "decompression"
	case InvalidFormat:
		return "invalid_format"
	case PatchFailed:
		return "patch_failed"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every package in this module.
type Error struct {
	kind  Kind
	cause error
}

// New builds an Error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{kind: k, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error, preserving its stack via pkg/errors.
func Wrap(k Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: k, cause: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(k Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: k, cause: errors.Wrapf(err, format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

// Kind returns the error's failure class.
func (e *Error) Kind() Kind {
	if e == nil {
		return Custom
	}
	return e.kind
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind() == k
	}
	return false
}
