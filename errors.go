package tar

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/pkg/errors"
)

// ErrorKind classifies why decoding failed. It is a closed set mirroring
// the error_code enum of the original tierone::tar implementation
// (error.hpp): invalid structural fields, cross-record corruption,
// propagated I/O failures, known-but-unhandled constructs, and caller
// misuse are kept distinct so callers can react differently to each.
type ErrorKind int

const (
	// KindInvalidHeader means a structural field failed validation: magic,
	// version, octal syntax, or an empty path.
	KindInvalidHeader ErrorKind = iota
	// KindCorruptArchive means a cross-field or inter-record inconsistency:
	// checksum mismatch, a lone zero record, a record extending past its
	// buffer, or a short read mid-record.
	KindCorruptArchive
	// KindIOError means the byte source itself reported a failure.
	KindIOError
	// KindUnsupportedFeature means a construct this reader does not handle:
	// a type flag outside the known set, a PAX GNU sparse version other than
	// 0.1/1.0, or an unavailable digest algorithm. Multi-volume ('M') and
	// volume-header ('V') records are skipped rather than reported.
	KindUnsupportedFeature
	// KindInvalidOperation means caller misuse: a backward seek in
	// streaming mode, or reading data from a non-regular entry.
	KindInvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidHeader:
		return "invalid-header"
	case KindCorruptArchive:
		return "corrupt-archive"
	case KindIOError:
		return "io-error"
	case KindUnsupportedFeature:
		return "unsupported-feature"
	case KindInvalidOperation:
		return "invalid-operation"
	default:
		return "unknown"
	}
}

// Error is the single error type the core ever returns. It carries a Kind
// for programmatic dispatch and wraps an optional cause via github.com/
// pkg/errors so that %+v formatting retains a trace back to the original
// I/O or decode failure, the same style hashicorp-go-extract and
// opencontainers-umoci use for their own extraction errors.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("tar: %s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("tar: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func newErrorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, cause error, msg string) error {
	return &Error{Kind: kind, Message: msg, cause: errors.WithStack(cause)}
}

// sizeError reports a size/overflow failure with a human-readable byte
// count, matching how moby-moby and opencontainers-umoci format size
// diagnostics in their own extraction error paths.
func sizeError(kind ErrorKind, field string, n int64) error {
	return newErrorf(kind, "%s: %s (%d bytes)", field, units.BytesSize(float64(n)), n)
}

// Kind reports err's ErrorKind, or KindIOError if err is not a *Error
// (e.g. it came directly from the byte source).
func Kind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIOError
}
