// internal/syserr/errors.go
package syserr

import (
	"errors"
	"fmt"
)

// Kind is the failure category. Codes are wire-visible in status payloads
// and MUST NOT be renumbered.
type Kind uint16

const (
	// KindGeneric covers failures that fit no other category.
	KindGeneric Kind = 1000

	// KindConnection covers serial open and health-check failures.
	KindConnection Kind = 2000

	// KindDevice covers malformed, CRC-invalid or timed-out device responses.
	KindDevice Kind = 3000

	// KindNetwork covers UDP send failures and unreachable clients.
	KindNetwork Kind = 4000

	// KindConfig covers invalid register values, ranges and settings.
	KindConfig Kind = 5000

	// KindResource covers worker and task lifecycle failures.
	KindResource Kind = 6000
)

// String returns the category label used in status payloads.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindDevice:
		return "device"
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	case KindResource:
		return "resource"
	default:
		return "error"
	}
}

// Error is a categorised failure. It wraps an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Code exposes the numeric category so callers can extract it with
// errors.As against interface{ Code() uint16 }.
func (e *Error) Code() uint16 { return uint16(e.Kind) }

// New returns a categorised error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a categorised error around cause. A nil cause yields nil.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the numeric category from err.
// 0 means nil; 1 means an uncategorised error.
func CodeOf(err error) uint16 {
	if err == nil {
		return 0
	}
	var coder interface{ Code() uint16 }
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return 1
}

// IsKind reports whether err carries the given category.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
