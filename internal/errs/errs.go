// Package errs defines the tagged error kinds used at component boundaries
// throughout the flow engine, per SPEC_FULL §7.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the non-exhaustive error categories named in SPEC_FULL §7.
type Kind string

const (
	InvalidInput          Kind = "InvalidInput"
	NotFound              Kind = "NotFound"
	LLMFailure             Kind = "LLMFailure"
	ParseFailure           Kind = "ParseFailure"
	StoreFailure           Kind = "StoreFailure"
	UpstreamSocketFailure  Kind = "UpstreamSocketFailure"
	ChatPlatformFailure    Kind = "ChatPlatformFailure"
	InvariantViolation     Kind = "InvariantViolation"
)

// Error wraps an underlying error with a Kind so callers at a component
// boundary can branch on category without string-matching messages.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// KindOf returns the Kind of err if err (or something it wraps) is an
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

// New builds a tagged Error with no wrapped cause.
func New(k Kind, msg string) error {
	return &Error{kind: k, msg: msg}
}

// Wrap builds a tagged Error wrapping an underlying cause.
func Wrap(k Kind, msg string, cause error) error {
	return &Error{kind: k, msg: msg, err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
