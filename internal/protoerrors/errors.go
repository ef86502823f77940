// Package protoerrors defines the closed set of business error kinds the
// service layer returns and their mapping onto wire response codes. The
// protocol handlers are the only place these are converted for clients;
// internal error text never crosses the wire beyond {code, message}.
package protoerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a business error.
type Kind int

const (
	KindValidation Kind = iota
	KindBadCredentials
	KindAuthorization
	KindNotFound
	KindStateTransition
	KindConflict
	KindInternal
)

var kindNames = map[Kind]string{
	KindValidation:      "validation",
	KindBadCredentials:  "bad_credentials",
	KindAuthorization:   "authorization",
	KindNotFound:        "not_found",
	KindStateTransition: "state_transition",
	KindConflict:        "conflict",
	KindInternal:        "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a business error carrying its kind and the operation that
// produced it. Field is set for validation errors, UserID for
// authorization errors, FromStatus/ToStatus for illegal transitions.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	Field      string
	UserID     int64
	FromStatus string
	ToStatus   string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a bad input field.
func Validation(op, field, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Message: message}
}

// BadCredentials reports a failed login attempt.
func BadCredentials(op string) *Error {
	return &Error{Kind: KindBadCredentials, Op: op, Message: "invalid username or password"}
}

// Authorization reports that the caller lacks permission.
func Authorization(op string, userID int64, message string) *Error {
	return &Error{Kind: KindAuthorization, Op: op, UserID: userID, Message: message}
}

// NotFound reports an absent ticket/user/session.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// StateTransition reports an illegal work-order status change.
func StateTransition(op, from, to string) *Error {
	return &Error{
		Kind:       KindStateTransition,
		Op:         op,
		FromStatus: from,
		ToStatus:   to,
		Message:    fmt.Sprintf("illegal status transition %s -> %s", from, to),
	}
}

// Conflict reports a uniqueness violation, e.g. a duplicate username.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

// Internal wraps an unexpected failure (storage down, etc).
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "operation failed", Err: err}
}

// KindOf extracts the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError extracts the *Error from err if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
