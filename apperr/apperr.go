// Package apperr is the error taxonomy shared by handlers. Every error that
// reaches the HTTP boundary is either an *Error carrying a Kind, or an
// unexpected failure that is reported as Internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Forbidden
	Conflict
	Unauthenticated
	CapacityExceeded
	TooManyRequests
)

var kindInfo = map[Kind]struct {
	code   string
	status int
}{
	Internal:         {"internal", http.StatusInternalServerError},
	Validation:       {"validation_error", http.StatusUnprocessableEntity},
	NotFound:         {"not_found", http.StatusNotFound},
	Forbidden:        {"forbidden", http.StatusForbidden},
	Conflict:         {"conflict", http.StatusConflict},
	Unauthenticated:  {"unauthenticated", http.StatusUnauthorized},
	CapacityExceeded: {"capacity_exceeded", http.StatusBadRequest},
	TooManyRequests:  {"too_many_requests", http.StatusTooManyRequests},
}

// Code is the stable machine-readable name of the kind.
func (k Kind) Code() string { return kindInfo[k].code }

// Status is the HTTP status the kind maps to.
func (k Kind) Status() int { return kindInfo[k].status }

func (k Kind) String() string { return k.Code() }

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return e.Kind.Code() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func Wrap(k Kind, msg string, err error) *Error { return &Error{Kind: k, Message: msg, Err: err} }

func NewNotFound(msg string) *Error        { return New(NotFound, msg) }
func NewForbidden(msg string) *Error       { return New(Forbidden, msg) }
func NewConflict(msg string) *Error        { return New(Conflict, msg) }
func NewUnauthenticated(msg string) *Error { return New(Unauthenticated, msg) }
func NewCapacity(msg string) *Error        { return New(CapacityExceeded, msg) }

// NewValidation builds a Validation error with optional per-field messages.
func NewValidation(msg string, fields map[string]string) *Error {
	return &Error{Kind: Validation, Message: msg, Fields: fields}
}

// KindOf classifies err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// StatusOf is KindOf(err).Status().
func StatusOf(err error) int { return KindOf(err).Status() }
