// Package apperr defines the error kinds shared by the real-time and HTTP paths.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindPermission
	KindNotFound
	KindValidation
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication error"
	case KindPermission:
		return "permission denied"
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation error"
	case KindStorage:
		return "storage error"
	default:
		return "internal error"
	}
}

// Error is an application error carrying a kind and a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so the sentinels
// below match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrPermission     = &Error{Kind: KindPermission}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrStorage        = &Error{Kind: KindStorage}
)

func Authentication(msg string) error { return &Error{Kind: KindAuthentication, Message: msg} }

func Permission(msg string) error { return &Error{Kind: KindPermission, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// Storage wraps a durable-store failure. Errors that already carry a kind
// (e.g. NotFound from a lookup) are returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// PublicMessage returns the message that is safe to show to a client.
// Storage and unknown errors never leak driver details.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return KindUnknown.String()
	}
	switch ae.Kind {
	case KindStorage, KindUnknown:
		return ae.Kind.String()
	}
	if ae.Message != "" {
		return ae.Message
	}
	return ae.Kind.String()
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
