// internal/app/system/authz/errors.go
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authorization failure. Callers pattern-match on Kind
// (via KindOf or errors.Is) and must treat every non-nil error as "blocked".
type Kind int

const (
	KindNone Kind = iota
	KindPermissionDenied
	KindUnapprovedStatus
	KindNotFound
	KindInvalidRole
	KindInvalidCapability
	KindInvalidInput
	KindConflict
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindNone:              "none",
	KindPermissionDenied:  "permission_denied",
	KindUnapprovedStatus:  "unapproved_status",
	KindNotFound:          "not_found",
	KindInvalidRole:       "invalid_role",
	KindInvalidCapability: "invalid_capability",
	KindInvalidInput:      "invalid_input",
	KindConflict:          "conflict",
	KindUnavailable:       "unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HTTPStatus maps a kind to the status code the HTTP surface returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindPermissionDenied, KindUnapprovedStatus:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidRole, KindInvalidCapability, KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the tagged error returned by the Resolver and the Mutation API.
// Reason is shown to operators verbatim.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so the Err* sentinels below
// work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrUnapprovedStatus  = &Error{Kind: KindUnapprovedStatus}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidRole       = &Error{Kind: KindInvalidRole}
	ErrInvalidCapability = &Error{Kind: KindInvalidCapability}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

// NewError builds a tagged error.
func NewError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the Kind carried by err, KindNone for nil, and
// KindUnavailable for any untagged error (infrastructure faults are never
// reported as a deny).
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// ReasonOf returns the operator-facing reason for err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return KindOf(err).String()
}

// unavailable wraps an I/O failure. Deadline and cancellation errors keep
// their identity for errors.Is.
func unavailable(op string, err error) error {
	reason := op + " unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = op + " timed out"
	}
	return &Error{Kind: KindUnavailable, Reason: reason, Err: err}
}

// Unavailable is the exported form of unavailable for other packages that
// talk to the store or provider on the Resolver's behalf.
func Unavailable(op string, err error) error { return unavailable(op, err) }
