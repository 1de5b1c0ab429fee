// Package focuserr implements the error taxonomy of spec.md §7: a single
// Error type whose Kind names one row of the table, each Kind mapping to an
// XMPP stanza-error condition so that focusiq, jingle, and jibri handlers can turn a Go error
// straight into a stanza error IQ.
package focuserr

import (
	"errors"
	"fmt"

	"github.com/jiconf/focus/stanza"
)

// Kind identifies one row of the error taxonomy.
type Kind int

// Taxonomy rows, in the order spec.md §7 lists them.
const (
	MalformedRequest Kind = iota
	NotAuthorized
	Forbidden
	SessionInvalid
	FeatureNotImplemented
	ItemNotFound
	UnexpectedRequest
	ResourceConstraint
	ServiceUnavailable
	InternalServerError
)

func (k Kind) String() string {
	switch k {
	case MalformedRequest:
		return "malformed-request"
	case NotAuthorized:
		return "not-authorized"
	case Forbidden:
		return "forbidden"
	case SessionInvalid:
		return "session-invalid"
	case FeatureNotImplemented:
		return "feature-not-implemented"
	case ItemNotFound:
		return "item-not-found"
	case UnexpectedRequest:
		return "unexpected-request"
	case ResourceConstraint:
		return "resource-constraint"
	case ServiceUnavailable:
		return "service-unavailable"
	case InternalServerError:
		return "internal-server-error"
	default:
		return "unknown"
	}
}

// Condition returns the stanza-error condition this Kind maps to.
func (k Kind) Condition() stanza.Condition {
	switch k {
	case MalformedRequest:
		return stanza.BadRequest
	case NotAuthorized:
		return stanza.NotAuthorized
	case Forbidden:
		return stanza.Forbidden
	case SessionInvalid:
		return stanza.NotAcceptable
	case FeatureNotImplemented:
		return stanza.FeatureNotImplemented
	case ItemNotFound:
		return stanza.ItemNotFound
	case UnexpectedRequest:
		return stanza.UnexpectedRequest
	case ResourceConstraint:
		return stanza.ResourceConstraint
	case ServiceUnavailable:
		return stanza.ServiceUnavailable
	default:
		return stanza.InternalServerError
	}
}

// ErrorType returns the stanza-error type (cancel/modify/...) conventionally
// paired with this Kind.
func (k Kind) ErrorType() stanza.ErrorType {
	switch k {
	case MalformedRequest, FeatureNotImplemented, ItemNotFound:
		return stanza.Modify
	case NotAuthorized, Forbidden, SessionInvalid, UnexpectedRequest, ServiceUnavailable, InternalServerError:
		return stanza.Cancel
	case ResourceConstraint:
		return stanza.Wait
	default:
		return stanza.Cancel
	}
}

// Error is a taxonomy-tagged error carrying a free-text clause, as described
// by spec.md §7's "Kind / When" columns.
type Error struct {
	Kind Kind
	Text string
	// AppCondition, if set, is an application-specific error element placed
	// alongside the stanza condition (e.g. session-invalid).
	AppCondition string
	err          error
}

// New constructs an Error of the given kind with a free-text clause.
func New(kind Kind, text string) *Error {
	return &Error{Kind: kind, Text: text}
}

// Wrap constructs an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, text string, cause error) *Error {
	return &Error{Kind: kind, Text: text, err: cause}
}

func (e *Error) Error() string {
	if e.Text == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error with the same Kind, so callers can
// match with errors.Is(err, focuserr.New(focuserr.ItemNotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// ToIQError converts err into a stanza.Error suitable for an error IQ
// response. Errors that are not *Error are mapped to InternalServerError.
func ToIQError(err error) stanza.Error {
	var fe *Error
	if !errors.As(err, &fe) {
		return stanza.Error{Type: stanza.Cancel, Condition: stanza.InternalServerError, Text: err.Error()}
	}
	se := stanza.Error{Type: fe.Kind.ErrorType(), Condition: fe.Kind.Condition(), Text: fe.Text}
	if fe.AppCondition != "" {
		se.AppCondition = fe.AppCondition
		se.AppNamespace = "http://jitsi.org/protocol/focus"
	}
	return se
}
