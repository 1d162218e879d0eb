package session

import (
	"errors"
	"fmt"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
)

// Kind tells the presentation layer how to route a failure.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from a Manager.
	KindUnknown Kind = iota
	// NotAuthenticated means no identity or no credential; nothing was sent.
	NotAuthenticated
	// NotEntitled means the gate refused the action. Route to an upgrade path.
	NotEntitled
	// VerificationFailed means the verification call was rejected. It is
	// retried on the next identity-change event.
	VerificationFailed
	// RemoteUnavailable covers network failures, timeouts and non-2xx answers.
	RemoteUnavailable
	// MalformedResponse means a structural payload lacked expected fields.
	MalformedResponse
	// Busy means another action is in flight; the call was ignored.
	Busy
)

func (k Kind) String() string {
	switch k {
	case NotAuthenticated:
		return "not_authenticated"
	case NotEntitled:
		return "not_entitled"
	case VerificationFailed:
		return "verification_failed"
	case RemoteUnavailable:
		return "remote_unavailable"
	case MalformedResponse:
		return "malformed_response"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Sentinels, one per Kind, for errors.Is.
var (
	ErrNotAuthenticated   = errors.New("authentication required")
	ErrNotEntitled        = errors.New("subscription or trial required")
	ErrVerificationFailed = errors.New("identity verification failed")
	ErrRemoteUnavailable  = errors.New("remote service unavailable")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrBusy               = errors.New("another action is in progress")
)

var sentinels = map[Kind]error{
	NotAuthenticated:   ErrNotAuthenticated,
	NotEntitled:        ErrNotEntitled,
	VerificationFailed: ErrVerificationFailed,
	RemoteUnavailable:  ErrRemoteUnavailable,
	MalformedResponse:  ErrMalformedResponse,
	Busy:               ErrBusy,
}

// Error is the failure outcome of a Manager operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, sentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, sentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && target == s
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// remoteError maps a client failure onto a Kind. Structural decoding
// problems surface as RemoteUnavailable.
func remoteError(op string, err error) *Error {
	if errors.Is(err, client.ErrNotAuthenticated) {
		return newError(NotAuthenticated, op, err)
	}
	return newError(RemoteUnavailable, op, err)
}
