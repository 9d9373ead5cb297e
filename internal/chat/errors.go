package chat

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-chatsync/internal/database"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a failed command. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors not produced by the engine are internal.
func KindOf(err error) Kind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindInternal
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func unauthenticated(msg string) *Error { return newError(KindUnauthenticated, msg) }
func forbidden(msg string) *Error       { return newError(KindForbidden, msg) }
func notFound(msg string) *Error        { return newError(KindNotFound, msg) }
func conflict(msg string) *Error        { return newError(KindConflict, msg) }
func validation(msg string) *Error      { return newError(KindValidation, msg) }

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// storeError maps store sentinels onto the taxonomy, using msg for
// missing records.
func storeError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var chatErr *Error
	if errors.As(err, &chatErr) {
		return err
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: msg, Err: err}
	case errors.Is(err, database.ErrConflict):
		return &Error{Kind: KindConflict, Message: msg, Err: err}
	default:
		return internal(err)
	}
}

var (
	errNoIdentity      = unauthenticated("authentication required")
	errRoomNotFound    = notFound("room not found")
	errMessageNotFound = notFound("message not found")
	errUserNotFound    = notFound("user not found")
	errNotMember       = forbidden("not a member of this room")
	errNotYourMessage  = forbidden("not your message")
	errAlreadyMember   = conflict("already a member")
	errSupportClaimed  = conflict("support room already has an agent")
)
