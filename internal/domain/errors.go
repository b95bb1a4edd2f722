package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned by account stores when no record matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account whose uid or nickname is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrQuizNotFound indicates the stored quiz could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrRoomExists is returned when a room id is already registered.
	ErrRoomExists = errors.New("room already exists")
	// ErrUnsupportedField is returned for account lookups on fields that are not indexed.
	ErrUnsupportedField = errors.New("unsupported lookup field")
)

// Kind classifies errors by how far they propagate.
type Kind uint8

const (
	// KindValidation marks malformed client input; only the offending connection is terminated.
	KindValidation Kind = iota + 1
	// KindNotFound marks a missing account, quiz or room.
	KindNotFound
	// KindConnection marks an unreachable or failing external collaborator.
	KindConnection
	// KindInternal marks unexpected store failures.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConnection:
		return "connection"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a client-facing message alongside the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and message so wrapped copies compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

var (
	ErrInvalidInput = &Error{Kind: KindValidation, Message: "Invalid input"}
	ErrConnection   = &Error{Kind: KindConnection, Message: "Connection error"}
	ErrRoomNotFound = &Error{Kind: KindNotFound, Message: "No room found"}
	ErrUserNotFound = &Error{Kind: KindNotFound, Message: "User cannot be found"}
)

// InvalidInput wraps a validation failure.
func InvalidInput(err error) error {
	return &Error{Kind: KindValidation, Message: ErrInvalidInput.Message, Err: err}
}

// ConnectionFailure wraps a failure talking to an external collaborator.
func ConnectionFailure(err error) error {
	return &Error{Kind: KindConnection, Message: ErrConnection.Message, Err: err}
}

// QuizNotFound reports a quiz id missing from its owner's stored quizzes.
func QuizNotFound(quizID string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Cannot find quiz with id %s", quizID), Err: ErrQuizNotFound}
}

// ClientMessage returns the fixed message a client may see for err.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrConnection.Message
}
