package lobby

import (
	"errors"
	"fmt"
)

// Kind classifies a caller-input or contention failure. None of them is a server fault.
type Kind int

const (
	InvalidJoinCode Kind = iota + 1
	NameTaken
	ResourceExhausted
	NotAuthorized
	NotFound
	InvalidName
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case InvalidJoinCode:
		return "invalid_join_code"
	case NameTaken:
		return "name_taken"
	case ResourceExhausted:
		return "resource_exhausted"
	case NotAuthorized:
		return "not_authorized"
	case NotFound:
		return "not_found"
	case InvalidName:
		return "invalid_name"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a domain failure carrying its kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first *Error in err's chain.
//
// Postcondition: Returns (kind, true) for domain errors, or (0, false) otherwise.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func errInvalidJoinCode() error {
	return &Error{Kind: InvalidJoinCode, Message: "Invalid join code"}
}

func errInvalidName(msg string) error {
	return &Error{Kind: InvalidName, Message: msg}
}

func errNameTaken() error {
	return &Error{Kind: NameTaken, Message: "Name already taken in this game"}
}

func errResourceExhausted() error {
	return &Error{Kind: ResourceExhausted, Message: "No continents available for this game"}
}

func errNotAuthorized(msg string) error {
	return &Error{Kind: NotAuthorized, Message: msg}
}

func errNotFound(msg string) error {
	return &Error{Kind: NotFound, Message: msg}
}
