package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUsernameExists     = errors.New("Username already exists")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrInvalidSession     = errors.New("Invalid session")
	ErrAccountNotFound    = errors.New("Account not found")
	ErrInvalidAmount      = errors.New("Invalid amount")
	ErrInvalidInput       = errors.New("Username and password are required")
	ErrInvalidBody        = errors.New("Invalid request body")

	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidID       = errors.New("invalid id")
	ErrNilUser         = errors.New("user is nil")
	ErrNilSession      = errors.New("session is nil")
	ErrInternal        = fmt.Errorf("Internal server error")
)

// Kind groups errors by how they surface to a client.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindAuthentication
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

var public = []struct {
	err  error
	kind Kind
}{
	{ErrUsernameExists, KindConflict},
	{ErrInvalidCredentials, KindAuthentication},
	{ErrInvalidSession, KindAuthentication},
	{ErrAccountNotFound, KindNotFound},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidInput, KindValidation},
	{ErrInvalidBody, KindValidation},
}

// KindOf classifies err, unwrapping as needed. Anything unknown is internal.
func KindOf(err error) Kind {
	for _, p := range public {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	return KindInternal
}

// PublicMessage returns the text that is safe to send back to a caller.
func PublicMessage(err error) string {
	for _, p := range public {
		if errors.Is(err, p.err) {
			return p.err.Error()
		}
	}
	return ErrInternal.Error()
}
