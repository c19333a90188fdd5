package challenge

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrFailed         = errors.New("challenge: user failed challenge")
	ErrMissingField   = errors.New("challenge: missing field")
	ErrInvalidFormat  = errors.New("challenge: field has invalid format")
	ErrBadSignature   = errors.New("challenge: signature does not verify under the gate key")
	ErrStale          = errors.New("challenge: challenge is older than the allowed age")
	ErrWrongChallenge = errors.New("challenge: response answers a different challenge")
)

// PublicFailure is the only explanation a client ever gets for a rejected
// solution, whatever the underlying cause.
const PublicFailure = "Invalid challenge solution"

// NewError wraps privateReason for logging while exposing only publicReason
// to the client.
func NewError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusForbidden,
	}
}

type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}
