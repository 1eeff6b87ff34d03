package challenge

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means the challenge identifier was never issued or has
	// been evicted.
	ErrNotFound = errors.New("challenge: unknown challenge id")

	// ErrAlreadyUsed means the challenge was consumed by an earlier
	// successful verification.
	ErrAlreadyUsed = errors.New("challenge: challenge id already solved/used")

	// ErrExpired means the challenge is older than its TTL.
	ErrExpired = errors.New("challenge: challenge expired")
)

func NewError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusBadRequest,
	}
}

// Error separates what the client is told (PublicReason, StatusCode) from
// what gets logged (PrivateReason). Internal diagnostics must never cross
// the response boundary.
type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("challenge: error when processing challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}
