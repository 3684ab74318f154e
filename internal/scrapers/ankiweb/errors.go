package ankiweb

import (
	"errors"
	"fmt"
)

var ErrNotAuthenticated = errors.New("ankiweb: not logged in")

type AuthErrorKind int

const (
	// InvalidCredentials means AnkiWeb rejected the email/password pair.
	InvalidCredentials AuthErrorKind = iota
	// UnexpectedResponse means AnkiWeb answered with a status the client does not understand.
	UnexpectedResponse
	// TransportError means the request never got an answer (timeout, connection refused, ...).
	TransportError
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid credentials"
	case UnexpectedResponse:
		return "unexpected response"
	case TransportError:
		return "transport error"
	}
	return fmt.Sprintf("AuthErrorKind(%d)", int(k))
}

// AuthError is returned by Client.Login.
type AuthError struct {
	Kind AuthErrorKind
	// Status is the HTTP status for InvalidCredentials and UnexpectedResponse.
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("ankiweb: login failed: %s: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("ankiweb: login failed: %s (HTTP %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("ankiweb: login failed: %s", e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an *AuthError of the given kind.
func IsAuthError(err error, kind AuthErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// FetchError is returned by Client.FetchDeckTree when neither the deck-list API nor the
// HTML deck page produced any decks.
type FetchError struct {
	Status int
	Reason string
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ankiweb: fetch decks: %s (HTTP %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("ankiweb: fetch decks: %s", e.Reason)
}
