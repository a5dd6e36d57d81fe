package auth

import "errors"

var (
	// ErrInvalidToken is returned when the provided bearer token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingDID is returned when a validated token carries no agent DID
	ErrMissingDID = errors.New("token is missing the did claim")
)
