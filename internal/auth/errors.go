package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrTokenMissing = errors.New("authorization token missing")
	ErrTokenInvalid = errors.New("invalid token")
	ErrKeyInvalid   = errors.New("invalid key")
	ErrNotEnabled   = errors.New("jwt authentication not configured")
)
