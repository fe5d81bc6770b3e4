package auth

import "errors"

var (
	// ErrInvalidToken indicates the token could not be decoded
	ErrInvalidToken = errors.New("invalid token")

	// ErrBadSignature indicates the token signature did not verify
	ErrBadSignature = errors.New("bad token signature")
)
