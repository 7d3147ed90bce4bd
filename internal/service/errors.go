package service

import "errors"

var (
	ErrUnauthenticated   = errors.New("session is missing or expired")
	ErrForbidden         = errors.New("action not allowed for this user")
	ErrInvalidTransition = errors.New("action not allowed in the current booking status")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("too many requests")
)
