package model

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownRoom      = errors.New("unknown room")
	ErrUnknownUser      = errors.New("unknown user")
	ErrElementLocked    = errors.New("element locked by another user")
)
