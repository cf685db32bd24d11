package store

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotFound           = errors.New("record not found")
	ErrTrialExhausted     = errors.New("free trial exhausted")
	ErrInvalidTransition  = errors.New("invalid status transition")
)
