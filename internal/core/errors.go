package core

import "errors"

// Error kinds surfaced by the engine and its stores. Callers match them with errors.Is.
var (
	// ErrValidation marks malformed or missing fields in upstream inputs.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means the referenced insight does not exist.
	ErrNotFound = errors.New("insight not found")

	// ErrUnauthorized means the insight exists but belongs to another user.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient means a store was unavailable. Generation converts it into zero new insights.
	ErrTransient = errors.New("store unavailable")

	// ErrDuplicate is returned by stores that enforce insight uniqueness themselves.
	ErrDuplicate = errors.New("duplicate insight")
)
