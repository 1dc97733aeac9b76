package store

import "errors"

var (
	// ErrUsernameTaken is returned by CreateAccount when the username
	// already exists.
	ErrUsernameTaken = errors.New("store: username taken")
	// ErrAccountNotFound is returned when an account lookup misses.
	ErrAccountNotFound = errors.New("store: account not found")
	// ErrSessionNotFound is returned when a session lookup misses.
	ErrSessionNotFound = errors.New("store: session not found")
)
