package service

import "errors"

var (
	// ErrInvalidURL is returned when a URL does not use the secure scheme.
	ErrInvalidURL = errors.New("invalid url")
	// ErrIDGenerationExhausted is returned when every generated short id collided with an existing one.
	ErrIDGenerationExhausted = errors.New("short id generation exhausted")
	// ErrEmptyFile is returned when an upload carries no bytes.
	ErrEmptyFile = errors.New("empty file")
)
