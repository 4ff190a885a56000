package database

import "errors"

var (
	// ErrShortIDExists is returned when an attempt is made to create
	// a short link with a short id that already exists.
	ErrShortIDExists = errors.New("short id exists")
	// ErrLinkNotFound is returned when an attempt is made to resolve
	// a short id that doesn't exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrAccessNotFound is returned when no recent access matches a lookup.
	ErrAccessNotFound = errors.New("access not found")
	// ErrSummaryNotFound is returned when an image has no access summary yet.
	ErrSummaryNotFound = errors.New("access summary not found")
)
