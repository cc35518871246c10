package badge

import "errors"

var (
	// ErrCatalogUnavailable indicates that the badge catalog could not be read.
	ErrCatalogUnavailable = errors.New("badge catalog unavailable")

	// ErrBadgeNotFound indicates that no badge has the requested id.
	ErrBadgeNotFound = errors.New("badge not found")

	// ErrInvalidBadge indicates that a badge definition failed validation.
	ErrInvalidBadge = errors.New("invalid badge")
)
