package activity

import "errors"

var (
	// ErrInvalidRecord indicates that a record failed validation before being persisted.
	ErrInvalidRecord = errors.New("invalid activity record")

	// ErrStoreUnavailable indicates that the record could not be persisted.
	ErrStoreUnavailable = errors.New("activity store unavailable")
)
