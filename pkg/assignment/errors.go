package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrAssignmentFailed indicates that a badge could not be recorded.
	ErrAssignmentFailed = errors.New("assignment failed")

	// ErrUserNotFound indicates that the user has no ownership record to add to.
	ErrUserNotFound = errors.New("user not found")
)

// Error describes a failed assignment.
type Error struct {
	UserID  string
	BadgeID string
	Err     error
}

// Fail wraps err as an assignment error for (userID, badgeID).
func Fail(userID, badgeID string, err error) *Error {
	return &Error{UserID: userID, BadgeID: badgeID, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("assign badge %s to user %s: %v", e.BadgeID, e.UserID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrAssignmentFailed.
func (e *Error) Is(target error) bool {
	return target == ErrAssignmentFailed
}
