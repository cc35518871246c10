package assignment

import (
	"context"
	"time"
)

// Result is the outcome of an Assign call.
type Result struct {
	// Granted is true when this call added the badge; false when the user
	// already held it.
	Granted bool
}

// Store records badge ownership.
//
// Assign must be an atomic add-if-absent: under concurrent calls for the same
// (user, badge) pair at most one returns Granted, and the badge ends up held
// exactly once.
type Store interface {
	Assign(ctx context.Context, userID, badgeID string) (Result, error)
}

// Held is one badge owned by a user.
type Held struct {
	BadgeID   string    `json:"badgeId"`
	GrantedAt time.Time `json:"grantedAt"`
}

// Reader lists the badges a user holds.
type Reader interface {
	BadgesOf(ctx context.Context, userID string) ([]Held, error)
}
