package activity

import (
	"context"
	"time"
)

// Record is a single logged workout session.
// Records are created once by the Recorder and never modified afterwards.
type Record struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"userId"`
	ChallengeID string                 `json:"challengeId"`
	OccurredAt  time.Time              `json:"occurredAt"`
	Calories    float64                `json:"calories"`
	Stats       map[string]interface{} `json:"stats,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Day returns the UTC calendar day the session happened on (YYYY-MM-DD).
func (r Record) Day() string {
	return r.OccurredAt.UTC().Format(DayLayout)
}

// DayLayout is the layout used to bucket sessions by calendar day.
const DayLayout = "2006-01-02"

// Store persists activity records.
type Store interface {
	// CreateRecord durably persists the record. The record ID is set by the caller.
	CreateRecord(ctx context.Context, rec *Record) error

	// ListByUser returns all records of a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}

// Notifier is told about records strictly after they have been persisted.
type Notifier interface {
	// Notify hands the record over for post-commit processing.
	// It must not block and returns false if the record was not accepted.
	Notify(rec Record) bool
}
