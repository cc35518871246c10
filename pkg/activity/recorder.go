package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Recorder records workout sessions and announces them once they are committed.
type Recorder struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewRecorder creates a recorder. notifier may be nil, in which case no
// post-commit processing happens.
func NewRecorder(store Store, notifier Notifier) *Recorder {
	return &Recorder{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Record validates and persists a session, then notifies the commit listener.
// The notification never changes the outcome returned to the caller: by the time
// it runs the record is already durable.
func (r *Recorder) Record(ctx context.Context, rec Record) (Record, error) {
	if err := validate(rec); err != nil {
		return Record{}, err
	}

	now := r.now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now
	}
	rec.CreatedAt = now

	if err := r.store.CreateRecord(ctx, &rec); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":   rec.UserID,
			"record_id": rec.ID,
		}).Errorf("failed to persist session: %v", err)
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if r.notifier != nil && !r.notifier.Notify(rec) {
		logrus.WithFields(logrus.Fields{
			"user_id":   rec.UserID,
			"record_id": rec.ID,
		}).Warn("session committed but badge evaluation was not scheduled")
	}

	return rec, nil
}

// List returns the sessions of a user.
func (r *Recorder) List(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRecord)
	}

	records, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

func validate(rec Record) error {
	if rec.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRecord)
	}
	if rec.ChallengeID == "" {
		return fmt.Errorf("%w: challenge id is required", ErrInvalidRecord)
	}
	if rec.Calories < 0 {
		return fmt.Errorf("%w: calories must be non-negative", ErrInvalidRecord)
	}
	return nil
}
