package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

// Store keeps users, badges, activity records and badge sets in process memory.
type Store struct {
	mu sync.RWMutex

	users    map[string]user.User
	badges   map[string]badge.Badge
	order    []string
	records  map[string][]activity.Record
	holdings map[string]map[string]time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]user.User),
		badges:   make(map[string]badge.Badge),
		records:  make(map[string][]activity.Record),
		holdings: make(map[string]map[string]time.Time),
	}
}

// CreateUser stores u with an empty badge set.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("%w: %s", user.ErrUserExists, u.ID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = *u
	if _, ok := s.holdings[u.ID]; !ok {
		s.holdings[u.ID] = make(map[string]time.Time)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

// ListActiveBadges returns active badges in creation order.
func (s *Store) ListActiveBadges(ctx context.Context) ([]badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.Badge, 0, len(s.order))
	for _, id := range s.order {
		if b := s.badges[id]; b.Active {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

// List returns every badge in creation order.
func (s *Store) List(ctx context.Context) ([]badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.Badge, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.badges[id].Clone())
	}
	return out, nil
}

// Get returns a copy of the badge with the given id.
func (s *Store) Get(ctx context.Context, id string) (badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.badges[id]
	if !ok {
		return badge.Badge{}, badge.ErrBadgeNotFound
	}
	return b.Clone(), nil
}

// Create adds a badge and sets its timestamps.
func (s *Store) Create(ctx context.Context, b *badge.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.badges[b.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", badge.ErrInvalidBadge, b.ID)
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.badges[b.ID] = b.Clone()
	s.order = append(s.order, b.ID)
	return nil
}

// Update replaces a badge definition, keeping its creation time.
func (s *Store) Update(ctx context.Context, b *badge.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.badges[b.ID]
	if !ok {
		return badge.ErrBadgeNotFound
	}
	b.CreatedAt = old.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.badges[b.ID] = b.Clone()
	return nil
}

// Delete removes a badge from the catalog.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.badges[id]; !ok {
		return badge.ErrBadgeNotFound
	}
	delete(s.badges, id)
	for i, bid := range s.order {
		if bid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, badges []badge.Badge) error {
	for i := range badges {
		b := badges[i]
		if err := s.Update(ctx, &b); err == nil {
			continue
		}
		if err := s.Create(ctx, &b); err != nil {
			return err
		}
	}
	return nil
}

// CreateRecord stores an activity record.
func (s *Store) CreateRecord(ctx context.Context, rec *activity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.UserID] = append(s.records[rec.UserID], *rec)
	return nil
}

// ListByUser returns the user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]activity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]activity.Record, len(s.records[userID]))
	copy(recs, s.records[userID])
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].OccurredAt.After(recs[j].OccurredAt) })
	return recs, nil
}

func (s *Store) PriorTotals(ctx context.Context, userID, excludeID string) (aggregate.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t aggregate.Totals
	for _, r := range s.records[userID] {
		if r.ID == excludeID {
			continue
		}
		t.Count++
		t.Calories += r.Calories
		if r.Calories > t.MaxCalories {
			t.MaxCalories = r.Calories
		}
	}
	return t, nil
}

func (s *Store) PriorChallenges(ctx context.Context, userID, excludeID string) ([]string, error) {
	return s.distinct(userID, excludeID, func(r activity.Record) string { return r.ChallengeID }), nil
}

func (s *Store) PriorActiveDays(ctx context.Context, userID, excludeID string) ([]string, error) {
	return s.distinct(userID, excludeID, activity.Record.Day), nil
}

func (s *Store) distinct(userID, excludeID string, key func(activity.Record) string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, r := range s.records[userID] {
		if r.ID == excludeID {
			continue
		}
		k := key(r)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Assign adds badgeID to the user's badge set if absent.
func (s *Store) Assign(ctx context.Context, userID, badgeID string) (assignment.Result, error) {
	if err := ctx.Err(); err != nil {
		return assignment.Result{}, assignment.Fail(userID, badgeID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.holdings[userID]
	if !ok {
		set = make(map[string]time.Time)
		s.holdings[userID] = set
	}
	if _, held := set[badgeID]; held {
		return assignment.Result{Granted: false}, nil
	}
	set[badgeID] = time.Now().UTC()
	return assignment.Result{Granted: true}, nil
}

// BadgesOf returns the user's badges ordered by grant time.
func (s *Store) BadgesOf(ctx context.Context, userID string) ([]assignment.Held, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]assignment.Held, 0, len(s.holdings[userID]))
	for id, at := range s.holdings[userID] {
		out = append(out, assignment.Held{BadgeID: id, GrantedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].BadgeID < out[j].BadgeID
		}
		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
