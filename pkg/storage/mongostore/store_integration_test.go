//go:build integration

package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

// Run with: MONGO_URI=mongodb://localhost:27017 go test -tags=integration ./pkg/storage/mongostore/
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("badge_engine_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, dbName)
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(ctx))

	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestMongo_AssignIsAddIfAbsent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &user.User{ID: "u1", Name: "Ana"}))

	res, err := s.Assign(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.True(t, res.Granted)

	res, err = s.Assign(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.False(t, res.Granted)

	held, err := s.BadgesOf(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "b1", held[0].BadgeID)
	assert.False(t, held[0].GrantedAt.IsZero())
}

func TestMongo_AssignUnknownUser(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Assign(context.Background(), "ghost", "b1")
	assert.ErrorIs(t, err, assignment.ErrAssignmentFailed)
	assert.ErrorIs(t, err, assignment.ErrUserNotFound)
}

func TestMongo_AssignConcurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &user.User{ID: "u1", Name: "Ana"}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Assign(ctx, "u1", "b1")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if res.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
}

func TestMongo_BadgesAndHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []badge.Badge{
		{ID: "z-first", Name: "First", Active: true, Rules: rule.RuleSet{{Kind: "sessionCount", Threshold: 1}}},
		{ID: "a-second", Name: "Second", Active: false, Rules: rule.RuleSet{{Kind: "calories", Threshold: 5}, {Kind: "sessionCount", Threshold: 2}}},
	}))

	active, err := s.ListActiveBadges(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "z-first", active[0].ID)

	got, err := s.Get(ctx, "a-second")
	require.NoError(t, err)
	assert.Equal(t, []rule.Kind{"calories", "sessionCount"}, got.Rules.Kinds())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, badge.ErrBadgeNotFound)

	day1 := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	for i, cal := range []float64{100, 250, 50} {
		require.NoError(t, s.CreateRecord(ctx, &activity.Record{
			ID:          fmt.Sprintf("r%d", i+1),
			UserID:      "u1",
			ChallengeID: fmt.Sprintf("c%d", i%2),
			OccurredAt:  day1.Add(time.Duration(i) * 20 * time.Hour),
			Calories:    cal,
			CreatedAt:   time.Now().UTC(),
		}))
	}

	totals, err := s.PriorTotals(ctx, "u1", "r3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count)
	assert.Equal(t, float64(350), totals.Calories)
	assert.Equal(t, float64(250), totals.MaxCalories)

	challenges, err := s.PriorChallenges(ctx, "u1", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c0", "c1"}, challenges)

	days, err := s.PriorActiveDays(ctx, "u1", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2024-04-01", "2024-04-02"}, days)

	recs, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "r3", recs[0].ID)
}

func TestMongo_UpdateReturnsStoredBadge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := &badge.Badge{ID: "starter", Name: "Starter", Active: true, Rules: rule.RuleSet{{Kind: "sessionCount", Threshold: 1}}}
	require.NoError(t, s.Create(ctx, created))

	updated := &badge.Badge{ID: "starter", Name: "Renamed", Rules: rule.RuleSet{{Kind: "sessionCount", Threshold: 2}}}
	require.NoError(t, s.Update(ctx, updated))
	assert.WithinDuration(t, created.CreatedAt, updated.CreatedAt, time.Millisecond)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.Active)

	assert.ErrorIs(t, s.Update(ctx, &badge.Badge{ID: "missing", Name: "x"}), badge.ErrBadgeNotFound)
}
