package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
)

// fakeHistory is a hand-written History backed by a slice of records.
type fakeHistory struct {
	records []activity.Record
	failOn  string
	calls   map[string]int
}

func newFakeHistory(records ...activity.Record) *fakeHistory {
	return &fakeHistory{records: records, calls: make(map[string]int)}
}

func (h *fakeHistory) PriorTotals(ctx context.Context, userID, excludeID string) (Totals, error) {
	h.calls["totals"]++
	if h.failOn == "totals" {
		return Totals{}, errors.New("totals unavailable")
	}
	var t Totals
	for _, r := range h.records {
		if r.UserID != userID || r.ID == excludeID {
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

func (h *fakeHistory) PriorChallenges(ctx context.Context, userID, excludeID string) ([]string, error) {
	h.calls["challenges"]++
	if h.failOn == "challenges" {
		return nil, errors.New("challenges unavailable")
	}
	var out []string
	for _, r := range h.records {
		if r.UserID == userID && r.ID != excludeID {
			out = append(out, r.ChallengeID)
		}
	}
	return out, nil
}

func (h *fakeHistory) PriorActiveDays(ctx context.Context, userID, excludeID string) ([]string, error) {
	h.calls["days"]++
	var out []string
	for _, r := range h.records {
		if r.UserID == userID && r.ID != excludeID {
			out = append(out, r.Day())
		}
	}
	return out, nil
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 12, 0, 0, 0, time.UTC)
}

func TestComputeAggregates_IncludesNewRecord(t *testing.T) {
	prior := []activity.Record{
		{ID: "r1", UserID: "u1", ChallengeID: "c1", Calories: 100, OccurredAt: day(1)},
		{ID: "r2", UserID: "u1", ChallengeID: "c2", Calories: 50, OccurredAt: day(1)},
		{ID: "x", UserID: "other", ChallengeID: "c9", Calories: 999, OccurredAt: day(3)},
	}
	newRec := activity.Record{ID: "r3", UserID: "u1", ChallengeID: "c1", Calories: 300, OccurredAt: day(2)}

	tests := []struct {
		name    string
		history *fakeHistory
	}{
		{name: "store does not see the new record yet", history: newFakeHistory(prior...)},
		{name: "store already sees the new record", history: newFakeHistory(append(prior, newRec)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccessor(DefaultSources(tt.history)...)
			facts := acc.ComputeAggregates(context.Background(), "u1", newRec, nil)

			want := map[string]float64{
				FactSessionCount:       3,
				FactTotalCalories:      450,
				FactMaxSessionCalories: 300,
				FactDistinctChallenges: 2,
				FactActiveDays:         2,
			}
			for name, v := range want {
				got, ok := facts.Get(name)
				if !ok {
					t.Errorf("Expected fact %s to be present", name)
					continue
				}
				if got != v {
					t.Errorf("Expected %s=%v, got %v", name, v, got)
				}
			}
		})
	}
}

func TestComputeAggregates_FirstSession(t *testing.T) {
	acc := NewAccessor(DefaultSources(newFakeHistory())...)
	rec := activity.Record{ID: "r1", UserID: "u1", ChallengeID: "c1", Calories: 0, OccurredAt: day(1)}

	facts := acc.ComputeAggregates(context.Background(), "u1", rec, nil)
	if v, _ := facts.Get(FactSessionCount); v != 1 {
		t.Errorf("Expected sessionCount 1, got %v", v)
	}
	if v, _ := facts.Get(FactTotalCalories); v != 0 {
		t.Errorf("Expected totalCalories 0, got %v", v)
	}
}

func TestComputeAggregates_Lazy(t *testing.T) {
	h := newFakeHistory()
	acc := NewAccessor(DefaultSources(h)...)
	rec := activity.Record{ID: "r1", UserID: "u1", ChallengeID: "c1", OccurredAt: day(1)}

	facts := acc.ComputeAggregates(context.Background(), "u1", rec, []string{FactSessionCount})

	if h.calls["totals"] != 1 {
		t.Errorf("Expected totals to be read once, got %d", h.calls["totals"])
	}
	if h.calls["challenges"] != 0 || h.calls["days"] != 0 {
		t.Errorf("Expected unneeded sources to be skipped, got %v", h.calls)
	}
	if _, ok := facts.Get(FactActiveDays); ok {
		t.Error("Expected activeDays not to be computed")
	}

	acc.ComputeAggregates(context.Background(), "u1", rec, []string{})
	if h.calls["totals"] != 1 {
		t.Error("Expected no source to run for an empty fact list")
	}
}

func TestComputeAggregates_SourceFailureIsScoped(t *testing.T) {
	h := newFakeHistory(activity.Record{ID: "r1", UserID: "u1", ChallengeID: "c1", Calories: 10, OccurredAt: day(1)})
	h.failOn = "challenges"
	acc := NewAccessor(DefaultSources(h)...)
	rec := activity.Record{ID: "r2", UserID: "u1", ChallengeID: "c2", Calories: 20, OccurredAt: day(2)}

	facts := acc.ComputeAggregates(context.Background(), "u1", rec, nil)

	if err := facts.Err(FactDistinctChallenges); !errors.Is(err, ErrAggregateComputationFailed) {
		t.Errorf("Expected distinctChallenges to fail with ErrAggregateComputationFailed, got %v", err)
	}
	if _, ok := facts.Get(FactDistinctChallenges); ok {
		t.Error("Expected failed fact to be absent")
	}
	if v, _ := facts.Get(FactSessionCount); v != 2 {
		t.Errorf("Expected sessionCount 2, got %v", v)
	}
	if failed := facts.Failed(); len(failed) != 1 || failed[0] != FactDistinctChallenges {
		t.Errorf("Expected [distinctChallenges] failed, got %v", failed)
	}
}

type constSource struct {
	name  string
	value float64
}

func (s constSource) Facts() []string { return []string{s.name} }

func (s constSource) Compute(ctx context.Context, userID string, rec activity.Record) (map[string]float64, error) {
	return map[string]float64{s.name: s.value}, nil
}

func TestAccessor_Register(t *testing.T) {
	acc := NewAccessor(constSource{name: "streak", value: 4})
	acc.Register(constSource{name: "streak", value: 99})
	acc.Register(constSource{name: "pushups", value: 20})

	facts := acc.ComputeAggregates(context.Background(), "u1", activity.Record{}, []string{"streak", "pushups"})
	if v, _ := facts.Get("streak"); v != 4 {
		t.Errorf("Expected the first source to own streak, got %v", v)
	}
	if v, _ := facts.Get("pushups"); v != 20 {
		t.Errorf("Expected pushups 20, got %v", v)
	}
	if known := acc.Known(); len(known) != 2 {
		t.Errorf("Expected 2 known facts, got %v", known)
	}
}
