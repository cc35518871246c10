package aggregate

import (
	"context"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
)

// Totals are the scalar aggregates over a set of activity records.
type Totals struct {
	Count       int64
	Calories    float64
	MaxCalories float64
}

// History reads aggregates over a user's previously stored records.
// Every method ignores the record with id excludeID, so the caller can add
// the just-committed record itself whether or not the store already sees it.
type History interface {
	PriorTotals(ctx context.Context, userID, excludeID string) (Totals, error)
	PriorChallenges(ctx context.Context, userID, excludeID string) ([]string, error)
	PriorActiveDays(ctx context.Context, userID, excludeID string) ([]string, error)
}

// Source computes a group of facts for a user, including the new record.
type Source interface {
	// Facts returns the fact names this source produces.
	Facts() []string

	// Compute returns the values of all facts of the source.
	Compute(ctx context.Context, userID string, rec activity.Record) (map[string]float64, error)
}

// DefaultSources returns the built-in sources backed by history.
func DefaultSources(h History) []Source {
	return []Source{
		&TotalsSource{history: h},
		&ChallengeSource{history: h},
		&ActiveDaySource{history: h},
	}
}

// TotalsSource produces sessionCount, totalCalories and maxSessionCalories.
type TotalsSource struct {
	history History
}

func (s *TotalsSource) Facts() []string {
	return []string{FactSessionCount, FactTotalCalories, FactMaxSessionCalories}
}

func (s *TotalsSource) Compute(ctx context.Context, userID string, rec activity.Record) (map[string]float64, error) {
	prior, err := s.history.PriorTotals(ctx, userID, rec.ID)
	if err != nil {
		return nil, err
	}

	maxCal := prior.MaxCalories
	if rec.Calories > maxCal {
		maxCal = rec.Calories
	}

	return map[string]float64{
		FactSessionCount:       float64(prior.Count + 1),
		FactTotalCalories:      prior.Calories + rec.Calories,
		FactMaxSessionCalories: maxCal,
	}, nil
}

// ChallengeSource produces distinctChallenges.
type ChallengeSource struct {
	history History
}

func (s *ChallengeSource) Facts() []string {
	return []string{FactDistinctChallenges}
}

func (s *ChallengeSource) Compute(ctx context.Context, userID string, rec activity.Record) (map[string]float64, error) {
	prior, err := s.history.PriorChallenges(ctx, userID, rec.ID)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		FactDistinctChallenges: float64(countWith(prior, rec.ChallengeID)),
	}, nil
}

// ActiveDaySource produces activeDays, the number of distinct UTC days with a session.
type ActiveDaySource struct {
	history History
}

func (s *ActiveDaySource) Facts() []string {
	return []string{FactActiveDays}
}

func (s *ActiveDaySource) Compute(ctx context.Context, userID string, rec activity.Record) (map[string]float64, error) {
	prior, err := s.history.PriorActiveDays(ctx, userID, rec.ID)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		FactActiveDays: float64(countWith(prior, rec.Day())),
	}, nil
}

// countWith returns the number of distinct values in prior plus v.
func countWith(prior []string, v string) int {
	set := make(map[string]struct{}, len(prior)+1)
	for _, p := range prior {
		set[p] = struct{}{}
	}
	if v != "" {
		set[v] = struct{}{}
	}
	return len(set)
}
