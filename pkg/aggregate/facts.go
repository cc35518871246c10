package aggregate

import (
	"errors"
	"sort"
)

// Fact names produced by the built-in sources.
const (
	FactSessionCount       = "sessionCount"
	FactTotalCalories      = "totalCalories"
	FactMaxSessionCalories = "maxSessionCalories"
	FactDistinctChallenges = "distinctChallenges"
	FactActiveDays         = "activeDays"
)

// ErrAggregateComputationFailed marks facts whose source failed.
var ErrAggregateComputationFailed = errors.New("aggregate computation failed")

// Facts holds the aggregate values computed for one user in one evaluation
// cycle, together with the facts that could not be computed.
type Facts struct {
	values map[string]float64
	errs   map[string]error
}

func newFacts() *Facts {
	return &Facts{
		values: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

// Get returns the value of a fact. Failed facts are reported as absent.
func (f *Facts) Get(fact string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.values[fact]
	return v, ok
}

// Err returns the error recorded for a fact, or nil.
func (f *Facts) Err(fact string) error {
	if f == nil {
		return nil
	}
	return f.errs[fact]
}

// Values returns a copy of the computed values.
func (f *Facts) Values() map[string]float64 {
	out := make(map[string]float64, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Failed returns the names of facts that could not be computed, sorted.
func (f *Facts) Failed() []string {
	names := make([]string, 0, len(f.errs))
	for k := range f.errs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (f *Facts) set(fact string, v float64) {
	f.values[fact] = v
}

func (f *Facts) fail(fact string, err error) {
	delete(f.values, fact)
	f.errs[fact] = err
}
