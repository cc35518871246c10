package examples

import (
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

// AverageCaloriesKind is satisfied when the mean calories per session reaches the threshold.
const AverageCaloriesKind rule.Kind = "averageCalories"

// AverageCalories derives its value from two facts, showing that a predicate
// is not limited to a single fact lookup.
type AverageCalories struct{}

func (AverageCalories) Kind() rule.Kind { return AverageCaloriesKind }

func (AverageCalories) Facts() []string {
	return []string{aggregate.FactTotalCalories, aggregate.FactSessionCount}
}

func (AverageCalories) Holds(facts rule.FactSet, threshold float64) bool {
	count, _ := facts.Get(aggregate.FactSessionCount)
	if count <= 0 {
		return false
	}
	total, _ := facts.Get(aggregate.FactTotalCalories)
	return total/count >= threshold
}
