package builtin

import (
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/sirupsen/logrus"
)

// Built-in rule kinds.
const (
	SessionCount       rule.Kind = "sessionCount"
	TotalCalories      rule.Kind = "totalCalories"
	Calories           rule.Kind = "calories"
	DistinctChallenges rule.Kind = "distinctChallenges"
	ActiveDays         rule.Kind = "activeDays"
	MaxSessionCalories rule.Kind = "maxSessionCalories"
)

// Predicates returns the built-in predicates.
// "calories" is kept as an alias of "totalCalories" for badges that were
// written against the cumulative calorie count under that name.
func Predicates() []rule.Predicate {
	return []rule.Predicate{
		rule.AtLeast(SessionCount, aggregate.FactSessionCount),
		rule.AtLeast(TotalCalories, aggregate.FactTotalCalories),
		rule.AtLeast(Calories, aggregate.FactTotalCalories),
		rule.AtLeast(DistinctChallenges, aggregate.FactDistinctChallenges),
		rule.AtLeast(ActiveDays, aggregate.FactActiveDays),
		rule.AtLeast(MaxSessionCalories, aggregate.FactMaxSessionCalories),
	}
}

// RegisterPredicates registers all built-in predicates with the registry.
func RegisterPredicates(registry *rule.Registry) error {
	for _, p := range Predicates() {
		if err := registry.Register(p); err != nil {
			return err
		}
		logrus.Debugf("registered rule type: %s", p.Kind())
	}
	return nil
}
