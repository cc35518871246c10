package examples

import (
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

// RegisterPredicates registers the example predicates.
func RegisterPredicates(registry *rule.Registry) error {
	return registry.Register(AverageCalories{})
}
