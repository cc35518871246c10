package trigger

import (
	"sort"
	"strings"
	"time"

	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

// Error kinds attached to log entries and metrics.
const (
	KindCatalogUnavailable         = "CatalogUnavailable"
	KindAggregateComputationFailed = "AggregateComputationFailed"
	KindAssignmentFailed           = "AssignmentFailed"
	KindUnknownRuleType            = "UnknownRuleType"
	KindPanic                      = "Panic"
)

// Outcome describes how an evaluation cycle ended.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeCatalogUnavailable Outcome = "catalog_unavailable"
	OutcomeAbandoned          Outcome = "abandoned"
	OutcomePanicked           Outcome = "panicked"
)

// Failure is one contained failure within a cycle.
type Failure struct {
	BadgeID string `json:"badgeId,omitempty"`
	Kind    string `json:"kind"`
	Err     error  `json:"-"`
}

// Report summarizes one evaluation cycle.
type Report struct {
	UserID   string
	RecordID string
	Outcome  Outcome

	// Evaluated counts the badges whose rule-set was checked.
	Evaluated int

	// Granted lists badges newly added to the user's badge set, in catalog order.
	Granted []string

	// AlreadyHeld lists eligible badges the user owned before this cycle.
	AlreadyHeld []string

	// Skipped lists badges that could not be decided because a fact failed.
	Skipped []string

	// Unknown maps badge id to the rule kinds without a registered predicate.
	Unknown map[string][]rule.Kind

	Failures []Failure
	Duration time.Duration
}

// Abandoned reports whether the cycle ran out of time or panicked.
func (r Report) Abandoned() bool {
	return r.Outcome == OutcomeAbandoned || r.Outcome == OutcomePanicked
}

func (r *Report) fail(badgeID, kind string, err error) {
	r.Failures = append(r.Failures, Failure{BadgeID: badgeID, Kind: kind, Err: err})
}

// failureFields flattens failures and unknown rule types for the aggregated
// log entry.
func (r Report) failureFields() []map[string]string {
	out := make([]map[string]string, 0, len(r.Failures)+len(r.Unknown))
	for _, f := range r.Failures {
		entry := map[string]string{
			"user_id":    r.UserID,
			"error_kind": f.Kind,
		}
		if f.BadgeID != "" {
			entry["badge_id"] = f.BadgeID
		}
		if f.Err != nil {
			entry["error"] = f.Err.Error()
		}
		out = append(out, entry)
	}

	ids := make([]string, 0, len(r.Unknown))
	for id := range r.Unknown {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		kinds := make([]string, len(r.Unknown[id]))
		for i, k := range r.Unknown[id] {
			kinds[i] = string(k)
		}
		out = append(out, map[string]string{
			"user_id":    r.UserID,
			"badge_id":   id,
			"error_kind": KindUnknownRuleType,
			"rule_types": strings.Join(kinds, ","),
		})
	}
	return out
}
