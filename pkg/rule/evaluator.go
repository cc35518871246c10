package rule

import (
	"fmt"
	"strings"
)

// UnknownRulePolicy decides how rules with an unregistered kind are treated.
type UnknownRulePolicy int

const (
	// IgnoreUnknown treats unknown rules as satisfied; they never block eligibility.
	IgnoreUnknown UnknownRulePolicy = iota

	// DenyUnknown treats unknown rules as failing.
	DenyUnknown
)

// ParsePolicy maps "ignore" or "deny" to a policy.
func ParsePolicy(s string) (UnknownRulePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return IgnoreUnknown, nil
	case "deny":
		return DenyUnknown, nil
	default:
		return IgnoreUnknown, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

func (p UnknownRulePolicy) String() string {
	if p == DenyUnknown {
		return "deny"
	}
	return "ignore"
}

// Decision is the outcome of evaluating one rule-set.
type Decision struct {
	Eligible bool

	// Unknown lists the rule kinds without a registered predicate.
	Unknown []Kind

	// Err is set when a recognized rule reads a fact that could not be
	// computed. Eligible is false in that case and the badge must be skipped.
	Err error
}

// Evaluator checks rule-sets against facts using the predicates of a Registry.
type Evaluator struct {
	registry *Registry
	policy   UnknownRulePolicy
}

// NewEvaluator creates an evaluator over the given registry.
func NewEvaluator(registry *Registry, policy UnknownRulePolicy) *Evaluator {
	return &Evaluator{
		registry: registry,
		policy:   policy,
	}
}

// IsEligible reports whether every rule of rs holds for facts.
// Rules are checked in declared order and evaluation stops at the first
// failing rule.
func (e *Evaluator) IsEligible(rs RuleSet, facts FactSet) bool {
	for _, rl := range rs {
		p, ok := e.registry.Lookup(rl.Kind)
		if !ok {
			if e.policy == DenyUnknown {
				return false
			}
			continue
		}
		if !p.Holds(facts, rl.Threshold) {
			return false
		}
	}
	return true
}

// Evaluate is IsEligible plus diagnostics: it reports unknown kinds and
// refuses to decide when a recognized rule depends on a failed fact.
func (e *Evaluator) Evaluate(rs RuleSet, facts FactSet) Decision {
	var d Decision

	for _, rl := range rs {
		p, ok := e.registry.Lookup(rl.Kind)
		if !ok {
			d.Unknown = append(d.Unknown, rl.Kind)
			continue
		}
		for _, f := range p.Facts() {
			if err := facts.Err(f); err != nil {
				d.Err = fmt.Errorf("rule %s needs fact %s: %w", rl.Kind, f, err)
				return d
			}
		}
	}

	d.Eligible = e.IsEligible(rs, facts)
	return d
}

// Registry returns the predicate registry used by this evaluator.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Policy returns the unknown-rule policy.
func (e *Evaluator) Policy() UnknownRulePolicy {
	return e.policy
}
