package rule

import "errors"

var (
	// ErrUnknownRuleType marks a rule whose kind has no registered predicate.
	// It is a warning: under the default policy such rules are vacuously satisfied.
	ErrUnknownRuleType = errors.New("unknown rule type")

	// ErrInvalidPolicy indicates an unrecognized unknown-rule policy name.
	ErrInvalidPolicy = errors.New("invalid unknown rule policy")
)
