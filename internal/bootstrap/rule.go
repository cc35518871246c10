// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/internal/config"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	ruleBuiltin "github.com/AccelByte/extend-badge-engine/pkg/rule/builtin"
	ruleExamples "github.com/AccelByte/extend-badge-engine/pkg/rule/examples"
)

// InitRuleEngine builds the rule type registry and the evaluator.
//
// ============================================================
// DEVELOPER: Register custom rule types here.
// ============================================================
// A rule type is a Predicate: it names the aggregate facts it
// reads and decides whether a threshold holds.
//
// Steps to add a new rule type:
// 1. Implement rule.Predicate (see pkg/rule/examples)
// 2. Register it below or in pkg/rule/builtin/init.go
// 3. Badges may then use the type in their "rules" object
// ============================================================
func InitRuleEngine(cfg *config.Config) (*rule.Evaluator, *rule.Registry, error) {
	policy, err := rule.ParsePolicy(cfg.UnknownRulePolicy)
	if err != nil {
		return nil, nil, err
	}

	registry := rule.NewRegistry()
	if err := ruleBuiltin.RegisterPredicates(registry); err != nil {
		return nil, nil, fmt.Errorf("failed to register builtin rule types: %w", err)
	}

	if cfg.ExampleRules {
		if err := ruleExamples.RegisterPredicates(registry); err != nil {
			return nil, nil, fmt.Errorf("failed to register example rule types: %w", err)
		}
	}

	logrus.Infof("registered %d rule types (unknown rule policy: %s)", registry.Count(), policy)

	return rule.NewEvaluator(registry, policy), registry, nil
}
