package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/common"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

// KindTimeout marks a cycle that ran out of its time budget.
const KindTimeout = "EvaluationTimeout"

// Dependencies are the collaborators a Trigger works with.
type Dependencies struct {
	Catalog   badge.Catalog
	Accessor  *aggregate.Accessor
	Evaluator *rule.Evaluator
	Store     assignment.Store
}

// Options tune a Trigger.
type Options struct {
	// Timeout bounds one cycle. Zero means no bound beyond the caller's context.
	Timeout time.Duration

	// Metrics receives cycle observations. May be nil.
	Metrics *Metrics
}

// Trigger runs a badge evaluation cycle after an activity record is committed.
type Trigger struct {
	deps    Dependencies
	timeout time.Duration
	metrics *Metrics
}

// New creates a trigger.
func New(deps Dependencies, opts Options) *Trigger {
	return &Trigger{
		deps:    deps,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
	}
}

// Evaluation is the result of checking one badge for one user.
type Evaluation struct {
	Decision rule.Decision
	Granted  bool
}

// GrantIfEligible evaluates b against facts and, when eligible, adds it to the
// user's badge set. Granted is true only if this call added the badge.
//
// A decision blocked by a failed fact returns an error wrapping
// aggregate.ErrAggregateComputationFailed; a store failure returns an
// *assignment.Error.
func (t *Trigger) GrantIfEligible(ctx context.Context, userID string, b badge.Badge, facts rule.FactSet) (Evaluation, error) {
	ev := Evaluation{Decision: t.deps.Evaluator.Evaluate(b.Rules, facts)}
	if ev.Decision.Err != nil {
		return ev, ev.Decision.Err
	}
	if !ev.Decision.Eligible {
		return ev, nil
	}

	res, err := t.deps.Store.Assign(ctx, userID, b.ID)
	if err != nil {
		var aerr *assignment.Error
		if !errors.As(err, &aerr) {
			err = assignment.Fail(userID, b.ID, err)
		}
		return ev, err
	}

	ev.Granted = res.Granted
	return ev, nil
}

// OnActivityCommitted evaluates every active badge for the record's user and
// grants the ones the user now qualifies for. rec must already be persisted.
//
// It never returns an error: failures are contained to the badge they affect
// (or to the cycle when the catalog is unreachable), logged as one entry and
// returned in the Report.
func (t *Trigger) OnActivityCommitted(ctx context.Context, rec activity.Record) (report Report) {
	start := time.Now()
	report = Report{
		UserID:   rec.UserID,
		RecordID: rec.ID,
		Outcome:  OutcomeCompleted,
	}

	scope := common.ChildScopeFromRemoteScope(ctx, "trigger.OnActivityCommitted")
	defer scope.Finish()
	scope.TraceTag("user_id", rec.UserID)
	scope.TraceTag("record_id", rec.ID)

	ctx = scope.Ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			report.Outcome = OutcomePanicked
			report.fail("", KindPanic, fmt.Errorf("panic during evaluation: %v", p))
		}
		report.Duration = time.Since(start)
		t.metrics.observe(report)
		t.logReport(scope, report)
	}()

	badges, err := t.deps.Catalog.ListActiveBadges(ctx)
	if err != nil {
		if !errors.Is(err, badge.ErrCatalogUnavailable) {
			err = fmt.Errorf("%w: %v", badge.ErrCatalogUnavailable, err)
		}
		report.Outcome = OutcomeCatalogUnavailable
		report.fail("", KindCatalogUnavailable, err)
		scope.TraceError(err)
		return report
	}
	if len(badges) == 0 {
		return report
	}

	ruleSets := make([]rule.RuleSet, 0, len(badges))
	for _, b := range badges {
		ruleSets = append(ruleSets, b.Rules)
	}
	needed := t.deps.Evaluator.Registry().FactsFor(ruleSets...)
	if needed == nil {
		needed = []string{}
	}

	facts := t.deps.Accessor.ComputeAggregates(ctx, rec.UserID, rec, needed)
	scope.SetAttributes("facts_failed", facts.Failed())

	for _, b := range badges {
		if ctx.Err() != nil {
			t.abandon(&report, ctx.Err())
			break
		}

		ev, err := t.GrantIfEligible(ctx, rec.UserID, b, facts)
		report.Evaluated++

		if len(ev.Decision.Unknown) > 0 {
			if report.Unknown == nil {
				report.Unknown = make(map[string][]rule.Kind)
			}
			report.Unknown[b.ID] = ev.Decision.Unknown
		}

		switch {
		case err == nil:
		case errors.Is(err, aggregate.ErrAggregateComputationFailed):
			report.Skipped = append(report.Skipped, b.ID)
			report.fail(b.ID, KindAggregateComputationFailed, err)
			continue
		case ctx.Err() != nil:
			t.abandon(&report, ctx.Err())
		default:
			report.fail(b.ID, KindAssignmentFailed, err)
			continue
		}
		if report.Outcome == OutcomeAbandoned {
			break
		}

		switch {
		case ev.Granted:
			report.Granted = append(report.Granted, b.ID)
			scope.TraceEvent("granted " + b.ID)
		case ev.Decision.Eligible:
			report.AlreadyHeld = append(report.AlreadyHeld, b.ID)
		}
	}

	return report
}

func (t *Trigger) abandon(report *Report, cause error) {
	report.Outcome = OutcomeAbandoned
	report.fail("", KindTimeout, cause)
}

// logReport writes the single log entry for a cycle.
func (t *Trigger) logReport(scope *common.Scope, report Report) {
	entry := scope.Log.WithFields(logrus.Fields{
		"user_id":     report.UserID,
		"record_id":   report.RecordID,
		"outcome":     string(report.Outcome),
		"evaluated":   report.Evaluated,
		"granted":     report.Granted,
		"duration_ms": report.Duration.Milliseconds(),
	})
	if len(report.Unknown) > 0 {
		entry = entry.WithField("unknown_rules", report.Unknown)
	}

	if len(report.Failures) == 0 {
		if len(report.Unknown) > 0 {
			entry.WithField("error_kind", KindUnknownRuleType).Warn("badge evaluation completed with unknown rule types")
			return
		}
		entry.Info("badge evaluation completed")
		return
	}

	entry = entry.WithField("failures", report.failureFields())
	switch report.Outcome {
	case OutcomeCatalogUnavailable, OutcomePanicked:
		entry.WithField("error_kind", report.Failures[0].Kind).Error("badge evaluation skipped")
	case OutcomeAbandoned:
		entry.Warn("badge evaluation abandoned")
	default:
		entry.Warn("badge evaluation completed with failures")
	}
}
