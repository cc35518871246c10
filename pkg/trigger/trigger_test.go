package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/AccelByte/extend-badge-engine/pkg/rule/builtin"
	"github.com/AccelByte/extend-badge-engine/pkg/storage/memstore"
)

type engineOpts struct {
	catalog badge.Catalog
	history aggregate.History
	store   assignment.Store
	policy  rule.UnknownRulePolicy
	timeout time.Duration
}

func newTrigger(t *testing.T, mem *memstore.Store, o engineOpts) *Trigger {
	t.Helper()

	registry := rule.NewRegistry()
	if err := builtin.RegisterPredicates(registry); err != nil {
		t.Fatalf("Failed to register predicates: %v", err)
	}

	deps := Dependencies{
		Catalog:   mem,
		Accessor:  aggregate.NewAccessor(aggregate.DefaultSources(mem)...),
		Evaluator: rule.NewEvaluator(registry, o.policy),
		Store:     mem,
	}
	if o.catalog != nil {
		deps.Catalog = o.catalog
	}
	if o.history != nil {
		deps.Accessor = aggregate.NewAccessor(aggregate.DefaultSources(o.history)...)
	}
	if o.store != nil {
		deps.Store = o.store
	}

	return New(deps, Options{Timeout: o.timeout, Metrics: NewMetrics()})
}

func addBadge(t *testing.T, mem *memstore.Store, id string, rules rule.RuleSet) {
	t.Helper()
	b := badge.Badge{ID: id, Name: id, Active: true, Rules: rules}
	if err := mem.Create(context.Background(), &b); err != nil {
		t.Fatalf("Failed to create badge %s: %v", id, err)
	}
}

var recordSeq int

func persist(t *testing.T, mem *memstore.Store, userID string, calories float64) activity.Record {
	t.Helper()
	recordSeq++
	rec := activity.Record{
		ID:          fmt.Sprintf("rec-%d", recordSeq),
		UserID:      userID,
		ChallengeID: "challenge-1",
		OccurredAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Calories:    calories,
	}
	if err := mem.CreateRecord(context.Background(), &rec); err != nil {
		t.Fatalf("Failed to persist record: %v", err)
	}
	return rec
}

func heldIDs(t *testing.T, mem *memstore.Store, userID string) map[string]bool {
	t.Helper()
	held, err := mem.BadgesOf(context.Background(), userID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := make(map[string]bool, len(held))
	for _, h := range held {
		out[h.BadgeID] = true
	}
	return out
}

func TestOnActivityCommitted_GrantsOnThirdSession(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "B1", rule.RuleSet{{Kind: "sessionCount", Threshold: 3}})
	tr := newTrigger(t, mem, engineOpts{})
	ctx := context.Background()

	persist(t, mem, "user-1", 10)
	persist(t, mem, "user-1", 10)
	third := persist(t, mem, "user-1", 10)

	report := tr.OnActivityCommitted(ctx, third)
	if len(report.Granted) != 1 || report.Granted[0] != "B1" {
		t.Fatalf("Expected B1 to be granted, got %v", report.Granted)
	}
	if !heldIDs(t, mem, "user-1")["B1"] {
		t.Error("Expected badge set to contain B1")
	}

	again := tr.OnActivityCommitted(ctx, third)
	if len(again.Granted) != 0 {
		t.Errorf("Expected no new grants on re-evaluation, got %v", again.Granted)
	}
	if len(again.AlreadyHeld) != 1 || again.AlreadyHeld[0] != "B1" {
		t.Errorf("Expected B1 to be reported as already held, got %v", again.AlreadyHeld)
	}
}

func TestOnActivityCommitted_CaloriesBelowThreshold(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "B2", rule.RuleSet{{Kind: "calories", Threshold: 500}})
	tr := newTrigger(t, mem, engineOpts{})

	persist(t, mem, "user-1", 150)
	rec := persist(t, mem, "user-1", 300)

	report := tr.OnActivityCommitted(context.Background(), rec)
	if len(report.Granted) != 0 {
		t.Errorf("Expected no grant at 450 calories, got %v", report.Granted)
	}
	if report.Evaluated != 1 {
		t.Errorf("Expected 1 evaluated badge, got %d", report.Evaluated)
	}
}

func TestOnActivityCommitted_UnknownRuleType(t *testing.T) {
	tests := []struct {
		name        string
		policy      rule.UnknownRulePolicy
		wantGranted bool
	}{
		{name: "ignore grants immediately", policy: rule.IgnoreUnknown, wantGranted: true},
		{name: "deny never grants", policy: rule.DenyUnknown, wantGranted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memstore.New()
			addBadge(t, mem, "B3", rule.RuleSet{{Kind: "unknownMetric", Threshold: 10}})
			tr := newTrigger(t, mem, engineOpts{policy: tt.policy})

			rec := persist(t, mem, "user-1", 0)
			report := tr.OnActivityCommitted(context.Background(), rec)

			if got := len(report.Granted) == 1; got != tt.wantGranted {
				t.Errorf("Expected granted=%v, got %v", tt.wantGranted, report.Granted)
			}
			if kinds := report.Unknown["B3"]; len(kinds) != 1 || kinds[0] != "unknownMetric" {
				t.Errorf("Expected unknownMetric to be reported, got %v", report.Unknown)
			}
			if len(report.Failures) != 0 {
				t.Errorf("Unknown rule types must not be failures, got %v", report.Failures)
			}
		})
	}
}

func TestOnActivityCommitted_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name     string
		sessions int
		want     bool
	}{
		{name: "four sessions", sessions: 4, want: false},
		{name: "five sessions", sessions: 5, want: true},
		{name: "six sessions", sessions: 6, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memstore.New()
			addBadge(t, mem, "five", rule.RuleSet{{Kind: "sessionCount", Threshold: 5}})
			tr := newTrigger(t, mem, engineOpts{})

			var last activity.Record
			for i := 0; i < tt.sessions; i++ {
				last = persist(t, mem, "user-1", 1)
			}

			tr.OnActivityCommitted(context.Background(), last)
			if got := heldIDs(t, mem, "user-1")["five"]; got != tt.want {
				t.Errorf("Expected held=%v at %d sessions, got %v", tt.want, tt.sessions, got)
			}
		})
	}
}

func TestOnActivityCommitted_ShortCircuit(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "hard", rule.RuleSet{
		{Kind: "sessionCount", Threshold: 100},
		{Kind: "calories", Threshold: 1},
	})
	tr := newTrigger(t, mem, engineOpts{})

	rec := persist(t, mem, "user-1", 10000)
	report := tr.OnActivityCommitted(context.Background(), rec)

	if len(report.Granted) != 0 {
		t.Errorf("Expected no grant, got %v", report.Granted)
	}
}

func TestOnActivityCommitted_Idempotent(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "first", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "burn", rule.RuleSet{{Kind: "totalCalories", Threshold: 100}})
	tr := newTrigger(t, mem, engineOpts{})

	rec := persist(t, mem, "user-1", 150)
	tr.OnActivityCommitted(context.Background(), rec)
	once := heldIDs(t, mem, "user-1")

	tr.OnActivityCommitted(context.Background(), rec)
	twice := heldIDs(t, mem, "user-1")

	if len(once) != 2 || len(twice) != len(once) {
		t.Fatalf("Expected the same two badges, got %v then %v", once, twice)
	}
	for id := range once {
		if !twice[id] {
			t.Errorf("Badge %s missing after second invocation", id)
		}
	}
}

func TestOnActivityCommitted_Monotonic(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "s1", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "s3", rule.RuleSet{{Kind: "sessionCount", Threshold: 3}})
	addBadge(t, mem, "big", rule.RuleSet{{Kind: "maxSessionCalories", Threshold: 500}})
	tr := newTrigger(t, mem, engineOpts{})

	calories := []float64{600, 0, 10, 0, 20}
	prev := map[string]bool{}
	for i, c := range calories {
		rec := persist(t, mem, "user-1", c)
		tr.OnActivityCommitted(context.Background(), rec)

		held := heldIDs(t, mem, "user-1")
		for id := range prev {
			if !held[id] {
				t.Fatalf("Badge %s disappeared after commit %d", id, i)
			}
		}
		prev = held
	}

	if len(prev) != 3 {
		t.Errorf("Expected 3 badges at the end, got %v", prev)
	}
}

func TestOnActivityCommitted_ConcurrentCommitsGrantOnce(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "first", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	tr := newTrigger(t, mem, engineOpts{})

	const n = 50
	records := make([]activity.Record, n)
	for i := range records {
		records[i] = persist(t, mem, "user-1", 5)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		grants int
	)
	for _, rec := range records {
		wg.Add(1)
		go func(rec activity.Record) {
			defer wg.Done()
			report := tr.OnActivityCommitted(context.Background(), rec)
			mu.Lock()
			grants += len(report.Granted)
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	if grants != 1 {
		t.Errorf("Expected exactly 1 granted report, got %d", grants)
	}
	held, _ := mem.BadgesOf(context.Background(), "user-1")
	if len(held) != 1 {
		t.Errorf("Expected badge set of size 1, got %d", len(held))
	}
}

type failingCatalog struct{}

func (failingCatalog) ListActiveBadges(ctx context.Context) ([]badge.Badge, error) {
	return nil, errors.New("connection refused")
}

func TestOnActivityCommitted_CatalogUnavailable(t *testing.T) {
	mem := memstore.New()
	tr := newTrigger(t, mem, engineOpts{catalog: failingCatalog{}})

	rec := persist(t, mem, "user-1", 10)
	report := tr.OnActivityCommitted(context.Background(), rec)

	if report.Outcome != OutcomeCatalogUnavailable {
		t.Fatalf("Expected outcome %s, got %s", OutcomeCatalogUnavailable, report.Outcome)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindCatalogUnavailable {
		t.Fatalf("Expected one CatalogUnavailable failure, got %v", report.Failures)
	}
	if !errors.Is(report.Failures[0].Err, badge.ErrCatalogUnavailable) {
		t.Errorf("Expected error to wrap ErrCatalogUnavailable, got %v", report.Failures[0].Err)
	}
}

type failingChallenges struct {
	*memstore.Store
}

func (failingChallenges) PriorChallenges(ctx context.Context, userID, excludeID string) ([]string, error) {
	return nil, errors.New("query timeout")
}

func TestOnActivityCommitted_AggregateFailureSkipsDependentBadges(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "starter", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "explorer", rule.RuleSet{{Kind: "distinctChallenges", Threshold: 1}})
	tr := newTrigger(t, mem, engineOpts{history: failingChallenges{mem}})

	rec := persist(t, mem, "user-1", 10)
	report := tr.OnActivityCommitted(context.Background(), rec)

	if len(report.Granted) != 1 || report.Granted[0] != "starter" {
		t.Errorf("Expected starter to be granted, got %v", report.Granted)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "explorer" {
		t.Errorf("Expected explorer to be skipped, got %v", report.Skipped)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindAggregateComputationFailed {
		t.Fatalf("Expected one aggregate failure, got %v", report.Failures)
	}
	if !errors.Is(report.Failures[0].Err, aggregate.ErrAggregateComputationFailed) {
		t.Errorf("Expected error to wrap ErrAggregateComputationFailed, got %v", report.Failures[0].Err)
	}
	if report.Outcome != OutcomeCompleted {
		t.Errorf("Expected outcome completed, got %s", report.Outcome)
	}
}

type flakyStore struct {
	*memstore.Store
	failOn string
}

func (s flakyStore) Assign(ctx context.Context, userID, badgeID string) (assignment.Result, error) {
	if badgeID == s.failOn {
		return assignment.Result{}, errors.New("write conflict")
	}
	return s.Store.Assign(ctx, userID, badgeID)
}

func TestOnActivityCommitted_AssignmentFailureScopedToBadge(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "a", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "b", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "c", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	tr := newTrigger(t, mem, engineOpts{store: flakyStore{Store: mem, failOn: "b"}})

	rec := persist(t, mem, "user-1", 10)
	report := tr.OnActivityCommitted(context.Background(), rec)

	if len(report.Granted) != 2 || report.Granted[0] != "a" || report.Granted[1] != "c" {
		t.Errorf("Expected a and c to be granted, got %v", report.Granted)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(report.Failures))
	}

	f := report.Failures[0]
	if f.BadgeID != "b" || f.Kind != KindAssignmentFailed {
		t.Errorf("Expected AssignmentFailed for b, got %+v", f)
	}

	var aerr *assignment.Error
	if !errors.As(f.Err, &aerr) {
		t.Fatalf("Expected *assignment.Error, got %T", f.Err)
	}
	if aerr.UserID != "user-1" || aerr.BadgeID != "b" {
		t.Errorf("Unexpected pair in error: %s/%s", aerr.UserID, aerr.BadgeID)
	}
	if !errors.Is(f.Err, assignment.ErrAssignmentFailed) {
		t.Error("Expected error to match ErrAssignmentFailed")
	}
}

func TestFailureFields_KeepsUnknownRuleTypesAlongsideFailures(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "a", rule.RuleSet{{Kind: "unknownMetric", Threshold: 1}})
	addBadge(t, mem, "b", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	tr := newTrigger(t, mem, engineOpts{store: flakyStore{Store: mem, failOn: "b"}})

	rec := persist(t, mem, "user-1", 10)
	report := tr.OnActivityCommitted(context.Background(), rec)

	kinds := make(map[string]string)
	for _, entry := range report.failureFields() {
		kinds[entry["badge_id"]] = entry["error_kind"]
		if entry["error_kind"] == KindUnknownRuleType && entry["rule_types"] != "unknownMetric" {
			t.Errorf("Expected rule_types unknownMetric, got %q", entry["rule_types"])
		}
	}
	if kinds["a"] != KindUnknownRuleType {
		t.Errorf("Expected UnknownRuleType for a, got %v", kinds)
	}
	if kinds["b"] != KindAssignmentFailed {
		t.Errorf("Expected AssignmentFailed for b, got %v", kinds)
	}
}

type blockingStore struct {
	*memstore.Store
	blockOn string
}

func (s blockingStore) Assign(ctx context.Context, userID, badgeID string) (assignment.Result, error) {
	if badgeID == s.blockOn {
		<-ctx.Done()
		return assignment.Result{}, ctx.Err()
	}
	return s.Store.Assign(ctx, userID, badgeID)
}

func TestOnActivityCommitted_TimeoutAbandonsCycle(t *testing.T) {
	mem := memstore.New()
	addBadge(t, mem, "fast", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "slow", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	addBadge(t, mem, "never", rule.RuleSet{{Kind: "sessionCount", Threshold: 1}})
	tr := newTrigger(t, mem, engineOpts{
		store:   blockingStore{Store: mem, blockOn: "slow"},
		timeout: 20 * time.Millisecond,
	})

	rec := persist(t, mem, "user-1", 10)
	report := tr.OnActivityCommitted(context.Background(), rec)

	if report.Outcome != OutcomeAbandoned || !report.Abandoned() {
		t.Fatalf("Expected abandoned cycle, got %s", report.Outcome)
	}
	held := heldIDs(t, mem, "user-1")
	if !held["fast"] {
		t.Error("Grant completed before the timeout must stay")
	}
	if held["never"] {
		t.Error("Badges after the timeout must not be granted")
	}
}

type panickingCatalog struct{}

func (panickingCatalog) ListActiveBadges(ctx context.Context) ([]badge.Badge, error) {
	panic("boom")
}

func TestOnActivityCommitted_RecoversPanic(t *testing.T) {
	mem := memstore.New()
	tr := newTrigger(t, mem, engineOpts{catalog: panickingCatalog{}})

	rec := persist(t, mem, "user-1", 10)
	report := tr.OnActivityCommitted(context.Background(), rec)

	if report.Outcome != OutcomePanicked {
		t.Errorf("Expected outcome %s, got %s", OutcomePanicked, report.Outcome)
	}
}

func TestGrantIfEligible(t *testing.T) {
	mem := memstore.New()
	tr := newTrigger(t, mem, engineOpts{})
	b := badge.Badge{ID: "b", Rules: rule.RuleSet{{Kind: "sessionCount", Threshold: 2}}}

	ev, err := tr.GrantIfEligible(context.Background(), "user-1", b, rule.Facts{"sessionCount": 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ev.Decision.Eligible || ev.Granted {
		t.Errorf("Expected not eligible, got %+v", ev)
	}

	ev, err = tr.GrantIfEligible(context.Background(), "user-1", b, rule.Facts{"sessionCount": 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ev.Granted {
		t.Error("Expected first eligible call to grant")
	}

	ev, err = tr.GrantIfEligible(context.Background(), "user-1", b, rule.Facts{"sessionCount": 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ev.Granted || !ev.Decision.Eligible {
		t.Errorf("Expected eligible no-op, got %+v", ev)
	}
}
