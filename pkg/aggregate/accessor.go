package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/sirupsen/logrus"
)

// Accessor computes the facts rules need for one user.
// New facts are added by registering another Source; callers that don't
// ask for them are unaffected.
type Accessor struct {
	sources []Source
	mu      sync.RWMutex
}

// NewAccessor creates an accessor over the given sources.
func NewAccessor(sources ...Source) *Accessor {
	return &Accessor{sources: sources}
}

// Register adds a source. Facts it shares with an earlier source are taken
// from the earlier one.
func (a *Accessor) Register(src Source) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sources = append(a.sources, src)
}

// Known returns every fact name some source produces.
func (a *Accessor) Known() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var names []string
	seen := make(map[string]bool)
	for _, src := range a.sources {
		for _, f := range src.Facts() {
			if !seen[f] {
				seen[f] = true
				names = append(names, f)
			}
		}
	}
	return names
}

// ComputeAggregates returns the facts for userID including rec, which must be
// the record that was just committed. Only sources producing a fact in
// needed are consulted; a nil needed consults all of them.
//
// A failing source does not fail the call: its facts are marked with an
// error wrapping ErrAggregateComputationFailed and the other facts stay usable.
func (a *Accessor) ComputeAggregates(ctx context.Context, userID string, rec activity.Record, needed []string) *Facts {
	facts := newFacts()

	a.mu.RLock()
	sources := make([]Source, len(a.sources))
	copy(sources, a.sources)
	a.mu.RUnlock()

	want := make(map[string]bool, len(needed))
	for _, n := range needed {
		want[n] = true
	}

	claimed := make(map[string]bool)
	for _, src := range sources {
		var owned []string
		for _, f := range src.Facts() {
			if claimed[f] {
				continue
			}
			if needed != nil && !want[f] {
				continue
			}
			owned = append(owned, f)
		}
		if len(owned) == 0 {
			continue
		}
		for _, f := range owned {
			claimed[f] = true
		}

		values, err := src.Compute(ctx, userID, rec)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrAggregateComputationFailed, err)
			for _, f := range owned {
				facts.fail(f, wrapped)
			}
			logrus.WithFields(logrus.Fields{
				"user_id":    userID,
				"record_id":  rec.ID,
				"facts":      owned,
				"error_kind": "AggregateComputationFailed",
			}).Warnf("aggregate source failed: %v", err)
			continue
		}

		for _, f := range owned {
			facts.set(f, values[f])
		}
	}

	for _, n := range needed {
		if !claimed[n] {
			logrus.Debugf("no source produces fact %s, treating it as 0", n)
		}
	}

	return facts
}
