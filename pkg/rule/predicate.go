package rule

// FactSet gives predicates read access to a user's aggregate facts.
type FactSet interface {
	// Get returns the value of a fact and whether it is present.
	Get(fact string) (float64, bool)

	// Err returns a non-nil error when the fact could not be computed.
	Err(fact string) error
}

// Facts is a plain FactSet where every fact is available.
type Facts map[string]float64

// Get returns the value of a fact.
func (f Facts) Get(fact string) (float64, bool) {
	v, ok := f[fact]
	return v, ok
}

// Err always returns nil.
func (f Facts) Err(string) error { return nil }

// Predicate decides whether a single rule holds for a set of facts.
// Predicates must be free of side effects.
type Predicate interface {
	// Kind returns the rule kind the predicate is registered under.
	Kind() Kind

	// Facts returns the names of the facts the predicate reads.
	Facts() []string

	// Holds reports whether the facts satisfy the threshold.
	Holds(facts FactSet, threshold float64) bool
}

// AtLeast returns a predicate satisfied when fact >= threshold.
// A missing fact counts as 0.
func AtLeast(kind Kind, fact string) Predicate {
	return atLeast{kind: kind, fact: fact}
}

type atLeast struct {
	kind Kind
	fact string
}

func (p atLeast) Kind() Kind       { return p.kind }
func (p atLeast) Facts() []string { return []string{p.fact} }

func (p atLeast) Holds(facts FactSet, threshold float64) bool {
	v, _ := facts.Get(p.fact)
	return v >= threshold
}
