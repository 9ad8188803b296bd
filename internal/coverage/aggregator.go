package coverage

// Aggregator accumulates suite reports into a running total. It is owned by
// a single run and is not safe for concurrent use.
type Aggregator struct {
	coverage Report
}

// NewAggregator creates an empty Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{coverage: Report{}}
}

// AddCoverage merges one suite's report into the aggregate.
//
// A file seen for the first time is deep-copied verbatim. Afterwards counters
// are added: branch hits positionally per branch id, function and statement
// hits by id, a missing entry on either side counting as zero. The merge is
// commutative and associative, so completion order does not matter.
func (a *Aggregator) AddCoverage(report Report) {
	for key, file := range report {
		if file == nil {
			continue
		}
		master, ok := a.coverage[key]
		if !ok {
			a.coverage[key] = file.Clone()
			continue
		}
		master.merge(file)
	}
}

// HasCoverage reports whether any suite contributed coverage
func (a *Aggregator) HasCoverage() bool {
	return len(a.coverage) > 0
}

// Coverage returns the aggregate and resets the Aggregator for the next run
func (a *Aggregator) Coverage() Report {
	out := a.coverage
	a.coverage = Report{}
	return out
}
