package eventdex

type CounterMetric interface {
	Inc()
}

type AdderMetric interface {
	Add(float64)
}

type ObserverMetric interface {
	Observe(float64)
}

// FragmentMetrics contains the metrics updated by fragments. Any field
// may be left nil. The same object can be shared by several fragments as
// long as the metric implementations are safe for concurrent use, which
// is the case for prometheus metrics.
type FragmentMetrics struct {
	// ValuesIndexed counts values appended to a column index.
	ValuesIndexed CounterMetric

	// IndexErrors counts values that could not be indexed.
	IndexErrors CounterMetric

	// Backfilled counts IDs filled in as absent to close ID gaps.
	Backfilled AdderMetric

	// StoreDuration observes how long a fragment store took, in seconds.
	StoreDuration ObserverMetric
}

func (m *FragmentMetrics) valueIndexed() {
	if m.ValuesIndexed != nil {
		m.ValuesIndexed.Inc()
	}
}

func (m *FragmentMetrics) indexError() {
	if m.IndexErrors != nil {
		m.IndexErrors.Inc()
	}
}

func (m *FragmentMetrics) backfilled(n uint64) {
	if m.Backfilled != nil && n > 0 {
		m.Backfilled.Add(float64(n))
	}
}

func (m *FragmentMetrics) stored(seconds float64) {
	if m.StoreDuration != nil {
		m.StoreDuration.Observe(seconds)
	}
}
