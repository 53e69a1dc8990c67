package eventdex

import "go.uber.org/zap"

type options struct {
	logger    *zap.Logger
	metrics   *FragmentMetrics
	queueSize int
}

// Option configures fragments and indexers.
type Option func(o *options)

func newOptions(opts []Option) *options {
	o := &options{
		logger:    zap.NewNop(),
		metrics:   &FragmentMetrics{},
		queueSize: 64,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFragmentMetrics sets the metrics updated while indexing and storing.
func WithFragmentMetrics(metrics *FragmentMetrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithQueueSize sets how many events an Indexer buffers per fragment.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.queueSize = n
		}
	}
}
