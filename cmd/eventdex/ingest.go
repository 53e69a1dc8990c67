package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/internal/zeek"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type ingestMetrics struct {
	events        prometheus.Counter
	invalidLines  prometheus.Counter
	fragment      *eventdex.FragmentMetrics
	indexDuration prometheus.Histogram
}

func newIngestMetrics(reg prometheus.Registerer) (*ingestMetrics, error) {
	m := &ingestMetrics{
		events: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventdex_ingest_events_total",
				Help: "Number of events read from input files.",
			},
		),
		invalidLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventdex_ingest_invalid_lines_total",
				Help: "Number of input lines that could not be parsed.",
			},
		),
		indexDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eventdex_ingest_file_duration_seconds",
				Help:    "Histogram of the time spent ingesting one input file.",
				Buckets: prometheus.ExponentialBucketsRange(0.01, 600, 8),
			},
		),
	}

	valuesIndexed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventdex_fragment_values_indexed_total",
			Help: "Number of values appended to column indexes.",
		},
	)

	indexErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventdex_fragment_index_errors_total",
			Help: "Number of values that could not be indexed.",
		},
	)

	backfilled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventdex_fragment_backfilled_ids_total",
			Help: "Number of IDs backfilled as absent.",
		},
	)

	storeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventdex_fragment_store_duration_seconds",
			Help:    "Histogram of fragment store duration.",
			Buckets: prometheus.ExponentialBucketsRange(0.001, 60, 8),
		},
	)

	for _, c := range []prometheus.Collector{m.events, m.invalidLines, m.indexDuration, valuesIndexed, indexErrors, backfilled, storeDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	m.fragment = &eventdex.FragmentMetrics{
		ValuesIndexed: valuesIndexed,
		IndexErrors:   indexErrors,
		Backfilled:    backfilled,
		StoreDuration: storeDuration,
	}

	return m, nil
}

func ingestCmd(ctx context.Context, cfg *config, logger *zap.Logger, files []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()

	metrics, err := newIngestMetrics(reg)
	if err != nil {
		return err
	}

	if cfg.DebugListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			if err := http.ListenAndServe(cfg.DebugListen, mux); err != nil {
				logger.Error("Failed to listen and serve prometheus metrics", zap.Error(err))
			}
		}()
	}

	idx, err := eventdex.NewIndexer(cfg.Dir,
		eventdex.WithLogger(logger),
		eventdex.WithFragmentMetrics(metrics.fragment),
		eventdex.WithQueueSize(cfg.QueueSize),
	)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	idx.Start(ctx)

	in := &ingester{
		idx:        idx,
		logger:     logger,
		metrics:    metrics,
		nextID:     idx.NextID(),
		storeEvery: uint64(cfg.StoreEvery),
	}

	for _, filename := range files {
		if err = in.ingestFile(ctx, filename); err != nil {
			break
		}
	}

	// a signal stops ingestion; what was indexed so far is still stored.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("Ingestion interrupted", zap.Error(context.Cause(ctx)))
		err = nil
	}

	if closeErr := idx.Close(); closeErr != nil && !errors.Is(closeErr, context.Canceled) {
		err = errors.Join(err, fmt.Errorf("failed to close index: %w", closeErr))
	}

	logger.Info("Ingestion finished", zap.Uint64("next_id", in.nextID), zap.Error(err))

	return err
}

type ingester struct {
	idx        *eventdex.Indexer
	logger     *zap.Logger
	metrics    *ingestMetrics
	nextID     uint64
	storeEvery uint64
	sinceStore uint64
}

func (in *ingester) ingestFile(ctx context.Context, filename string) error {
	start := time.Now()

	f, err := zeek.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	r, err := zeek.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	logger := in.logger.With(zap.String("file", filename), zap.String("path", r.Path()))
	logger.Info("Ingesting file", zap.Uint64("first_id", in.nextID))

	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *zeek.ParseError
		if errors.As(err, &perr) {
			in.metrics.invalidLines.Inc()
			logger.Warn("Skipping invalid line", zap.Error(perr))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filename, err)
		}

		e.ID = in.nextID
		in.nextID++

		if err := in.idx.Add(ctx, e); err != nil {
			return err
		}

		in.metrics.events.Inc()

		in.sinceStore++
		if in.storeEvery > 0 && in.sinceStore >= in.storeEvery {
			if err := in.idx.Store(ctx); err != nil {
				return fmt.Errorf("failed to store index: %w", err)
			}
			in.sinceStore = 0
		}
	}

	in.metrics.indexDuration.Observe(time.Since(start).Seconds())
	logger.Info("Ingested file", zap.Uint64("next_id", in.nextID), zap.Duration("duration", time.Since(start)))

	return nil
}
