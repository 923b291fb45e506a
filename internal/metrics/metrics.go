// Package metrics exposes pipeline counters and gauges over a
// Prometheus-compatible /metrics endpoint (§6.9), following the same
// package-level-vars-plus-init-registration shape the pack's ingestion
// tooling uses for its own chain-indexing metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citeindex_rows_extracted_total",
		Help: "Total ExtractionRows written to partition shards.",
	})

	SelfCitationsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citeindex_self_citations_dropped_total",
		Help: "Total findings dropped because citing_id equalled cited_id.",
	})

	MalformedEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citeindex_malformed_entries_total",
		Help: "Total tar entries or records skipped as malformed.",
	})

	PartitionsInvertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citeindex_partitions_inverted_total",
		Help: "Total partition shards processed by the inverter.",
	})

	InvertedRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citeindex_inverted_records_total",
		Help: "Total InvertedRecords emitted by the inverter.",
	})

	ValidationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "citeindex_validation_outcomes_total",
		Help: "Validation outcomes by result and source.",
	}, []string{"outcome", "source"})

	HTTPResolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "citeindex_http_resolve_seconds",
		Help:    "Latency of HTTP HEAD resolution requests against doi.org.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	HTTPResolveConcurrency = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "citeindex_http_resolve_in_flight",
		Help: "Current number of in-flight HTTP resolution requests.",
	})
)

func init() {
	prometheus.MustRegister(
		RowsExtractedTotal,
		SelfCitationsDroppedTotal,
		MalformedEntriesTotal,
		PartitionsInvertedTotal,
		InvertedRecordsTotal,
		ValidationOutcomesTotal,
		HTTPResolveDuration,
		HTTPResolveConcurrency,
	)
}

// Serve starts the /metrics HTTP endpoint on addr and blocks until ctx is
// cancelled, at which point the server shuts down gracefully.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("metrics: serve %s: %w", addr, err)
			return
		}
		errc <- nil
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return <-errc
	case err := <-errc:
		return err
	}
}
