// Package validate implements the two-phase validator of §4.6: a local
// lookup against up to two authority indexes, falling back (when enabled)
// to a bounded-concurrency pool of HTTP HEAD requests against
// https://doi.org/<identifier>.
package validate

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cometadata/crossref-citation-extraction/internal/index"
	"github.com/cometadata/crossref-citation-extraction/internal/metrics"
	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

// Outcome is the terminal routing decision for one InvertedRecord.
type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeFailed
)

// Config controls Phase 2 (HTTP fallback) and the lookup order of Phase 1.
type Config struct {
	// Authorities is consulted in order; the first index containing the
	// cited identifier wins. Result.Source reports which one matched.
	Authorities []AuthoritySource

	// HTTPFallback enables Phase 2 for records that miss every authority.
	HTTPFallback bool
	Concurrency  int
	Timeout      time.Duration

	// resolve is swappable in tests; defaults to an http.Client HEAD
	// request against https://doi.org/<id>.
	resolve func(ctx context.Context, client *http.Client, id string) bool
}

// AuthoritySource pairs an index with the ValidationSource it represents.
type AuthoritySource struct {
	Index  *index.Index
	Source record.ValidationSource
}

// Result is the per-record validation decision.
type Result struct {
	Record  record.InvertedRecord
	Outcome Outcome
	Source  record.ValidationSource
}

func outcomeLabel(o Outcome) string {
	if o == OutcomeValid {
		return "valid"
	}
	return "failed"
}

func defaultResolve(ctx context.Context, client *http.Client, id string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://doi.org/"+id, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// lookup performs Phase 1 against cfg.Authorities in order.
func (cfg Config) lookup(id string) (record.ValidationSource, bool) {
	for _, a := range cfg.Authorities {
		if a.Index != nil && a.Index.Contains(id) {
			return a.Source, true
		}
	}
	return record.SourceNone, false
}

// Run consumes in, validating each record against cfg, and returns a
// channel of Results in arrival order for Phase-1 hits; Phase-2 (HTTP)
// completions arrive in response-arrival order, not request order, per
// §5's "no cross-request ordering guarantees".
func Run(ctx context.Context, in <-chan record.InvertedRecord, cfg Config) <-chan Result {
	out := make(chan Result, 64)

	resolve := cfg.resolve
	if resolve == nil {
		resolve = defaultResolve
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	go func() {
		defer close(out)

		client := &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}

		sem := make(chan struct{}, concurrency)
		var tasks sync.WaitGroup

		for rec := range in {
			id := rec.DOI

			if src, ok := cfg.lookup(id); ok {
				metrics.ValidationOutcomesTotal.WithLabelValues(outcomeLabel(OutcomeValid), src.String()).Inc()
				out <- Result{Record: rec, Outcome: OutcomeValid, Source: src}
				continue
			}

			if !cfg.HTTPFallback {
				metrics.ValidationOutcomesTotal.WithLabelValues(outcomeLabel(OutcomeFailed), record.SourceNone.String()).Inc()
				out <- Result{Record: rec, Outcome: OutcomeFailed, Source: record.SourceNone}
				continue
			}

			rec := rec
			tasks.Add(1)
			sem <- struct{}{}
			go func() {
				defer tasks.Done()
				defer func() { <-sem }()

				metrics.HTTPResolveConcurrency.Inc()
				defer metrics.HTTPResolveConcurrency.Dec()

				reqCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				start := time.Now()
				ok := resolve(reqCtx, client, id)
				metrics.HTTPResolveDuration.Observe(time.Since(start).Seconds())

				outcome := OutcomeFailed
				src := record.SourceNone
				if ok {
					outcome = OutcomeValid
					src = record.SourceNetwork
				}
				metrics.ValidationOutcomesTotal.WithLabelValues(outcomeLabel(outcome), src.String()).Inc()
				out <- Result{Record: rec, Outcome: outcome, Source: src}
			}()
		}
		tasks.Wait()
	}()

	return out
}
