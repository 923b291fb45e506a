// Command citeindex runs the citation extraction and inversion pipeline
// end to end: it streams a gzipped archive of citing works, extracts and
// normalises cited identifiers, inverts the result into per-cited-work
// records, validates each against one or two identifier authorities (and
// optionally the network), and writes JSON-lines output.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/cometadata/crossref-citation-extraction/internal/pipeline"
	"github.com/cometadata/crossref-citation-extraction/internal/tuning"
)

func main() {
	var (
		archivePath  = flag.String("archive", "", "path to the gzipped tar archive of citing works (required)")
		mode         = flag.String("mode", "all", "source mode: all|crossref|datacite|arxiv")
		authBRecords = flag.String("authority-b-records", "", "path to a gzipped JSON-lines authority-B records stream")
		authBIndex   = flag.String("authority-b-index", "", "path to a prebuilt authority-B index file")
		outPath      = flag.String("out", "", "output path for JSON-lines records (required)")
		split        = flag.Bool("split", false, "also write <out>_asserted and <out>_mined")
		tmpDir       = flag.String("tmp-dir", "", "temporary/partition directory root (default: a fresh os.MkdirTemp)")
		retain       = flag.Bool("retain-intermediates", false, "keep partition and checkpoint files after the run")
		resume       = flag.Bool("resume", false, "alias for --retain-intermediates; partitions already in a checkpoint under --tmp-dir are skipped")
		batchRows    = flag.Int("partition-batch-rows", 0, "rows buffered per partition shard before flush (default: memory-scaled)")
		httpConc     = flag.Int("http-concurrency", 0, "maximum simultaneous HTTP HEAD requests (default: CPU-scaled)")
		httpTimeout  = flag.Duration("http-timeout", 10*time.Second, "per-request HTTP timeout")
		httpFallback = flag.Bool("http-fallback", false, "fall back to network resolution for records no authority matched")
		metricsAddr  = flag.String("metrics-addr", "", "address to serve Prometheus /metrics on, e.g. :9090 (disabled if empty)")
		noColor      = flag.Bool("no-color", false, "disable colored console output")
		maxProcs     = flag.Int("max-procs", 0, "GOMAXPROCS override (default: all CPUs)")
		gcPercent    = flag.Int("gc-percent", 0, "GOGC override (default: runtime default)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `citeindex — citation extraction and inversion pipeline

Usage:
  citeindex --archive IN.tar.gz --out OUT.jsonl [options]

Options:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	color.NoColor = *noColor

	tuning.Configure(*maxProcs, *gcPercent)

	cfg := pipeline.Config{
		Mode:                  pipeline.SourceMode(*mode),
		ArchivePath:           *archivePath,
		AuthorityBRecordsPath: *authBRecords,
		AuthorityBIndexPath:   *authBIndex,
		OutputPath:            *outPath,
		Split:                 *split,
		TmpDir:                *tmpDir,
		RetainIntermediate:    *retain || *resume,
		PartitionBatchRows:    *batchRows,
		HTTPConcurrency:       *httpConc,
		HTTPTimeout:           *httpTimeout,
		HTTPFallback:          *httpFallback,
		MetricsAddr:           *metricsAddr,
	}

	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(cfg)
	p.NoColor = *noColor

	if _, err := p.Run(ctx); err != nil {
		fail(err)
	}
}

// fail prints err in red and exits with the code carried by a
// *pipeline.Error, or pipeline.ExitInternal if err isn't one.
func fail(err error) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "citeindex: %v\n", err)

	code := pipeline.ExitInternal
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		code = pe.Code
	}
	os.Exit(code)
}
