// Package pipeline implements the orchestrator of §4.7: it validates
// source-mode preconditions, owns the temporary directory and the
// single partition writer and checkpoint handles, and sequences index
// load/build, extraction, inversion, validation, and output writing.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/cometadata/crossref-citation-extraction/internal/extract"
	"github.com/cometadata/crossref-citation-extraction/internal/ident"
	"github.com/cometadata/crossref-citation-extraction/internal/index"
	"github.com/cometadata/crossref-citation-extraction/internal/invert"
	"github.com/cometadata/crossref-citation-extraction/internal/metrics"
	"github.com/cometadata/crossref-citation-extraction/internal/partition"
	"github.com/cometadata/crossref-citation-extraction/internal/record"
	"github.com/cometadata/crossref-citation-extraction/internal/tuning"
	"github.com/cometadata/crossref-citation-extraction/internal/validate"
)

// Stats summarises one pipeline run for the end-of-run report.
type Stats struct {
	Extract         extract.Stats
	PartitionsRead  int
	RecordsInverted int
	RecordsValid    int
	RecordsFailed   int
	Elapsed         time.Duration
}

// Pipeline runs one end-to-end extraction, inversion, and validation pass
// per a Config.
type Pipeline struct {
	cfg Config

	// NoColor disables the stage-banner and summary coloring below, which
	// otherwise follows the teacher corpus's own utils.go-style console
	// reporting.
	NoColor bool
}

// New returns a Pipeline for cfg, which must already have passed
// cfg.Validate.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

var stageColor = color.New(color.FgCyan, color.Bold)
var statsColor = color.New(color.FgGreen, color.Bold)

func (p *Pipeline) stage(name string) {
	color.NoColor = p.NoColor
	stageColor.Fprintf(os.Stderr, "==> %s\n", name)
}

// Run executes the full pipeline. Any returned error is a *Error
// carrying the exit code its caller (cmd/citeindex) should use.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	if err := p.cfg.Validate(); err != nil {
		return stats, err
	}

	if p.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, p.cfg.MetricsAddr); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	tmpDir := p.cfg.TmpDir
	ownsTmpDir := false
	if tmpDir == "" {
		var err error
		tmpDir, err = os.MkdirTemp("", "citeindex-*")
		if err != nil {
			return stats, internalErr(fmt.Errorf("pipeline: create temp dir: %w", err))
		}
		ownsTmpDir = true
	} else if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return stats, internalErr(fmt.Errorf("pipeline: create temp dir %s: %w", tmpDir, err))
	}
	defer func() {
		if ownsTmpDir && !p.cfg.RetainIntermediate {
			os.RemoveAll(tmpDir)
		}
	}()

	partitionDir := filepath.Join(tmpDir, "partitions")
	if err := os.MkdirAll(partitionDir, 0o755); err != nil {
		return stats, indexIOErr(fmt.Errorf("pipeline: create partition dir: %w", err))
	}
	checkpointPath := filepath.Join(tmpDir, "checkpoint.log")
	defer func() {
		// A caller-supplied tmp dir is kept, but its intermediates are not
		// unless retention was requested.
		if !ownsTmpDir && !p.cfg.RetainIntermediate {
			os.RemoveAll(partitionDir)
			os.Remove(checkpointPath)
		}
	}()

	p.stage("loading authority index")
	authorityB, err := p.loadAuthorityB(tmpDir)
	if err != nil {
		return stats, err
	}
	if authorityB != nil {
		defer authorityB.Close()
	}

	authorityA := index.New()

	batchRows := p.cfg.PartitionBatchRows
	if batchRows < 1 {
		batchRows = tuning.DefaultPartitionBatchRows()
	}
	writer := partition.NewWriter(partitionDir, batchRows)

	p.stage("extracting references")
	driver := &extract.Driver{
		Mode:      p.cfg.Mode.extractMode(),
		Writer:    writer,
		Authority: authorityA,
		ChanDepth: tuning.ChanDepth(),
	}
	extractStats, err := driver.Run(p.cfg.ArchivePath)
	stats.Extract = extractStats
	if err != nil {
		return stats, framingErr(err)
	}
	if err := writer.FlushAll(); err != nil {
		return stats, indexIOErr(fmt.Errorf("pipeline: flush partitions: %w", err))
	}

	p.stage("inverting partitions")
	invertedCh, invertErrc := invert.Run(partitionDir, checkpointPath)

	validateCfg := validate.Config{
		Authorities:  p.authoritiesFor(authorityA, authorityB),
		HTTPFallback: p.cfg.HTTPFallback,
		Concurrency:  p.cfg.HTTPConcurrency,
		Timeout:      p.cfg.HTTPTimeout,
	}
	if validateCfg.Concurrency < 1 {
		validateCfg.Concurrency = tuning.Workers()
	}

	p.stage("validating and writing output")
	sw, err := newSplitWriters(p.cfg.OutputPath, p.cfg.Split)
	if err != nil {
		return stats, indexIOErr(err)
	}

	results := validate.Run(ctx, invertedCh, validateCfg)
	for res := range results {
		stats.RecordsInverted++
		rec := res.Record
		if p.cfg.Mode == ModeArxiv {
			rec = withArxivIdentity(rec)
		}
		if res.Outcome == validate.OutcomeValid {
			stats.RecordsValid++
		} else {
			stats.RecordsFailed++
		}
		if err := sw.writeRecord(rec); err != nil {
			sw.abort()
			return stats, indexIOErr(err)
		}
	}

	if err := <-invertErrc; err != nil {
		sw.abort()
		return stats, indexIOErr(fmt.Errorf("pipeline: invert: %w", err))
	}

	if err := sw.commit(); err != nil {
		return stats, indexIOErr(err)
	}

	keys, err := invert.DiscoverPartitions(partitionDir)
	if err == nil {
		stats.PartitionsRead = len(keys)
	}

	stats.Elapsed = time.Since(start)
	p.printStats(stats)
	return stats, nil
}

// loadAuthorityB builds or loads authority B per §6.7, or returns nil if
// the active mode doesn't need it (crossref mode uses authority A only).
func (p *Pipeline) loadAuthorityB(tmpDir string) (*index.Index, error) {
	switch p.cfg.Mode {
	case ModeCrossref:
		return nil, nil
	}

	if p.cfg.AuthorityBIndexPath != "" {
		ix, err := index.Load(p.cfg.AuthorityBIndexPath, prefixOfFor(p.cfg.Mode))
		if err != nil {
			return nil, indexIOErr(fmt.Errorf("pipeline: load authority B index: %w", err))
		}
		return ix, nil
	}

	ix, err := index.BuildFromFile(p.cfg.AuthorityBRecordsPath, prefixOfFor(p.cfg.Mode))
	if err != nil {
		return nil, indexIOErr(fmt.Errorf("pipeline: build authority B index: %w", err))
	}
	return ix, nil
}

func prefixOfFor(mode SourceMode) func(string) string {
	kind := ident.KindDOI
	if mode == ModeArxiv {
		kind = ident.KindArxiv
	}
	return func(canonical string) string {
		return ident.Identifier{Kind: kind, Canonical: canonical}.Prefix()
	}
}

// authoritiesFor builds the ordered authority list per §6.7's lookup
// order column for the active mode.
func (p *Pipeline) authoritiesFor(a, b *index.Index) []validate.AuthoritySource {
	switch p.cfg.Mode.lookupOrder() {
	case lookupAuthorityAOnly:
		return []validate.AuthoritySource{{Index: a, Source: record.SourceAuthorityA}}
	case lookupAuthorityBOnly:
		return []validate.AuthoritySource{{Index: b, Source: record.SourceAuthorityB}}
	default:
		return []validate.AuthoritySource{
			{Index: a, Source: record.SourceAuthorityA},
			{Index: b, Source: record.SourceAuthorityB},
		}
	}
}

func (p *Pipeline) printStats(s Stats) {
	body := fmt.Sprintf("works seen=%d skipped=%d references=%d rows=%d self-citations=%d malformed=%d\n",
		s.Extract.WorksSeen, s.Extract.WorksSkipped, s.Extract.ReferencesSeen, s.Extract.RowsWritten,
		s.Extract.SelfCitations, s.Extract.MalformedBatch)
	body += fmt.Sprintf("partitions=%d inverted=%d valid=%d failed=%d elapsed=%s\n",
		s.PartitionsRead, s.RecordsInverted, s.RecordsValid, s.RecordsFailed, s.Elapsed.Round(time.Millisecond))

	color.NoColor = p.NoColor
	statsColor.Fprint(os.Stderr, body)
}
