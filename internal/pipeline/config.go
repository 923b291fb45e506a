package pipeline

import (
	"fmt"
	"time"

	"github.com/cometadata/crossref-citation-extraction/internal/ident"
)

// SourceMode is one of §6.7's four mutually exclusive modes.
type SourceMode string

const (
	ModeAll      SourceMode = "all"
	ModeCrossref SourceMode = "crossref"
	ModeDatacite SourceMode = "datacite"
	ModeArxiv    SourceMode = "arxiv"
)

// extractMode maps a SourceMode onto the identifier family it extracts.
func (m SourceMode) extractMode() ident.Mode {
	if m == ModeArxiv {
		return ident.ModeArxiv
	}
	return ident.ModeDOI
}

// lookupOrder describes which authorities Phase 1 consults, and in what
// order, per §6.7's "Lookup order" column.
type lookupOrder int

const (
	lookupAuthorityAThenB lookupOrder = iota
	lookupAuthorityAOnly
	lookupAuthorityBOnly
)

func (m SourceMode) lookupOrder() lookupOrder {
	switch m {
	case ModeAll:
		return lookupAuthorityAThenB
	case ModeCrossref:
		return lookupAuthorityAOnly
	default: // datacite, arxiv
		return lookupAuthorityBOnly
	}
}

// Config is the full set of inputs and options the orchestrator needs,
// corresponding to §6.8's configuration surface plus the source-mode
// selection of §6.7.
type Config struct {
	Mode SourceMode

	ArchivePath string

	// AuthorityBRecordsPath is a gzipped JSON-lines stream of {"id": ...}
	// records (§6.2); AuthorityBIndexPath is an already-serialised index
	// (§6.3). Exactly one should be set when the mode requires authority B.
	AuthorityBRecordsPath string
	AuthorityBIndexPath   string

	OutputPath string
	Split      bool

	TmpDir             string
	RetainIntermediate bool

	PartitionBatchRows int
	HTTPConcurrency    int
	HTTPTimeout        time.Duration
	HTTPFallback       bool

	MetricsAddr string
}

// Validate checks the §6.7 preconditions table for cfg.Mode. A violation
// is a configuration error per §7, fatal before any I/O.
func (cfg Config) Validate() error {
	switch cfg.Mode {
	case ModeAll, ModeCrossref, ModeDatacite, ModeArxiv:
	default:
		return configErr(fmt.Errorf("pipeline: unrecognised source mode %q", cfg.Mode))
	}

	if cfg.ArchivePath == "" {
		return configErr(fmt.Errorf("pipeline: archive path is required"))
	}

	needsAuthorityB := cfg.Mode == ModeAll || cfg.Mode == ModeDatacite || cfg.Mode == ModeArxiv
	if needsAuthorityB && cfg.AuthorityBRecordsPath == "" && cfg.AuthorityBIndexPath == "" {
		return configErr(fmt.Errorf("pipeline: mode %q requires authority B records or a prebuilt index", cfg.Mode))
	}

	if cfg.OutputPath == "" {
		return configErr(fmt.Errorf("pipeline: output path is required"))
	}

	return nil
}
