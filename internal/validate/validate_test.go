package validate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cometadata/crossref-citation-extraction/internal/index"
	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

func TestRunPhase1LocalHit(t *testing.T) {
	authA := index.New()
	require.NoError(t, authA.Add("10.1/known", "10.1"))

	in := make(chan record.InvertedRecord, 1)
	in <- record.InvertedRecord{DOI: "10.1/known"}
	close(in)

	cfg := Config{Authorities: []AuthoritySource{{Index: authA, Source: record.SourceAuthorityA}}}
	out := Run(context.Background(), in, cfg)

	var results []Result
	for r := range out {
		results = append(results, r)
	}
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeValid, results[0].Outcome)
	assert.Equal(t, record.SourceAuthorityA, results[0].Source)
}

func TestRunPhase1MissWithoutHTTPFallbackFails(t *testing.T) {
	in := make(chan record.InvertedRecord, 1)
	in <- record.InvertedRecord{DOI: "10.1/unknown"}
	close(in)

	out := Run(context.Background(), in, Config{})

	var results []Result
	for r := range out {
		results = append(results, r)
	}
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
}

func TestRunPhase2HTTPFallback(t *testing.T) {
	in := make(chan record.InvertedRecord, 2)
	in <- record.InvertedRecord{DOI: "10.1/resolves"}
	in <- record.InvertedRecord{DOI: "10.1/fails"}
	close(in)

	cfg := Config{
		HTTPFallback: true,
		Concurrency:  2,
		Timeout:      time.Second,
		resolve: func(ctx context.Context, client *http.Client, id string) bool {
			return id == "10.1/resolves"
		},
	}
	out := Run(context.Background(), in, cfg)

	byID := make(map[string]Result)
	for r := range out {
		byID[r.Record.DOI] = r
	}
	require.Len(t, byID, 2)
	assert.Equal(t, OutcomeValid, byID["10.1/resolves"].Outcome)
	assert.Equal(t, record.SourceNetwork, byID["10.1/resolves"].Source)
	assert.Equal(t, OutcomeFailed, byID["10.1/fails"].Outcome)
}

func TestFilterSplitsByProvenanceAndRecomputesCounts(t *testing.T) {
	rec := record.InvertedRecord{
		DOI:            "10.1/target",
		CitationCount:  2,
		ReferenceCount: 3,
		CitedBy: []record.CitedBy{
			{CitingDOI: "10.9/a", Provenance: "publisher", Matches: []record.Match{{}, {}}},
			{CitingDOI: "10.9/b", Provenance: "mined", Matches: []record.Match{{}}},
		},
	}

	asserted, ok := Filter(rec, ClassAsserted)
	require.True(t, ok)
	assert.Equal(t, 1, asserted.CitationCount)
	assert.Equal(t, 2, asserted.ReferenceCount)

	mined, ok := Filter(rec, ClassMined)
	require.True(t, ok)
	assert.Equal(t, 1, mined.CitationCount)
	assert.Equal(t, 1, mined.ReferenceCount)
}

func TestFilterOmitsRecordWhenFilteredSetEmpty(t *testing.T) {
	rec := record.InvertedRecord{
		DOI:           "10.1/target",
		CitationCount: 1,
		CitedBy:       []record.CitedBy{{CitingDOI: "10.9/a", Provenance: "mined"}},
	}
	_, ok := Filter(rec, ClassAsserted)
	assert.False(t, ok)
}
