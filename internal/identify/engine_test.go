package identify

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/marinedata/edna-platform/internal/confidence"
	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/pkg/config"
	apperrors "github.com/marinedata/edna-platform/pkg/errors"
)

// tunaSeq is the full reference barcode for SP001; querying it verbatim must
// score a perfect 100.0.
const tunaSeq = "ATGCATTGGCACCTACGTAGTTGAACGCTAGGATCCTTAACGTGCAGTCA"

func testRefs() []refindex.RawReference {
	return []refindex.RawReference{
		{
			SpeciesID:      "SP001",
			ScientificName: "Thunnus albacares",
			CommonName:     "Yellowfin tuna",
			Taxonomy:       refindex.Taxonomy{Kingdom: "Animalia", Phylum: "Chordata", Genus: "Thunnus"},
			Sequence:       tunaSeq,
		},
		{
			// Second barcode for the same species, a fragment of the first.
			SpeciesID:      "SP001",
			ScientificName: "Thunnus albacares",
			Sequence:       tunaSeq[10:30],
		},
		{
			// Shares the first 40 bases with SP001.
			SpeciesID:      "SP002",
			ScientificName: "Katsuwonus pelamis",
			CommonName:     "Skipjack tuna",
			Sequence:       tunaSeq[:40] + "GGCCGGCCGG",
		},
		{
			// No k-mer overlap with the tuna barcodes.
			SpeciesID:      "SP003",
			ScientificName: "Sepia officinalis",
			Sequence:       "TTTTTCCCCCTTTTTCCCCCTTTTTCCCCCTTTTTCCCCC",
		},
	}
}

type staticProvider struct {
	refs []refindex.RawReference
	err  error
}

func (p *staticProvider) ListReferences(ctx context.Context) ([]refindex.RawReference, error) {
	return p.refs, p.err
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		KmerSize:           5,
		MinSequenceLength:  5,
		MinScore:           50.0,
		TopMatches:         5,
		MaxTopMatches:      20,
		MaxBatchTopMatches: 10,
		AlternativeMatches: 3,
		MaxBatchSize:       50,
		Workers:            4,
		BatchTimeout:       5 * time.Second,
		Confidence:         config.ConfidenceConfig{VeryHigh: 90, High: 75, Medium: 60},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(testEngineConfig(), &staticProvider{refs: testRefs()}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	return eng
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testEngineConfig()
	cfg.KmerSize = 1
	if _, err := New(cfg, &staticProvider{}, nil); err == nil {
		t.Error("New() with k=1 should fail")
	}
}

func TestIdentifyBeforeFirstBuild(t *testing.T) {
	eng, err := New(testEngineConfig(), &staticProvider{refs: testRefs()}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if eng.Ready() {
		t.Error("engine ready before first build")
	}
	_, err = eng.Identify(context.Background(), tunaSeq, eng.DefaultOptions())
	if !errors.Is(err, apperrors.ErrServiceNotReady) {
		t.Errorf("Identify() error = %v, want ErrServiceNotReady", err)
	}
}

func TestRebuildEmptyReference(t *testing.T) {
	provider := &staticProvider{}
	eng, err := New(testEngineConfig(), provider, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := eng.Rebuild(context.Background()); !errors.Is(err, apperrors.ErrEmptyReference) {
		t.Errorf("Rebuild() error = %v, want ErrEmptyReference", err)
	}
	if eng.Ready() {
		t.Error("engine ready after failed build")
	}
}

func TestRebuildFetchErrorKeepsPreviousIndex(t *testing.T) {
	provider := &staticProvider{refs: testRefs()}
	eng, err := New(testEngineConfig(), provider, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	buildID := eng.Index().BuildID()

	provider.err = errors.New("connection refused")
	if err := eng.Rebuild(context.Background()); err == nil {
		t.Fatal("Rebuild() with failing provider should error")
	}
	if got := eng.Index().BuildID(); got != buildID {
		t.Errorf("failed rebuild replaced the index: %s -> %s", buildID, got)
	}
}

func TestIdentifySelfMatch(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Identify(context.Background(), tunaSeq, eng.DefaultOptions())
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if len(result.Matches) == 0 {
		t.Fatal("self-match returned no matches")
	}
	top := result.Matches[0]
	if top.SpeciesID != "SP001" {
		t.Errorf("top match = %s, want SP001", top.SpeciesID)
	}
	if top.MatchingScore != 100.0 {
		t.Errorf("self-match score = %v, want 100.0", top.MatchingScore)
	}
	if top.ConfidenceLevel != confidence.VeryHigh {
		t.Errorf("self-match confidence = %v, want VERY_HIGH", top.ConfidenceLevel)
	}
	if top.Rank != 1 {
		t.Errorf("top match rank = %d, want 1", top.Rank)
	}
	if top.ScientificName != "Thunnus albacares" || top.CommonName != "Yellowfin tuna" {
		t.Errorf("metadata not attached: %+v", top)
	}
	if result.QueryLength != len(tunaSeq) {
		t.Errorf("QueryLength = %d, want %d", result.QueryLength, len(tunaSeq))
	}
	if result.QueryKmers == 0 {
		t.Error("QueryKmers = 0")
	}
}

func TestIdentifySingleBaseMutation(t *testing.T) {
	provider := &staticProvider{refs: []refindex.RawReference{
		{SpeciesID: "SP001", ScientificName: "Alpha one", Sequence: "ATGCATGCAT"},
	}}
	eng, err := New(testEngineConfig(), provider, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}

	// The query differs from the reference in its final base. Of its five
	// distinct 5-mers only the mutated tail window is missing from the
	// reference, so containment is 4/5.
	result, err := eng.Identify(context.Background(), "ATGCATGCAA", Options{MinScore: 0, TopMatches: 5})
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(result.Matches), result.Matches)
	}
	if got := result.Matches[0].MatchingScore; got != 80.0 {
		t.Errorf("mutated query score = %v, want 80.0", got)
	}
	if got := result.Matches[0].ConfidenceLevel; got != confidence.High {
		t.Errorf("confidence = %v, want HIGH", got)
	}
}

func TestIdentifyNoMatchIsNotAnError(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Identify(context.Background(), "AGAGAGAGAGAGAGAG", eng.DefaultOptions())
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("got %d matches, want 0: %+v", len(result.Matches), result.Matches)
	}
}

func TestIdentifyValidationErrors(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"invalid alphabet", "ACGT!ACGTAC", apperrors.ErrInvalidAlphabet},
		{"too short", "ACG", apperrors.ErrSequenceTooShort},
		{"all ambiguous", "NNNNNNNNNN", apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Identify(context.Background(), tt.raw, eng.DefaultOptions())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Identify(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestIdentifyDeterministic(t *testing.T) {
	eng := newTestEngine(t)
	opts := Options{MinScore: 0, TopMatches: 10}

	first, err := eng.Identify(context.Background(), tunaSeq, opts)
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := eng.Identify(context.Background(), tunaSeq, opts)
		if err != nil {
			t.Fatalf("Identify() error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestIdentifyMinScoreMonotonic(t *testing.T) {
	eng := newTestEngine(t)

	low, err := eng.Identify(context.Background(), tunaSeq, Options{MinScore: 0, TopMatches: 10})
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	high, err := eng.Identify(context.Background(), tunaSeq, Options{MinScore: 80, TopMatches: 10})
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}

	if len(high.Matches) > len(low.Matches) {
		t.Fatalf("raising min score grew the result: %d -> %d",
			len(low.Matches), len(high.Matches))
	}
	for i, m := range high.Matches {
		if m.MatchingScore < 80 {
			t.Errorf("match %s scored %v, below the 80 threshold", m.SpeciesID, m.MatchingScore)
		}
		if m.SpeciesID != low.Matches[i].SpeciesID {
			t.Errorf("filtered result is not a prefix: position %d is %s, was %s",
				i, m.SpeciesID, low.Matches[i].SpeciesID)
		}
	}
}

func TestIdentifyTopMatchesLimit(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Identify(context.Background(), tunaSeq, Options{MinScore: 0, TopMatches: 1})
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(result.Matches))
	}
	if result.Matches[0].SpeciesID != "SP001" {
		t.Errorf("top match = %s, want SP001", result.Matches[0].SpeciesID)
	}
}

func TestIdentifyZeroTopMatchesUsesDefault(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Identify(context.Background(), tunaSeq, Options{MinScore: 0})
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if len(result.Matches) > eng.Config().TopMatches {
		t.Errorf("got %d matches, want at most the default %d",
			len(result.Matches), eng.Config().TopMatches)
	}
}

func TestRebuildSwapsBuildID(t *testing.T) {
	eng := newTestEngine(t)
	first := eng.Index().BuildID()

	if err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if second := eng.Index().BuildID(); second == first {
		t.Errorf("rebuild kept build ID %s", first)
	}
}
