// Package identify hosts the species-identification engine: it owns the
// reference index, runs single queries through the canonicalize → decompose
// → score → rank → classify pipeline, and fans batches out across a bounded
// worker pool.
package identify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marinedata/edna-platform/internal/confidence"
	"github.com/marinedata/edna-platform/internal/ranker"
	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/internal/scorer"
	"github.com/marinedata/edna-platform/internal/sequence"
	"github.com/marinedata/edna-platform/pkg/config"
	apperrors "github.com/marinedata/edna-platform/pkg/errors"
	"github.com/marinedata/edna-platform/pkg/metrics"
)

// ReferenceProvider supplies the raw reference sequences and taxonomy
// metadata the index is built from. The engine does not care whether this
// is backed by a relational store, a file, or an in-memory fixture.
type ReferenceProvider interface {
	ListReferences(ctx context.Context) ([]refindex.RawReference, error)
}

// Options are the caller-adjustable query parameters. Zero TopMatches falls
// back to the engine default; MinScore is used as given.
type Options struct {
	MinScore   float64
	TopMatches int
}

// QueryResult is the outcome of one identification query.
type QueryResult struct {
	Matches     []ranker.MatchResult `json:"matches"`
	QueryLength int                  `json:"query_length"`
	QueryKmers  int                  `json:"query_kmers"`
}

// Engine holds the active reference index behind an atomic pointer: queries
// load the pointer once and keep using that index instance even if a
// rebuild swaps in a new one mid-flight.
type Engine struct {
	cfg        config.EngineConfig
	provider   ReferenceProvider
	thresholds confidence.Thresholds
	idx        atomic.Pointer[refindex.Index]
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an Engine. The engine serves no queries until Rebuild has
// produced a first index. Metrics may be nil.
func New(cfg config.EngineConfig, provider ReferenceProvider, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Engine{
		cfg:      cfg,
		provider: provider,
		thresholds: confidence.Thresholds{
			VeryHigh: cfg.Confidence.VeryHigh,
			High:     cfg.Confidence.High,
			Medium:   cfg.Confidence.Medium,
		},
		metrics: m,
		logger:  slog.Default().With("component", "identify-engine"),
	}, nil
}

// DefaultOptions returns the configured query defaults.
func (e *Engine) DefaultOptions() Options {
	return Options{
		MinScore:   e.cfg.MinScore,
		TopMatches: e.cfg.TopMatches,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// Ready reports whether a reference index is loaded.
func (e *Engine) Ready() bool { return e.idx.Load() != nil }

// Index returns the active reference index, or nil before the first build.
func (e *Engine) Index() *refindex.Index { return e.idx.Load() }

// Rebuild fetches the reference data, builds a fresh index, and swaps it in
// atomically. In-flight queries keep the index instance they started with;
// new queries observe the new one. On failure the previous index stays
// active.
func (e *Engine) Rebuild(ctx context.Context) error {
	start := time.Now()
	refs, err := e.provider.ListReferences(ctx)
	if err != nil {
		e.observeRebuild("fetch_error", start)
		return fmt.Errorf("listing reference sequences: %w", err)
	}
	idx, err := refindex.Build(refs, e.cfg.KmerSize)
	if err != nil {
		e.observeRebuild("build_error", start)
		return fmt.Errorf("building reference index: %w", err)
	}

	e.idx.Store(idx)
	e.observeRebuild("ok", start)
	if e.metrics != nil {
		e.metrics.ReferenceSpecies.Set(float64(idx.SpeciesCount()))
		e.metrics.ReferenceSequences.Set(float64(idx.SequenceCount()))
	}
	e.logger.Info("reference index swapped",
		"build_id", idx.BuildID(),
		"species", idx.SpeciesCount(),
		"sequences", idx.SequenceCount(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (e *Engine) observeRebuild(status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		e.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	}
}

// Identify runs one raw sequence through the full pipeline and returns its
// ranked species matches. An empty match list is a valid outcome, not an
// error. Identify is pure with respect to engine state: it only reads the
// index it loaded at entry.
func (e *Engine) Identify(ctx context.Context, raw string, opts Options) (*QueryResult, error) {
	start := time.Now()
	idx := e.idx.Load()
	if idx == nil {
		e.observeOutcome("error")
		return nil, apperrors.ErrServiceNotReady
	}
	if err := ctx.Err(); err != nil {
		e.observeOutcome("error")
		return nil, err
	}

	seq, err := sequence.Canonicalize(raw, e.cfg.MinSequenceLength)
	if err != nil {
		e.observeOutcome("invalid")
		return nil, err
	}
	kmers := sequence.Kmers(seq, idx.K())
	if kmers.Len() == 0 {
		e.observeOutcome("invalid")
		return nil, fmt.Errorf("%w: sequence has no unambiguous k-mers", apperrors.ErrInvalidInput)
	}

	if opts.TopMatches <= 0 {
		opts.TopMatches = e.cfg.TopMatches
	}

	scored := scorer.ScoreCandidates(idx, kmers)
	matches := ranker.Rank(scored, ranker.Params{
		MinScore:     opts.MinScore,
		TopN:         opts.TopMatches,
		Alternatives: e.cfg.AlternativeMatches,
	}, idx.Species, e.thresholds.Classify)

	if e.metrics != nil {
		e.metrics.IdentificationLatency.WithLabelValues("single").Observe(time.Since(start).Seconds())
		e.metrics.MatchesReturned.Observe(float64(len(matches)))
	}
	if len(matches) > 0 {
		e.observeOutcome("matched")
	} else {
		e.observeOutcome("no_match")
	}

	return &QueryResult{
		Matches:     matches,
		QueryLength: len(seq),
		QueryKmers:  kmers.Len(),
	}, nil
}

func (e *Engine) observeOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.IdentificationsTotal.WithLabelValues(outcome).Inc()
	}
}
