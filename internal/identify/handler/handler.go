// Package handler exposes the identification engine over HTTP: single and
// batch identification, reference index stats, and manual reload.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marinedata/edna-platform/internal/events"
	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/internal/identify/cache"
	"github.com/marinedata/edna-platform/internal/ranker"
	"github.com/marinedata/edna-platform/internal/refdata"
	apperrors "github.com/marinedata/edna-platform/pkg/errors"
	"github.com/marinedata/edna-platform/pkg/logger"
	"github.com/marinedata/edna-platform/pkg/metrics"
)

// ResultStore persists accepted identifications. Nil disables persistence.
type ResultStore interface {
	SaveIdentification(ctx context.Context, rec refdata.IdentificationRecord) error
}

// Handler serves the species-identification API.
type Handler struct {
	engine    *identify.Engine
	cache     *cache.ResultCache
	store     ResultStore
	collector *events.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. Cache, store, collector, and metrics may each be
// nil; the corresponding behavior is simply skipped.
func New(engine *identify.Engine, resultCache *cache.ResultCache, store ResultStore, collector *events.Collector, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:    engine,
		cache:     resultCache,
		store:     store,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "identify-handler"),
	}
}

type identifyRequest struct {
	Sequence   string   `json:"sequence"`
	MinScore   *float64 `json:"min_score"`
	TopMatches *int     `json:"top_matches"`
}

type queryInfo struct {
	SequenceLength    int     `json:"sequence_length"`
	QueryKmers        int     `json:"query_kmers"`
	KmerSize          int     `json:"k_mer_size"`
	MinScoreThreshold float64 `json:"min_score_threshold"`
	TotalMatchesFound int     `json:"total_matches_found"`
}

type identifyResponse struct {
	Matches           []ranker.MatchResult `json:"matches"`
	QueryInfo         queryInfo            `json:"query_info"`
	AnalysisTimestamp string               `json:"analysis_timestamp"`
}

// Identify handles POST /api/v1/species/identify.
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_input")
		return
	}
	if req.Sequence == "" {
		h.writeError(w, http.StatusBadRequest, "sequence is required", "invalid_input")
		return
	}
	opts, errMsg := h.resolveOptions(req.MinScore, req.TopMatches, h.engine.Config().MaxTopMatches)
	if errMsg != "" {
		h.writeError(w, http.StatusBadRequest, errMsg, "invalid_input")
		return
	}

	idx := h.engine.Index()
	if idx == nil {
		h.writeIdentifyError(w, log, apperrors.ErrServiceNotReady)
		return
	}

	var result *identify.QueryResult
	var err error
	cacheHit := false
	if h.cache != nil {
		key := cache.Key(idx.BuildID(), req.Sequence, opts)
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (*identify.QueryResult, error) {
			return h.engine.Identify(ctx, req.Sequence, opts)
		})
	} else {
		result, err = h.engine.Identify(ctx, req.Sequence, opts)
	}
	if err != nil {
		h.writeIdentifyError(w, log, err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("identification completed",
		"query_length", result.QueryLength,
		"matches", len(result.Matches),
		"min_score", opts.MinScore,
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	if h.store != nil && len(result.Matches) > 0 {
		rec := refdata.IdentificationRecord{
			RequestID:   logger.RequestID(ctx),
			QueryLength: result.QueryLength,
			QueryKmers:  result.QueryKmers,
			MinScore:    opts.MinScore,
			Matches:     result.Matches,
		}
		if err := h.store.SaveIdentification(ctx, rec); err != nil {
			log.Error("persisting identification failed", "error", err)
			h.observePersist("error")
		} else {
			h.observePersist("ok")
		}
	}
	h.trackIdentification(ctx, result, opts, cacheHit, latencyMs)

	h.writeJSON(w, http.StatusOK, identifyResponse{
		Matches: result.Matches,
		QueryInfo: queryInfo{
			SequenceLength:    result.QueryLength,
			QueryKmers:        result.QueryKmers,
			KmerSize:          idx.K(),
			MinScoreThreshold: opts.MinScore,
			TotalMatchesFound: len(result.Matches),
		},
		AnalysisTimestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type batchSequence struct {
	ID       string            `json:"id"`
	Sequence string            `json:"sequence"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type batchRequest struct {
	Sequences  []batchSequence `json:"sequences"`
	MinScore   *float64        `json:"min_score"`
	TopMatches *int            `json:"top_matches"`
}

type batchItemResponse struct {
	ID             string               `json:"id"`
	Status         string               `json:"status"`
	Matches        []ranker.MatchResult `json:"matches,omitempty"`
	BestMatch      *ranker.MatchResult  `json:"best_match,omitempty"`
	SequenceLength int                  `json:"sequence_length,omitempty"`
	TotalMatches   int                  `json:"total_matches,omitempty"`
	Error          string               `json:"error,omitempty"`
	ErrorCode      string               `json:"error_code,omitempty"`
	Metadata       map[string]string    `json:"metadata,omitempty"`
}

type batchSummary struct {
	TotalSequences      int     `json:"total_sequences"`
	Succeeded           int     `json:"succeeded"`
	Failed              int     `json:"failed"`
	TimedOut            int     `json:"timed_out"`
	SuccessRate         float64 `json:"success_rate"`
	ProcessingTimestamp string  `json:"processing_timestamp"`
}

type batchResponse struct {
	Results []batchItemResponse `json:"results"`
	Summary batchSummary        `json:"summary"`
}

// BatchIdentify handles POST /api/v1/species/batch-identify. The response
// array always has one entry per input sequence, in input order; per-item
// failures never abort the batch.
func (h *Handler) BatchIdentify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_input")
		return
	}
	if len(req.Sequences) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one sequence is required", "invalid_input")
		return
	}
	cfg := h.engine.Config()
	if len(req.Sequences) > cfg.MaxBatchSize {
		h.writeError(w, http.StatusBadRequest,
			"batch exceeds maximum size", "invalid_input")
		return
	}
	opts, errMsg := h.resolveOptions(req.MinScore, req.TopMatches, cfg.MaxBatchTopMatches)
	if errMsg != "" {
		h.writeError(w, http.StatusBadRequest, errMsg, "invalid_input")
		return
	}
	if !h.engine.Ready() {
		h.writeIdentifyError(w, log, apperrors.ErrServiceNotReady)
		return
	}

	items := make([]identify.BatchItem, len(req.Sequences))
	for i, s := range req.Sequences {
		items[i] = identify.BatchItem{ID: s.ID, Sequence: s.Sequence, Metadata: s.Metadata}
	}
	results := h.engine.IdentifyBatch(ctx, items, opts)

	resp := batchResponse{Results: make([]batchItemResponse, len(results))}
	var succeeded, failed, timedOut int
	for i, res := range results {
		item := batchItemResponse{ID: res.ID, Metadata: res.Metadata}
		switch {
		case res.Err == nil:
			item.Status = "ok"
			item.Matches = res.Result.Matches
			item.SequenceLength = res.Result.QueryLength
			item.TotalMatches = len(res.Result.Matches)
			if len(res.Result.Matches) > 0 {
				item.BestMatch = &res.Result.Matches[0]
			}
			succeeded++
		case errors.Is(res.Err, apperrors.ErrTimeout):
			item.Status = "error"
			item.Error = res.Err.Error()
			item.ErrorCode = apperrors.Kind(res.Err)
			timedOut++
		default:
			item.Status = "error"
			item.Error = res.Err.Error()
			item.ErrorCode = apperrors.Kind(res.Err)
			failed++
		}
		resp.Results[i] = item
	}
	resp.Summary = batchSummary{
		TotalSequences:      len(results),
		Succeeded:           succeeded,
		Failed:              failed,
		TimedOut:            timedOut,
		SuccessRate:         float64(succeeded) / float64(len(results)) * 100,
		ProcessingTimestamp: time.Now().UTC().Format(time.RFC3339),
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("batch identification completed",
		"items", len(results),
		"succeeded", succeeded,
		"failed", failed,
		"timed_out", timedOut,
		"latency_ms", latencyMs,
	)
	if h.collector != nil {
		h.collector.Track("batch", events.BatchEvent{
			Type:      events.TypeBatch,
			RequestID: logger.RequestID(ctx),
			Items:     len(results),
			Succeeded: succeeded,
			Failed:    failed,
			TimedOut:  timedOut,
			LatencyMs: latencyMs,
			Timestamp: time.Now().UTC(),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ReferenceStats handles GET /api/v1/reference/stats.
func (h *Handler) ReferenceStats(w http.ResponseWriter, r *http.Request) {
	idx := h.engine.Index()
	if idx == nil {
		h.writeIdentifyError(w, h.logger, apperrors.ErrServiceNotReady)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"build_id":   idx.BuildID(),
		"built_at":   idx.BuiltAt().Format(time.RFC3339),
		"k_mer_size": idx.K(),
		"species":    idx.SpeciesCount(),
		"sequences":  idx.SequenceCount(),
		"skipped":    idx.SkippedCount(),
	})
}

// ReferenceReload handles POST /api/v1/reference/reload: rebuild the index
// from the reference store and invalidate cached results.
func (h *Handler) ReferenceReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if err := h.engine.Rebuild(ctx); err != nil {
		log.Error("manual index rebuild failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "index rebuild failed", apperrors.Kind(err))
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	idx := h.engine.Index()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "reloaded",
		"build_id":  idx.BuildID(),
		"species":   idx.SpeciesCount(),
		"sequences": idx.SequenceCount(),
	})
}

// Health handles the plain liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveOptions applies request overrides to the engine defaults,
// validating ranges and capping top_matches at maxTop.
func (h *Handler) resolveOptions(minScore *float64, topMatches *int, maxTop int) (identify.Options, string) {
	opts := h.engine.DefaultOptions()
	if minScore != nil {
		if *minScore < 0 || *minScore > 100 {
			return opts, "min_score must be between 0 and 100"
		}
		opts.MinScore = *minScore
	}
	if topMatches != nil {
		if *topMatches < 1 {
			return opts, "top_matches must be a positive integer"
		}
		opts.TopMatches = *topMatches
	}
	if opts.TopMatches > maxTop {
		opts.TopMatches = maxTop
	}
	return opts, ""
}

func (h *Handler) observePersist(status string) {
	if h.metrics != nil {
		h.metrics.ResultsPersistedTotal.WithLabelValues(status).Inc()
	}
}

func (h *Handler) trackIdentification(ctx context.Context, result *identify.QueryResult, opts identify.Options, cacheHit bool, latencyMs int64) {
	if h.collector == nil {
		return
	}
	ev := events.IdentificationEvent{
		Type:        events.TypeIdentification,
		RequestID:   logger.RequestID(ctx),
		QueryLength: result.QueryLength,
		QueryKmers:  result.QueryKmers,
		MinScore:    opts.MinScore,
		Matches:     len(result.Matches),
		CacheHit:    cacheHit,
		LatencyMs:   latencyMs,
		Timestamp:   time.Now().UTC(),
	}
	if len(result.Matches) > 0 {
		top := result.Matches[0]
		ev.TopSpeciesID = top.SpeciesID
		ev.TopScore = top.MatchingScore
		ev.Confidence = string(top.ConfidenceLevel)
	}
	h.collector.Track("identification", ev)
}

func (h *Handler) writeIdentifyError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		log.Error("identification failed", "error", err)
	}
	h.writeError(w, status, err.Error(), apperrors.Kind(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}
