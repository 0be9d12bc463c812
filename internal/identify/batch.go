package identify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/marinedata/edna-platform/pkg/errors"
)

// BatchItem is one sequence in a batch request. Metadata is passed through
// to the corresponding result untouched.
type BatchItem struct {
	ID       string
	Sequence string
	Metadata map[string]string
}

// BatchItemResult holds the outcome for one batch item: either a QueryResult
// or an error, never both. Err wraps ErrTimeout for items unresolved when
// the batch deadline fired, so callers can retry those without resubmitting
// the whole batch.
type BatchItemResult struct {
	ID       string
	Result   *QueryResult
	Err      error
	Metadata map[string]string
}

// IdentifyBatch fans the items out across a bounded worker pool and collects
// per-item results. Response slots correspond 1:1 to input order regardless
// of worker completion order, and one item's failure never aborts its
// siblings. Cancelling ctx stops dispatch of not-yet-started items;
// already-completed slots are preserved.
func (e *Engine) IdentifyBatch(ctx context.Context, items []BatchItem, opts Options) []BatchItemResult {
	results := make([]BatchItemResult, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("seq_%d", i+1)
		}
		results[i] = BatchItemResult{ID: id, Metadata: item.Metadata}
	}
	if len(items) == 0 {
		return results
	}

	bctx := ctx
	var cancel context.CancelFunc
	if e.cfg.BatchTimeout > 0 {
		bctx, cancel = context.WithTimeout(ctx, e.cfg.BatchTimeout)
		defer cancel()
	}

	workers := e.cfg.Workers
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int)
	done := make([]bool, len(items))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Scoring is pure in-memory work; an item picked up
				// before the deadline is allowed to finish.
				res, err := e.Identify(bctx, items[i].Sequence, opts)
				if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
					err = fmt.Errorf("%w: batch deadline exceeded", apperrors.ErrTimeout)
				}
				results[i].Result = res
				results[i].Err = err
				done[i] = true
			}
		}()
	}

	start := time.Now()
dispatch:
	for i := range items {
		select {
		case jobs <- i:
		case <-bctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	// Items never dispatched (or rejected mid-flight by the expired
	// context) are marked timed out; completed slots stay as they are.
	var timedOut int
	for i := range results {
		if done[i] {
			continue
		}
		results[i].Err = fmt.Errorf("%w: batch deadline exceeded", apperrors.ErrTimeout)
		timedOut++
	}

	if e.metrics != nil {
		e.metrics.BatchSize.Observe(float64(len(items)))
		e.metrics.IdentificationLatency.WithLabelValues("batch").Observe(time.Since(start).Seconds())
		for i := range results {
			switch {
			case results[i].Err == nil:
				e.metrics.BatchItemsTotal.WithLabelValues("ok").Inc()
			case errors.Is(results[i].Err, apperrors.ErrTimeout):
				e.metrics.BatchItemsTotal.WithLabelValues("timed_out").Inc()
			default:
				e.metrics.BatchItemsTotal.WithLabelValues("error").Inc()
			}
		}
	}
	if timedOut > 0 {
		e.logger.Warn("batch items timed out",
			"total", len(items),
			"timed_out", timedOut,
			"timeout", e.cfg.BatchTimeout,
		)
	}
	return results
}
