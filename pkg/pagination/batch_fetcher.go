// Package pagination provides parallel batch fetching of a complete
// paginated dataset from the records API.
package pagination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dataset-sync/pkg/dataset"
)

// Prometheus metrics for batch fetch operations.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pages_fetched_total",
		Help: "Total pages fetched across all runs",
	})

	batchFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_fetch_duration_seconds",
		Help:    "Duration of full batch fetches in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// PageSize is the fixed page size; it must match what the fetcher
	// requests with, since remaining offsets are derived from it.
	PageSize int

	// Timeout per page fetch. Zero means no per-page deadline beyond the
	// fetcher's own.
	Timeout time.Duration
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		PageSize:       100,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches a single page of records at a given offset.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset int) (*dataset.Page, error)
}

// RemainingOffsets computes the offsets still to fetch after the first page:
// {L, 2L, ...} up to the last page implied by total. For all T and L the
// result has ceil(T/L)-1 entries (zero when the first page covers it all).
func RemainingOffsets(total, pageSize int) []int {
	if total <= pageSize || pageSize <= 0 {
		return nil
	}
	pages := (total + pageSize - 1) / pageSize
	offsets := make([]int, 0, pages-1)
	for page := 1; page < pages; page++ {
		offsets = append(offsets, page*pageSize)
	}
	return offsets
}

// BatchFetcher fetches every page of the dataset with a bounded worker pool.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches the complete dataset in two phases. Phase 1 fetches the
// page at offset 0 eagerly; its totalCount determines the remaining
// offsets. Phase 2 runs min(MaxConcurrency, remaining) workers; each claims
// the next unclaimed offset from an atomic cursor over the precomputed
// offset list, so no offset is fetched twice and none is skipped.
//
// The first fetch failure aborts the batch: pending offsets are abandoned,
// the error is returned without waiting for in-flight siblings, and any
// pages those siblings still deliver are discarded. Context cancellation
// aborts the same way with the context error. No partial result is ever
// returned.
//
// The returned pages are in arrival order; callers must not rely on it and
// should reassemble by offset.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]dataset.Page, error) {
	start := time.Now()
	defer func() {
		batchFetchDuration.Observe(time.Since(start).Seconds())
	}()

	first, err := bf.fetchOne(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	pagesFetchedTotal.Inc()

	offsets := RemainingOffsets(first.TotalCount, bf.config.PageSize)
	totalPages := len(offsets) + 1

	log.Info().
		Int("total_count", first.TotalCount).
		Int("total_pages", totalPages).
		Int("max_concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	pages := make([]dataset.Page, 0, totalPages)
	pages = append(pages, *first)

	if len(offsets) == 0 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return pages, nil
	}

	var (
		mu     sync.Mutex
		cursor atomic.Int64
		failed atomic.Bool
		wg     sync.WaitGroup
	)

	workers := min(bf.config.MaxConcurrency, len(offsets))
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			bf.worker(ctx, workerID, offsets, totalPages, &cursor, &failed, &mu, &pages, errCh)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Report the first failure immediately; siblings racing to completion
	// append into pages, but the slice is dropped with the error.
	select {
	case err := <-errCh:
		log.Warn().
			Err(err).
			Int("total_pages", totalPages).
			Msg("Batch fetch aborted on worker error")
		return nil, err
	case <-done:
	}

	// A failure can race pool completion; prefer the error.
	select {
	case err := <-errCh:
		log.Warn().
			Err(err).
			Int("total_pages", totalPages).
			Msg("Batch fetch aborted on worker error")
		return nil, err
	default:
	}

	// Workers that see a cancelled context stop claiming without reporting
	// an error. A short page set here means the batch was cut off, never a
	// success.
	if len(pages) != totalPages {
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("incomplete batch: fetched %d of %d pages", len(pages), totalPages)
		}
		log.Warn().
			Err(err).
			Int("fetched", len(pages)).
			Int("total_pages", totalPages).
			Msg("Batch fetch aborted before completion")
		return nil, err
	}

	log.Info().
		Int("pages", len(pages)).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return pages, nil
}

// worker claims offsets until the cursor is exhausted, a fetch fails, or
// the context ends.
func (bf *BatchFetcher) worker(
	ctx context.Context,
	workerID int,
	offsets []int,
	totalPages int,
	cursor *atomic.Int64,
	failed *atomic.Bool,
	mu *sync.Mutex,
	pages *[]dataset.Page,
	errCh chan<- error,
) {
	processed := 0

	for {
		if failed.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		idx := int(cursor.Add(1)) - 1
		if idx >= len(offsets) {
			break
		}
		offset := offsets[idx]

		page, err := bf.fetchOne(ctx, offset)
		if err != nil {
			failed.Store(true)
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("offset", offset).
				Msg("Page fetch failed")
			// Non-blocking: only the first error matters.
			select {
			case errCh <- err:
			default:
			}
			return
		}

		mu.Lock()
		*pages = append(*pages, *page)
		fetched := len(*pages)
		mu.Unlock()

		pagesFetchedTotal.Inc()
		processed++

		log.Info().
			Int("offset", offset).
			Int("fetched", fetched).
			Int("total", totalPages).
			Msg("Page fetched")
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", processed).
			Msg("Worker completed")
	}
}

// fetchOne applies the per-page timeout around a single fetch.
func (bf *BatchFetcher) fetchOne(ctx context.Context, offset int) (*dataset.Page, error) {
	if bf.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()
	}
	return bf.fetcher.FetchPage(ctx, offset)
}
