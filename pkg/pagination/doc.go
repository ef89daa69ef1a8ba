// Package pagination implements parallel batch fetching of a complete
// paginated dataset whose total size is unknown in advance.
//
// The records API declares totalCount on every page response, so the fetch
// runs in two phases: the first page is fetched eagerly to learn the total,
// then a bounded worker pool claims the remaining offsets from an atomic
// cursor over a precomputed offset list.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(sourceClient, config)
//	pages, err := fetcher.FetchAll(ctx)
//
// The batch fetcher:
//   - fetches the first page to determine the total record count
//   - spawns min(MaxConcurrency, remaining pages) workers
//   - guarantees every remaining offset is claimed exactly once
//   - reports progress per fetched page
//   - aborts on the first fetch failure without producing partial results
//
// Pages are delivered in arrival order; dataset.Assemble restores offset
// order before any output is produced.
package pagination
