// Package syncer ties the pipeline together: batch fetch, reassembly,
// change detection, and — only on change — publication.
package syncer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dataset-sync/pkg/dataset"
	"github.com/Sternrassler/dataset-sync/pkg/snapshot"
)

// Fetcher fetches every page of the dataset.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]dataset.Page, error)
}

// Locker guards a run against concurrent siblings. Optional.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Summary describes a completed run.
type Summary struct {
	Pages         int
	Records       int
	DeclaredTotal int
	CountMismatch bool
	Changed       bool
	// Version is the published version after a change; empty when nothing
	// was written.
	Version  string
	Duration time.Duration
}

// Syncer runs the fetch-and-reconcile pipeline once.
type Syncer struct {
	fetcher   Fetcher
	gate      snapshot.Gate
	publisher *snapshot.Publisher

	// Lock, when set, is held for the duration of the run.
	Lock Locker

	logger zerolog.Logger
}

// New creates a syncer.
func New(fetcher Fetcher, gate snapshot.Gate, publisher *snapshot.Publisher) *Syncer {
	return &Syncer{
		fetcher:   fetcher,
		gate:      gate,
		publisher: publisher,
		logger:    log.With().Str("component", "syncer").Logger(),
	}
}

// Run executes one sync: fetch all pages, reassemble in offset order,
// evaluate the change gate, and publish only when bytes changed. Any stage
// error aborts the run with no partial writes. A count mismatch between the
// declared total and the assembled length is logged, never fatal.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	if s.Lock != nil {
		if err := s.Lock.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := s.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("Run lock release failed")
			}
		}()
	}

	pages, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	d := dataset.Assemble(pages)
	if d.CountMismatch() {
		s.logger.Warn().
			Int("declared_total", d.DeclaredTotal).
			Int("assembled", len(d.Records)).
			Msg("Assembled record count differs from declared total")
	}

	decision, err := s.gate.Evaluate(d)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Pages:         len(pages),
		Records:       len(d.Records),
		DeclaredTotal: d.DeclaredTotal,
		CountMismatch: d.CountMismatch(),
		Changed:       decision.Changed,
	}

	if !decision.Changed {
		summary.Duration = time.Since(start)
		s.logger.Info().
			Int("pages", summary.Pages).
			Int("records", summary.Records).
			Dur("duration", summary.Duration).
			Msg("No changes, nothing written")
		return summary, nil
	}

	version, err := s.publisher.Publish(decision)
	if err != nil {
		return nil, err
	}

	summary.Version = version
	summary.Duration = time.Since(start)
	s.logger.Info().
		Int("pages", summary.Pages).
		Int("records", summary.Records).
		Str("version", version).
		Dur("duration", summary.Duration).
		Msgf("Changes written, version bumped to %s", version)

	return summary, nil
}
