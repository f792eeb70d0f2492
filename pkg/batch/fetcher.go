// Package batch fetches child page blocks in fixed-size, paced batches.
//
// The Notion API rate-limits aggressively, so batches are issued one after
// another with a fixed pause after each, and each batch goes through the
// throttled invoker. A batch that still fails is dropped; its pages are
// simply missing from the result.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(notionClient, invoker, batch.DefaultConfig())
//	blocks, err := fetcher.FetchInBatches(ctx, pageIDs)
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/notion-posts/pkg/recordmap"
	"github.com/Sternrassler/notion-posts/pkg/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var notionBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notion_block_batches_total",
	Help: "Total number of block batches by outcome",
}, []string{"outcome"})

// Config holds batch fetcher configuration.
type Config struct {
	// BatchSize is the maximum number of ids per GetBlocks call.
	BatchSize int

	// InterBatchDelay is the pause after every batch, the last included.
	InterBatchDelay time.Duration
}

// DefaultConfig returns the pacing used against the Notion API.
func DefaultConfig() Config {
	return Config{
		BatchSize:       5,
		InterBatchDelay: 400 * time.Millisecond,
	}
}

// BlockFetcher fetches the blocks of several pages in one remote call.
type BlockFetcher interface {
	GetBlocks(ctx context.Context, ids []string) (recordmap.Table, error)
}

// Fetcher issues paced GetBlocks batches.
type Fetcher struct {
	blocks  BlockFetcher
	invoker *throttle.Invoker
	config  Config
	sleep   throttle.SleepFunc
	logger  zerolog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithSleep replaces the inter-batch wait function.
func WithSleep(fn throttle.SleepFunc) Option {
	return func(f *Fetcher) {
		f.sleep = fn
	}
}

// WithLogger sets the logger used for batch diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a batch fetcher. Zero config fields fall back to
// DefaultConfig.
func NewFetcher(blocks BlockFetcher, invoker *throttle.Invoker, config Config, opts ...Option) *Fetcher {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.InterBatchDelay < 0 {
		config.InterBatchDelay = 0
	}

	f := &Fetcher{
		blocks:  blocks,
		invoker: invoker,
		config:  config,
		sleep:   throttle.Sleep,
		logger:  log.With().Str("component", "batch-fetcher").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Partition splits ids into consecutive batches of at most size ids,
// preserving order.
func Partition(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

// FetchInBatches fetches the blocks of ids and merges them into one table.
//
// Failed batches are logged and skipped. The only error returned is
// cancellation, checked before each batch; the partial table fetched so
// far is returned with it.
func (f *Fetcher) FetchInBatches(ctx context.Context, ids []string) (recordmap.Table, error) {
	start := time.Now()
	result := recordmap.NewTable()
	batches := Partition(ids, f.config.BatchSize)

	f.logger.Debug().
		Int("pages", len(ids)).
		Int("batches", len(batches)).
		Int("batch_size", f.config.BatchSize).
		Msg("Starting batched block fetch")

	failed := 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			f.logger.Warn().
				Int("batch", i+1).
				Int("batches", len(batches)).
				Msg("Batched fetch cancelled")
			return result, fmt.Errorf("fetch batch %d/%d: %w: %w", i+1, len(batches), throttle.ErrContextCancelled, err)
		}

		label := fmt.Sprintf("getBlocks[%d/%d]", i+1, len(batches))
		blocks, err := throttle.Invoke(ctx, f.invoker, label, func(ctx context.Context) (recordmap.Table, error) {
			return f.blocks.GetBlocks(ctx, batch)
		})
		if err != nil {
			failed++
			notionBatchesTotal.WithLabelValues("failed").Inc()
			f.logger.Warn().
				Err(err).
				Int("batch", i+1).
				Strs("page_ids", batch).
				Msg("Batch failed - pages skipped")
		} else {
			added := result.Merge(blocks)
			notionBatchesTotal.WithLabelValues("ok").Inc()
			f.logger.Debug().
				Int("batch", i+1).
				Int("requested", len(batch)).
				Int("added", added).
				Msg("Batch fetched")
		}

		// The pause is a rate-limit margin; a cancelled wait is caught by
		// the check at the top of the next batch.
		_ = f.sleep(ctx, f.config.InterBatchDelay)
	}

	f.logger.Info().
		Int("pages", len(ids)).
		Int("fetched", result.Len()).
		Int("failed_batches", failed).
		Dur("duration", time.Since(start)).
		Msg("Batched block fetch complete")

	return result, nil
}
