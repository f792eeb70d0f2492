// Package posts assembles the child pages of a Notion collection page into
// an ordered list of posts.
//
// The Assembler runs a linear pipeline:
//
//	fetch_root -> normalize -> enumerate -> fetch_children -> extract -> sort
//
// Any failure before fetch_children ends the run with no posts. Child pages
// that cannot be fetched or extracted are skipped individually.
package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/notion-posts/pkg/batch"
	"github.com/Sternrassler/notion-posts/pkg/pageid"
	"github.com/Sternrassler/notion-posts/pkg/recordmap"
	"github.com/Sternrassler/notion-posts/pkg/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for assembly runs.
var (
	notionAssembleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_assemble_total",
		Help: "Total number of assembly runs by the stage they ended in",
	}, []string{"stage"})

	notionAssembleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notion_assemble_duration_seconds",
		Help:    "Duration of assembly runs in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	notionPostsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_posts_skipped_total",
		Help: "Total number of child pages skipped by reason",
	}, []string{"reason"})
)

// ErrEmptyRootPageID is returned for a blank root page id.
var ErrEmptyRootPageID = errors.New("root page id is empty")

// ErrNoChildPages is returned when the enumerator yields no usable ids.
var ErrNoChildPages = errors.New("no child pages")

// Stage names a step of the pipeline.
type Stage string

// Pipeline stages, in order.
const (
	StageFetchRoot     Stage = "fetch_root"
	StageNormalize     Stage = "normalize"
	StageEnumerate     Stage = "enumerate"
	StageFetchChildren Stage = "fetch_children"
	StageExtract       Stage = "extract"
	StageSort          Stage = "sort"
	StageDone          Stage = "done"
)

// StageError is a failure that ended a run.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// API is the remote content API.
type API interface {
	GetPage(ctx context.Context, pageID string) (*recordmap.RecordMap, error)
	GetBlocks(ctx context.Context, ids []string) (recordmap.Table, error)
}

// Enumerator lists the child page ids of a root page response, in order.
type Enumerator interface {
	PageIDs(rm *recordmap.RecordMap) []string
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(rm *recordmap.RecordMap) []string

// PageIDs implements Enumerator.
func (f EnumeratorFunc) PageIDs(rm *recordmap.RecordMap) []string {
	return f(rm)
}

// Extractor builds a post from a page's properties. Returning nil or an
// error skips the page.
type Extractor interface {
	Extract(ctx context.Context, pageID string, blocks recordmap.Table, schema recordmap.Schema) (*Post, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, pageID string, blocks recordmap.Table, schema recordmap.Schema) (*Post, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, pageID string, blocks recordmap.Table, schema recordmap.Schema) (*Post, error) {
	return f(ctx, pageID, blocks, schema)
}

// Config holds assembler configuration.
type Config struct {
	Retry throttle.Config
	Batch batch.Config
}

// DefaultConfig returns the retry and batch pacing used against Notion.
func DefaultConfig() Config {
	return Config{
		Retry: throttle.DefaultConfig(),
		Batch: batch.DefaultConfig(),
	}
}

// Assembler builds post lists. It holds only immutable collaborators and
// is safe for concurrent use; each call owns its own tables and slices.
type Assembler struct {
	api        API
	enumerator Enumerator
	extractor  Extractor
	invoker    *throttle.Invoker
	batches    *batch.Fetcher
	logger     zerolog.Logger
}

// Option customizes an Assembler.
type Option func(*assemblerOptions)

type assemblerOptions struct {
	sleep  throttle.SleepFunc
	logger *zerolog.Logger
}

// WithSleep replaces every wait (retry backoff and batch pacing).
func WithSleep(fn throttle.SleepFunc) Option {
	return func(o *assemblerOptions) {
		o.sleep = fn
	}
}

// WithLogger sets the logger shared by the pipeline components.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *assemblerOptions) {
		o.logger = &logger
	}
}

// NewAssembler wires an Assembler.
func NewAssembler(api API, enumerator Enumerator, extractor Extractor, cfg Config, opts ...Option) (*Assembler, error) {
	if api == nil {
		return nil, fmt.Errorf("api is required")
	}
	if enumerator == nil {
		return nil, fmt.Errorf("page id enumerator is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("property extractor is required")
	}

	o := assemblerOptions{sleep: throttle.Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.With().Str("component", "post-assembler").Logger()
	if o.logger != nil {
		logger = *o.logger
	}

	invoker := throttle.New(cfg.Retry, throttle.WithSleep(o.sleep), throttle.WithLogger(logger))
	batches := batch.NewFetcher(api, invoker, cfg.Batch, batch.WithSleep(o.sleep), batch.WithLogger(logger))

	return &Assembler{
		api:        api,
		enumerator: enumerator,
		extractor:  extractor,
		invoker:    invoker,
		batches:    batches,
		logger:     logger,
	}, nil
}

// Assemble returns the posts below rootPageID, newest first. It never
// fails: any unrecoverable condition is logged and yields an empty slice.
// An empty result means nothing is available, not that nothing exists.
func (a *Assembler) Assemble(ctx context.Context, rootPageID string) []Post {
	start := time.Now()
	defer func() {
		notionAssembleDuration.Observe(time.Since(start).Seconds())
	}()

	posts, err := a.assemble(ctx, rootPageID)
	if err != nil {
		stage := StageDone
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		notionAssembleTotal.WithLabelValues(string(stage)).Inc()

		event := a.logger.Warn()
		if errors.Is(err, throttle.ErrRetryExhausted) {
			event = a.logger.Error()
		}
		event.
			Err(err).
			Str("root_page_id", rootPageID).
			Str("stage", string(stage)).
			Msg("Assembly aborted - returning no posts")
		return []Post{}
	}

	notionAssembleTotal.WithLabelValues(string(StageDone)).Inc()
	a.logger.Info().
		Str("root_page_id", rootPageID).
		Int("posts", len(posts)).
		Dur("duration", time.Since(start)).
		Msg("Assembly complete")
	return posts
}

func (a *Assembler) assemble(ctx context.Context, rootPageID string) ([]Post, error) {
	if pageid.IsBlank(rootPageID) {
		return nil, &StageError{Stage: StageFetchRoot, Err: ErrEmptyRootPageID}
	}

	// The API gets the id as the caller wrote it; lookups use the
	// canonical form.
	rm, err := throttle.Invoke(ctx, a.invoker, "getPage", func(ctx context.Context) (*recordmap.RecordMap, error) {
		return a.api.GetPage(ctx, rootPageID)
	})
	if err != nil {
		return nil, &StageError{Stage: StageFetchRoot, Err: err}
	}
	rootID := pageid.Canonical(rootPageID)

	normalized, err := recordmap.Normalize(rm, rootID)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}
	a.logger.Debug().
		Str("root_page_id", rootID).
		Str("collection_id", normalized.CollectionID).
		Stringer("collection_shape", normalized.CollectionShape).
		Stringer("root_shape", normalized.RootShape).
		Int("schema_properties", len(normalized.Schema)).
		Msg("Root page normalized")

	pageIDs := usableIDs(a.enumerator.PageIDs(rm))
	if len(pageIDs) == 0 {
		return nil, &StageError{Stage: StageEnumerate, Err: ErrNoChildPages}
	}

	blocks, err := a.batches.FetchInBatches(ctx, pageIDs)
	if err != nil {
		return nil, &StageError{Stage: StageFetchChildren, Err: err}
	}

	posts := make([]Post, 0, len(pageIDs))
	for _, id := range pageIDs {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: StageExtract, Err: err}
		}
		if post, ok := a.buildPost(ctx, id, blocks, normalized.Schema); ok {
			posts = append(posts, post)
		}
	}

	SortNewestFirst(posts)
	return posts, nil
}

// buildPost extracts one child page and injects its block metadata.
func (a *Assembler) buildPost(ctx context.Context, id string, blocks recordmap.Table, schema recordmap.Schema) (Post, bool) {
	wrapper, ok := blocks.Get(id)
	if !ok {
		notionPostsSkippedTotal.WithLabelValues("missing_block").Inc()
		a.logger.Debug().Str("page_id", id).Msg("Block not fetched - page skipped")
		return Post{}, false
	}

	post, err := a.extractor.Extract(ctx, id, blocks, schema)
	if err != nil || post == nil {
		notionPostsSkippedTotal.WithLabelValues("no_properties").Inc()
		a.logger.Debug().Err(err).Str("page_id", id).Msg("No properties extracted - page skipped")
		return Post{}, false
	}

	block, err := wrapper.UnwrapBlock()
	if err != nil {
		notionPostsSkippedTotal.WithLabelValues("malformed_block").Inc()
		a.logger.Debug().Err(err).Str("page_id", id).Msg("Malformed block - page skipped")
		return Post{}, false
	}

	out := *post
	if out.ID == "" {
		out.ID = id
	}
	out.CreatedTime = FormatCreatedTime(block.CreatedAt())
	out.FullWidth = block.FullWidth()
	return out, true
}

// usableIDs drops blank ids and canonicalizes the rest, keeping order.
// Duplicates are dropped after their first occurrence.
func usableIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if pageid.IsBlank(id) {
			continue
		}
		key := pageid.Canonical(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
