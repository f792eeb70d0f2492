// Package notion is a small client for Notion's unofficial api/v3 content
// API, the one public Notion pages are rendered from.
//
// The client performs exactly one attempt per call. Retries and pacing
// belong to the caller (see pkg/throttle and pkg/batch). A Client holds
// only immutable configuration and is cheap to construct.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/notion-posts/pkg/pageid"
	"github.com/Sternrassler/notion-posts/pkg/recordmap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Notion API calls.
var (
	notionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_requests_total",
		Help: "Total Notion API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	notionRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notion_request_duration_seconds",
		Help:    "Notion API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	notionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_errors_total",
		Help: "Total Notion API errors by class",
	}, []string{"class"})
)

// API endpoints.
const (
	endpointLoadPageChunk    = "loadPageChunk"
	endpointQueryCollection  = "queryCollection"
	endpointSyncRecordValues = "syncRecordValues"
)

// maxErrorBody bounds how much of an error response ends up in APIError.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API host, e.g. "https://www.notion.so".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Token is the optional token_v2 cookie for private workspaces.
	Token string

	// ActiveUser is the optional x-notion-active-user-header value.
	ActiveUser string

	// Timeout per HTTP request.
	Timeout time.Duration

	// QueryLimit is the page size requested from queryCollection.
	QueryLimit int
}

// DefaultConfig returns a configuration for the public Notion API.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:    "https://www.notion.so",
		UserAgent:  userAgent,
		Timeout:    30 * time.Second,
		QueryLimit: 999,
	}
}

// Client calls the Notion content API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// New creates a new Notion client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 999
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     log.With().Str("component", "notion-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type loadPageChunkRequest struct {
	PageID          string         `json:"pageId"`
	Limit           int            `json:"limit"`
	Cursor          map[string]any `json:"cursor"`
	ChunkNumber     int            `json:"chunkNumber"`
	VerticalColumns bool           `json:"verticalColumns"`
}

type recordMapResponse struct {
	RecordMap *recordmap.RecordMap `json:"recordMap"`
}

// GetPage loads a page's record map. For every collection view block in
// the page it also runs the view's query, filling CollectionQuery with the
// ordered child page ids.
//
// pageID is sent exactly as given.
func (c *Client) GetPage(ctx context.Context, pageID string) (*recordmap.RecordMap, error) {
	if pageid.IsBlank(pageID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPageID, pageID)
	}

	var resp recordMapResponse
	err := c.post(ctx, endpointLoadPageChunk, loadPageChunkRequest{
		PageID:      pageID,
		Limit:       100,
		Cursor:      map[string]any{"stack": []any{}},
		ChunkNumber: 0,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.RecordMap == nil {
		return nil, fmt.Errorf("%w: no recordMap for page %q", ErrInvalidResponse, pageID)
	}
	rm := resp.RecordMap

	if err := c.loadCollectionQueries(ctx, rm); err != nil {
		return nil, err
	}
	return rm, nil
}

type queryCollectionRequest struct {
	Collection     pointerID      `json:"collection"`
	CollectionView pointerID      `json:"collectionView"`
	Loader         map[string]any `json:"loader"`
}

type pointerID struct {
	ID string `json:"id"`
}

type queryCollectionResponse struct {
	Result struct {
		ReducerResults struct {
			CollectionGroupResults *recordmap.GroupResult `json:"collection_group_results"`
		} `json:"reducerResults"`
	} `json:"result"`
	RecordMap *recordmap.RecordMap `json:"recordMap"`
}

// loadCollectionQueries runs queryCollection for each collection view
// block of rm.
func (c *Client) loadCollectionQueries(ctx context.Context, rm *recordmap.RecordMap) error {
	for _, key := range rm.Block.Keys() {
		w, _ := rm.Block.Get(key)
		block, err := w.UnwrapBlock()
		if err != nil || !recordmap.IsCollectionPageType(block.Type) || block.CollectionID == "" {
			continue
		}

		for _, viewID := range block.ViewIDs {
			var resp queryCollectionResponse
			err := c.post(ctx, endpointQueryCollection, queryCollectionRequest{
				Collection:     pointerID{ID: block.CollectionID},
				CollectionView: pointerID{ID: viewID},
				Loader: map[string]any{
					"type": "reducer",
					"reducers": map[string]any{
						"collection_group_results": map[string]any{"type": "results", "limit": c.config.QueryLimit},
					},
					"searchQuery":  "",
					"userTimeZone": "UTC",
				},
			}, &resp)
			if err != nil {
				return fmt.Errorf("query collection %s view %s: %w", block.CollectionID, viewID, err)
			}

			if rm.CollectionQuery == nil {
				rm.CollectionQuery = make(map[string]map[string]recordmap.QueryResult)
			}
			if rm.CollectionQuery[block.CollectionID] == nil {
				rm.CollectionQuery[block.CollectionID] = make(map[string]recordmap.QueryResult)
			}
			rm.CollectionQuery[block.CollectionID][viewID] = recordmap.QueryResult{
				CollectionGroupResults: resp.Result.ReducerResults.CollectionGroupResults,
			}

			if resp.RecordMap != nil {
				rm.Block.Merge(resp.RecordMap.Block)
				rm.Collection.Merge(resp.RecordMap.Collection)
				rm.CollectionView.Merge(resp.RecordMap.CollectionView)
			}

			c.logger.Debug().
				Str("collection_id", block.CollectionID).
				Str("view_id", viewID).
				Int("pages", len(rm.CollectionQuery[block.CollectionID][viewID].PageIDs())).
				Msg("Collection view queried")
		}
	}
	return nil
}

type syncRecordValuesRequest struct {
	Requests []recordRequest `json:"requests"`
}

type recordRequest struct {
	Pointer recordPointer `json:"pointer"`
	Version int           `json:"version"`
}

type recordPointer struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// GetBlocks fetches the blocks of ids in one call.
func (c *Client) GetBlocks(ctx context.Context, ids []string) (recordmap.Table, error) {
	if len(ids) == 0 {
		return recordmap.NewTable(), nil
	}

	req := syncRecordValuesRequest{Requests: make([]recordRequest, 0, len(ids))}
	for _, id := range ids {
		req.Requests = append(req.Requests, recordRequest{
			Pointer: recordPointer{Table: "block", ID: id},
			Version: -1,
		})
	}

	var resp recordMapResponse
	if err := c.post(ctx, endpointSyncRecordValues, req, &resp); err != nil {
		return recordmap.Table{}, err
	}
	if resp.RecordMap == nil {
		return recordmap.Table{}, fmt.Errorf("%w: no recordMap for %d blocks", ErrInvalidResponse, len(ids))
	}
	return resp.RecordMap.Block, nil
}

// post sends one JSON request to an api/v3 endpoint and decodes the
// response into out.
func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	startTime := time.Now()
	defer func() {
		notionRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Token != "" {
		req.AddCookie(&http.Cookie{Name: "token_v2", Value: c.config.Token})
	}
	if c.config.ActiveUser != "" {
		req.Header.Set("x-notion-active-user-header", c.config.ActiveUser)
	}

	c.logger.Debug().Str("endpoint", endpoint).Msg("Executing Notion request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		notionErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		notionRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return &APIError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	notionRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		notionErrorsTotal.WithLabelValues(string(class)).Inc()

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Notion request error")

		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidResponse, endpoint, err)
	}
	return nil
}
