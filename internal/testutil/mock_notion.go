// Package testutil provides testing utilities for the Notion posts client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Notion api/v3 paths served by the mock.
const (
	PathLoadPageChunk    = "/api/v3/loadPageChunk"
	PathQueryCollection  = "/api/v3/queryCollection"
	PathSyncRecordValues = "/api/v3/syncRecordValues"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockNotion is a configurable mock Notion API server for testing.
type MockNotion struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	failures map[string][]MockResponse

	requests   map[string]int
	lastHeader http.Header
}

// NewMockNotion creates a new mock Notion server.
func NewMockNotion() *MockNotion {
	mock := &MockNotion{
		handlers: make(map[string]http.HandlerFunc),
		failures: make(map[string][]MockResponse),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()

		// Queued failures are served before the regular handler.
		if queue := mock.failures[r.URL.Path]; len(queue) > 0 {
			resp := queue[0]
			mock.failures[r.URL.Path] = queue[1:]
			mock.mu.Unlock()
			writeResponse(w, resp)
			return
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		writeResponse(w, MockResponse{
			StatusCode: http.StatusNotFound,
			Body:       `{"errorId": "mock", "name": "NotFound", "message": "no handler"}`,
		})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockNotion) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockNotion) Close() {
	m.server.Close()
}

// Reset clears request counters and queued failures.
func (m *MockNotion) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.failures = make(map[string][]MockResponse)
	m.lastHeader = nil
}

// SetHandler sets a custom handler for a path.
func (m *MockNotion) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockNotion) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// FailNext makes the next n requests to path answer with resp.
func (m *MockNotion) FailNext(path string, n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures[path] = append(m.failures[path], resp)
	}
}

// RequestCount returns the number of requests made to path.
func (m *MockNotion) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests made to any path.
func (m *MockNotion) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockNotion) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// NewOverloadResponse creates a 429 Too Many Requests response.
func NewOverloadResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errorId": "mock", "name": "RateLimitedError", "message": "You have been rate limited."}`,
		Headers:    map[string]string{"Retry-After": "1"},
	}
}

// NewServerErrorResponse creates a 502 Bad Gateway response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       `{"errorId": "mock", "name": "BadGateway", "message": "upstream failed"}`,
	}
}

// FixturePage is a child page served by ServeBlog.
type FixturePage struct {
	ID          string
	Title       string
	Date        string
	Tags        string
	CreatedTime int64
	FullWidth   bool
}

// BlogFixture describes a collection page with child pages.
type BlogFixture struct {
	RootID       string
	RootType     string
	CollectionID string
	ViewID       string

	// Nested wraps every record under "value" like newer API versions.
	Nested bool

	Pages []FixturePage
}

// Property ids of the fixture schema.
const (
	PropTitle = "title"
	PropDate  = "d:Xy"
	PropTags  = "t:Ab"
)

// ServeBlog installs loadPageChunk, queryCollection and syncRecordValues
// handlers serving f.
func (m *MockNotion) ServeBlog(f BlogFixture) {
	if f.RootType == "" {
		f.RootType = "collection_view_page"
	}

	wrap := func(v map[string]any) map[string]any {
		if f.Nested {
			return map[string]any{"role": "reader", "value": v}
		}
		return v
	}

	pages := make(map[string]map[string]any, len(f.Pages))
	ids := make([]string, 0, len(f.Pages))
	for _, p := range f.Pages {
		props := map[string]any{PropTitle: [][]any{{p.Title}}}
		if p.Date != "" {
			props[PropDate] = [][]any{{"‣", [][]any{{"d", map[string]any{"type": "date", "start_date": p.Date}}}}}
		}
		if p.Tags != "" {
			props[PropTags] = [][]any{{p.Tags}}
		}
		block := map[string]any{
			"id":           p.ID,
			"type":         "page",
			"alive":        true,
			"parent_id":    f.CollectionID,
			"parent_table": "collection",
			"created_time": p.CreatedTime,
			"properties":   props,
		}
		if p.FullWidth {
			block["format"] = map[string]any{"page_full_width": true}
		}
		pages[p.ID] = wrap(block)
		ids = append(ids, p.ID)
	}

	m.SetHandler(PathLoadPageChunk, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"recordMap": map[string]any{
				"block": map[string]any{
					f.RootID: wrap(map[string]any{
						"id":            f.RootID,
						"type":          f.RootType,
						"collection_id": f.CollectionID,
						"view_ids":      []string{f.ViewID},
					}),
				},
				"collection": map[string]any{
					f.CollectionID: wrap(map[string]any{
						"id": f.CollectionID,
						"schema": map[string]any{
							PropTitle: map[string]string{"name": "title", "type": "title"},
							PropDate:  map[string]string{"name": "date", "type": "date"},
							PropTags:  map[string]string{"name": "tags", "type": "multi_select"},
						},
					}),
				},
				"collection_view": map[string]any{
					f.ViewID: wrap(map[string]any{"id": f.ViewID, "type": "table"}),
				},
			},
			"cursor": map[string]any{"stack": []any{}},
		})
	})

	m.SetHandler(PathQueryCollection, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"result": map[string]any{
				"type": "reducer",
				"reducerResults": map[string]any{
					"collection_group_results": map[string]any{"type": "results", "blockIds": ids, "hasMore": false},
				},
			},
			"recordMap": map[string]any{"block": map[string]any{}},
		})
	})

	m.SetHandler(PathSyncRecordValues, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Requests []struct {
				Pointer struct {
					ID string `json:"id"`
				} `json:"pointer"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf(`{"message": %q}`, err.Error())})
			return
		}

		blocks := make(map[string]any)
		for _, rq := range req.Requests {
			if page, ok := pages[rq.Pointer.ID]; ok {
				blocks[rq.Pointer.ID] = page
			}
		}
		writeJSON(w, map[string]any{"recordMap": map[string]any{"block": blocks}})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
