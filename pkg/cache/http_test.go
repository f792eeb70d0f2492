package cache

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNotModified(t *testing.T) {
	entry := &CacheEntry{
		ETag:     `"abc123"`,
		CachedAt: time.Now().Add(-1 * time.Hour),
		Expires:  time.Now().Add(time.Hour),
	}

	tests := []struct {
		name    string
		headers map[string]string
		entry   *CacheEntry
		want    bool
	}{
		{name: "no conditional headers", entry: entry, want: false},
		{name: "matching etag", headers: map[string]string{"If-None-Match": `"abc123"`}, entry: entry, want: true},
		{name: "weak matching etag", headers: map[string]string{"If-None-Match": `W/"abc123"`}, entry: entry, want: true},
		{name: "etag in list", headers: map[string]string{"If-None-Match": `"x", "abc123"`}, entry: entry, want: true},
		{name: "wildcard", headers: map[string]string{"If-None-Match": `*`}, entry: entry, want: true},
		{name: "different etag", headers: map[string]string{"If-None-Match": `"other"`}, entry: entry, want: false},
		{
			name: "etag wins over modified since",
			headers: map[string]string{
				"If-None-Match":     `"other"`,
				"If-Modified-Since": time.Now().UTC().Format(http.TimeFormat),
			},
			entry: entry,
			want:  false,
		},
		{name: "not modified since", headers: map[string]string{"If-Modified-Since": time.Now().UTC().Format(http.TimeFormat)}, entry: entry, want: true},
		{name: "modified since", headers: map[string]string{"If-Modified-Since": time.Now().Add(-2 * time.Hour).UTC().Format(http.TimeFormat)}, entry: entry, want: false},
		{name: "bad date", headers: map[string]string{"If-Modified-Since": "yesterday"}, entry: entry, want: false},
		{name: "nil entry", headers: map[string]string{"If-None-Match": `"abc123"`}, entry: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/posts", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := NotModified(req, tt.entry); got != tt.want {
				t.Errorf("NotModified() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteHeaders(t *testing.T) {
	entry := NewEntry([]byte(`[]`), 10*time.Minute)
	rec := httptest.NewRecorder()

	WriteHeaders(rec, entry)

	if got := rec.Header().Get("ETag"); got != entry.ETag {
		t.Errorf("ETag = %q, want %q", got, entry.ETag)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.HasPrefix(got, "public, max-age=") {
		t.Errorf("Cache-Control = %q", got)
	}
	if rec.Header().Get("Last-Modified") == "" || rec.Header().Get("Expires") == "" {
		t.Error("Expected Last-Modified and Expires headers")
	}
}

func TestWriteHeaders_NilEntry(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHeaders(rec, nil)
	if len(rec.Header()) != 0 {
		t.Errorf("Expected no headers, got %v", rec.Header())
	}
}
