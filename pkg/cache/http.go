package cache

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NotModified reports whether req already holds entry, by If-None-Match or,
// without one, by If-Modified-Since. A true result is counted as a 304.
func NotModified(req *http.Request, entry *CacheEntry) bool {
	if req == nil || entry == nil {
		return false
	}

	if inm := req.Header.Get("If-None-Match"); inm != "" {
		if entry.ETag == "" || !etagMatches(inm, entry.ETag) {
			return false
		}
		ConditionalRequests.Inc()
		return true
	}

	if ims := req.Header.Get("If-Modified-Since"); ims != "" && !entry.CachedAt.IsZero() {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		// HTTP dates have second precision.
		if entry.CachedAt.Truncate(time.Second).After(since) {
			return false
		}
		ConditionalRequests.Inc()
		return true
	}

	return false
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}

// WriteHeaders sets the validators and freshness of entry on w.
func WriteHeaders(w http.ResponseWriter, entry *CacheEntry) {
	if entry == nil {
		return
	}
	h := w.Header()
	if entry.ETag != "" {
		h.Set("ETag", entry.ETag)
	}
	if !entry.CachedAt.IsZero() {
		h.Set("Last-Modified", entry.CachedAt.UTC().Format(http.TimeFormat))
	}
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(entry.TTL().Seconds())))
	if !entry.Expires.IsZero() {
		h.Set("Expires", entry.Expires.UTC().Format(http.TimeFormat))
	}
}
