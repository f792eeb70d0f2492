package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Sternrassler/notion-posts/pkg/pageid"
)

// CacheKey identifies a cached resource of a Notion page.
type CacheKey struct {
	// Resource is the kind of cached data, e.g. "posts".
	Resource string

	// PageID is the root page. Any spelling of the same id maps to the
	// same key.
	PageID string

	// QueryParams are optional variants of the resource.
	QueryParams url.Values
}

// PostsKey returns the key of the post list below rootPageID.
func PostsKey(rootPageID string) CacheKey {
	return CacheKey{Resource: "posts", PageID: rootPageID}
}

// String generates a deterministic cache key string.
// Format: notion:resource:page-id:query1=val1
//
// Example:
//
//	notion:posts:3f2504e0-4f89-41d3-9a0c-0305e82c3301
func (k CacheKey) String() string {
	parts := []string{"notion"}

	if resource := strings.Trim(k.Resource, ":/ "); resource != "" {
		parts = append(parts, resource)
	}
	if !pageid.IsBlank(k.PageID) {
		parts = append(parts, pageid.Canonical(k.PageID))
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
