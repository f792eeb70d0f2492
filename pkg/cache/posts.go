package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/notion-posts/pkg/posts"
)

// ErrEmptyPosts is returned by PostsCache.Put for an empty list.
var ErrEmptyPosts = errors.New("empty post list is not cached")

// DefaultTTL is how long an assembled post list is served from cache.
const DefaultTTL = 5 * time.Minute

// PostsCache stores assembled post lists keyed by root page id.
type PostsCache struct {
	manager *Manager
	ttl     time.Duration
}

// NewPostsCache creates a post list cache. A ttl <= 0 uses DefaultTTL.
func NewPostsCache(manager *Manager, ttl time.Duration) *PostsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostsCache{manager: manager, ttl: ttl}
}

// TTL returns the configured time to live.
func (c *PostsCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached list below rootPageID and its entry.
// Returns ErrCacheMiss when nothing usable is cached.
func (c *PostsCache) Get(ctx context.Context, rootPageID string) ([]posts.Post, *CacheEntry, error) {
	entry, err := c.manager.Get(ctx, PostsKey(rootPageID))
	if err != nil {
		return nil, nil, err
	}

	var list []posts.Post
	if err := json.Unmarshal(entry.Data, &list); err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return list, entry, nil
}

// Put encodes list and stores it. The entry is returned even for an empty
// list so callers can serve it, but empty lists are not stored and
// ErrEmptyPosts is returned alongside.
func (c *PostsCache) Put(ctx context.Context, rootPageID string, list []posts.Post) (*CacheEntry, error) {
	if list == nil {
		list = []posts.Post{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal posts: %w", err)
	}

	entry := NewEntry(data, c.ttl)
	if len(list) == 0 {
		return entry, ErrEmptyPosts
	}
	if err := c.manager.Set(ctx, PostsKey(rootPageID), entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Invalidate drops the cached list below rootPageID.
func (c *PostsCache) Invalidate(ctx context.Context, rootPageID string) error {
	return c.manager.Delete(ctx, PostsKey(rootPageID))
}
