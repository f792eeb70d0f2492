// Package cache stores assembled post lists in Redis.
//
// Assembling a post list costs one page fetch plus one block fetch per five
// child pages, each paced and retried. The HTTP service keeps the encoded
// result for a configured TTL and serves it with an ETag so clients can
// revalidate with If-None-Match.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	postsCache := cache.NewPostsCache(cache.NewManager(redisClient), 5*time.Minute)
//
//	list, entry, err := postsCache.Get(ctx, rootPageID)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		list = assembler.Assemble(ctx, rootPageID)
//		entry, err = postsCache.Put(ctx, rootPageID, list)
//	}
//
// Empty lists are never stored: an empty result means Notion could not be
// read, and caching it would hide the posts until the entry expires.
//
// # Conditional Requests
//
//	if cache.NotModified(req, entry) {
//		w.WriteHeader(http.StatusNotModified)
//		return
//	}
//	cache.WriteHeaders(w, entry)
//
// # Metrics
//
//   - notion_cache_hits_total{layer="redis"} - Cache hits
//   - notion_cache_misses_total - Cache misses
//   - notion_cache_size_bytes{layer="redis"} - Bytes written to the cache
//   - notion_cache_304_responses_total - Revalidations answered with 304
//   - notion_cache_errors_total{operation} - Cache operation errors
package cache
