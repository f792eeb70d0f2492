package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CacheEntry is a cached, encoded response body.
type CacheEntry struct {
	// Data is the encoded body.
	Data []byte `json:"data"`

	// ETag is a strong validator derived from Data.
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was created. It doubles as Last-Modified.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry wraps data with an ETag and an expiry ttl from now.
func NewEntry(data []byte, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     data,
		ETag:     ETag(data),
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// ETag returns the quoted strong entity tag of data.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
