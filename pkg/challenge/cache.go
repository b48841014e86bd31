package challenge

import "sync"

// Cache maps endpoints (scheme://host) to the last challenge seen from
// them. Implementations must be safe for concurrent use; a Set replaces
// any existing entry wholesale. Entries carry no TTL; a stale challenge
// only costs one extra discovery round trip.
type Cache interface {
	Get(endpoint string) (*Challenge, bool)
	Set(endpoint string, ch *Challenge)
	Remove(endpoint string)
}

// MapCache is an in-memory Cache backed by sync.Map, matching the
// last-writer-wins semantics concurrent handshakes against the same
// endpoint are allowed to have.
type MapCache struct {
	entries sync.Map
}

// NewMapCache creates an empty cache.
func NewMapCache() *MapCache {
	return &MapCache{}
}

// Get returns the cached challenge for an endpoint, if any.
func (c *MapCache) Get(endpoint string) (*Challenge, bool) {
	v, ok := c.entries.Load(endpoint)
	if !ok {
		return nil, false
	}
	return v.(*Challenge), true
}

// Set stores a challenge for an endpoint, replacing any existing entry.
func (c *MapCache) Set(endpoint string, ch *Challenge) {
	c.entries.Store(endpoint, ch)
}

// Remove drops the entry for an endpoint.
func (c *MapCache) Remove(endpoint string) {
	c.entries.Delete(endpoint)
}
