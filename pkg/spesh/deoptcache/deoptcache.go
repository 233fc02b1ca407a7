// Package deoptcache provides a bounded cache of resolved inactive-frame
// deopt indices (see SPEC_FULL.md §4.3), backed by
// github.com/hashicorp/golang-lru -- the same caching library delve itself
// depends on. It exists purely to avoid repeating a linear scan of a large
// candidate's deopt table on every DeoptAll walk over a deep call chain;
// spesh.Deoptimizer works correctly (just slower) with a nil cache.
package deoptcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/scovit/spesh/pkg/spesh"
)

// Cache implements spesh.DeoptIndexCache.
type Cache struct {
	lru *lru.Cache
}

// New constructs a Cache holding up to size resolved lookups. size must be
// positive.
func New(size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

type entryKey struct {
	cand      *spesh.Candidate
	retOffset uint32
}

func (c *Cache) Get(cand *spesh.Candidate, retOffset uint32) (int32, bool) {
	v, ok := c.lru.Get(entryKey{cand, retOffset})
	if !ok {
		return -1, false
	}
	return v.(int32), true
}

func (c *Cache) Add(cand *spesh.Candidate, retOffset uint32, idx int32) {
	c.lru.Add(entryKey{cand, retOffset}, idx)
}

// String renders a cache entry key for debug logging.
func (k entryKey) String() string {
	return fmt.Sprintf("%p@%d", k.cand, k.retOffset)
}
