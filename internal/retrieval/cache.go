package retrieval

import (
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
)

// NodeCache keeps materialized nodes across queries, keyed by canonical
// node string. It is safe for concurrent use.
type NodeCache struct {
	nodes  sync.Map
	size   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

func NewNodeCache() *NodeCache {
	return &NodeCache{}
}

func (c *NodeCache) Load(key string) (*iterator.Materialized, bool) {
	v, ok := c.nodes.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v.(*iterator.Materialized), true
}

func (c *NodeCache) Store(key string, m *iterator.Materialized) {
	if _, loaded := c.nodes.LoadOrStore(key, m); !loaded {
		c.size.Add(1)
	}
}

func (c *NodeCache) Len() int { return int(c.size.Load()) }

func (c *NodeCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *NodeCache) Clear() {
	c.nodes.Range(func(k, _ any) bool {
		if _, ok := c.nodes.LoadAndDelete(k); ok {
			c.size.Add(-1)
		}
		return true
	})
}
