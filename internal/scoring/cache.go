// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scoring

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/metrics"
)

// VectorStore is an optional second cache tier shared across runs.
type VectorStore interface {
	Load(ctx context.Context, key string) ([]float64, bool, error)
	Save(ctx context.Context, key string, vec []float64) error
}

// EmbeddingCache maps image identities to embedding vectors. It is bounded
// (least recently used entries are evicted), safe for concurrent use, and
// write-once per key: a second Put for a key keeps the first vector.
// Concurrent misses on the same key share one computation.
type EmbeddingCache struct {
	capacity int
	tier     VectorStore
	log      *slog.Logger

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	group singleflight.Group
}

type cacheEntry struct {
	key string
	vec []float64
}

// NewEmbeddingCache returns a cache holding at most capacity vectors. A
// non-positive capacity means unbounded, suitable only for a single run.
// tier may be nil.
func NewEmbeddingCache(capacity int, tier VectorStore, log *slog.Logger) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		tier:     tier,
		log:      logger.OrDiscard(log),
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the cached vector for key.
func (c *EmbeddingCache) Get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return cloneVector(el.Value.(*cacheEntry).vec), true
}

// Put stores vec under key unless key is already present.
func (c *EmbeddingCache) Put(key string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, vec: cloneVector(vec)})
	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// GetOrCompute returns the vector for key, consulting memory, then the tier,
// then compute. Computed vectors are written to both levels. Tier errors are
// logged and otherwise ignored. A caller whose ctx ends gets ctx.Err() without
// cancelling the computation for concurrent callers of the same key.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]float64, error)) ([]float64, error) {
	if v, ok := c.Get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}

	// The shared computation outlives any one caller: a waiter whose context
	// ends stops waiting, the others still get the vector.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		ctx := shared
		if v, ok := c.Get(key); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			return v, nil
		}
		if c.tier != nil {
			v, ok, err := c.tier.Load(ctx, key)
			if err != nil {
				c.log.Warn("embedding tier load failed", "key", key, "err", err)
			} else if ok {
				metrics.EmbeddingCacheTotal.WithLabelValues("tier_hit").Inc()
				c.Put(key, v)
				return v, nil
			}
		}

		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		if c.tier != nil {
			if err := c.tier.Save(ctx, key, v); err != nil {
				c.log.Warn("embedding tier save failed", "key", key, "err", err)
			}
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneVector(res.Val.([]float64)), nil
	}
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
