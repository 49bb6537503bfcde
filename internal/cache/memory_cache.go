package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"bodega/backend/internal/domain"
)

// MemoryProductCache keeps the listing in process. It only suits a single
// instance whose repository lives in the same process.
type MemoryProductCache struct {
	mu         sync.Mutex
	products   []domain.Product
	expiresAt  time.Time
	generation int64
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryProductCache(ttl time.Duration) *MemoryProductCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryProductCache{ttl: ttl, now: time.Now}
}

func (c *MemoryProductCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.products == nil || !c.now().Before(c.expiresAt) {
		return nil, false, nil
	}
	return slices.Clone(c.products), true, nil
}

func (c *MemoryProductCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *MemoryProductCache) SetProducts(_ context.Context, generation int64, products []domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return ErrGenerationChanged
	}
	c.products = slices.Clone(products)
	if c.products == nil {
		c.products = []domain.Product{}
	}
	c.expiresAt = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryProductCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.products = nil
	return nil
}
