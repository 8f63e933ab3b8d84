package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryCatalog keeps products in memory. It backs local runs without a
// catalog database and the service tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[int64]*Product
}

func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[int64]*Product)}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

func (c *MemoryCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := p
	c.products[p.ID] = &stored
}

func (c *MemoryCatalog) SetStock(_ context.Context, id int64, stock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock = stock
	return nil
}

func (c *MemoryCatalog) GetProduct(_ context.Context, id int64) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *MemoryCatalog) GetProducts(_ context.Context, ids []int64) (map[int64]*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]*Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

// GetAllProducts returns every product ordered by id.
func (c *MemoryCatalog) GetAllProducts(_ context.Context) ([]*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Product, 0, len(c.products))
	for _, p := range c.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
