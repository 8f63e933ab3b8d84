package apiclient

import "sync"

// inflight tracks which products have a mutation request outstanding.
type inflight struct {
	mu    sync.Mutex
	items map[int64]struct{}
}

func newInflight() *inflight {
	return &inflight{items: make(map[int64]struct{})}
}

func (f *inflight) acquire(productID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.items[productID]; busy {
		return false
	}
	f.items[productID] = struct{}{}
	return true
}

func (f *inflight) release(productID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, productID)
}

func (f *inflight) busy(productID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[productID]
	return ok
}
