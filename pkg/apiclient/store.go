package apiclient

import "sync"

// CartStore holds the latest cart a screen should render. Responses arrive
// out of order when a slow re-fetch races a fast update, so a response is
// only applied when its version is newer than the one held.
type CartStore struct {
	mu   sync.RWMutex
	cart *CartResponse
}

// Apply stores resp if it is newer and reports whether it did.
func (s *CartStore) Apply(resp *CartResponse) bool {
	if resp == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart != nil && resp.Version <= s.cart.Version {
		return false
	}
	s.cart = resp
	return true
}

func (s *CartStore) Current() *CartResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart
}

// Reset drops the held cart, e.g. on logout.
func (s *CartStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
}
