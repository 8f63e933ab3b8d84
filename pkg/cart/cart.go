// Package cart holds the cart aggregate: an ordered set of line items keyed
// by product id, with quantities always kept within available stock.
package cart

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome describes what a mutation did to one line item.
type Outcome struct {
	ProductID int64
	Quantity  int
	Removed   bool
	// Notice is set when the quantity was clamped to stock. It is not an error.
	Notice *LimitExceededError
}

// Cart is not safe for concurrent use.
type Cart struct {
	order   []int64
	items   map[int64]*LineItem
	version int64
	now     func() time.Time
}

func New() *Cart {
	return &Cart{items: make(map[int64]*LineItem), now: time.Now}
}

// State is the plain serializable form of a cart.
type State struct {
	Items   []LineItem `json:"items"`
	Version int64      `json:"version"`
}

// Restore rebuilds a cart from stored state. Items that no longer satisfy
// the stock bound are clamped, items with no quantity are dropped.
func Restore(s State) (*Cart, error) {
	c := New()
	for _, it := range s.Items {
		if err := it.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.items[it.ProductID]; dup {
			return nil, invalid("items", "duplicate product id")
		}
		res := Clamp(it.Quantity, it.AvailableQuantity)
		if res.Removed {
			continue
		}
		item := it
		item.Quantity = res.Quantity
		c.insert(&item)
	}
	c.version = s.Version
	return c, nil
}

func (c *Cart) State() State {
	return State{Items: c.Items(), Version: c.version}
}

func (c *Cart) Version() int64 {
	return c.version
}

func (c *Cart) Add(item LineItem, quantity int) (Outcome, error) {
	if err := item.validate(); err != nil {
		return Outcome{}, err
	}

	requested := quantity
	existing, ok := c.items[item.ProductID]
	if ok {
		requested = mergedQuantity(existing.Quantity, quantity)
	}

	res := Clamp(requested, item.AvailableQuantity)
	out := outcome(item.ProductID, requested, item.AvailableQuantity, res)

	if res.Removed {
		if ok {
			c.delete(item.ProductID)
			c.version++
		}
		return out, nil
	}

	if ok {
		addedAt := existing.AddedAt
		*existing = item
		existing.AddedAt = addedAt
		existing.Quantity = res.Quantity
	} else {
		stored := item
		stored.Quantity = res.Quantity
		if stored.AddedAt.IsZero() {
			stored.AddedAt = c.now()
		}
		c.insert(&stored)
	}
	c.version++
	return out, nil
}

// Update replaces the quantity of an item already in the cart.
func (c *Cart) Update(productID int64, newQuantity int) (Outcome, error) {
	existing, ok := c.items[productID]
	if !ok {
		return Outcome{}, invalid("product_id", "product is not in the cart")
	}

	res := Clamp(newQuantity, existing.AvailableQuantity)
	out := outcome(productID, newQuantity, existing.AvailableQuantity, res)
	if res.Removed {
		c.delete(productID)
		c.version++
		return out, nil
	}
	if existing.Quantity != res.Quantity {
		existing.Quantity = res.Quantity
		c.version++
	}
	return out, nil
}

// Remove deletes the item. Removing an absent item is a no-op.
func (c *Cart) Remove(productID int64) {
	if _, ok := c.items[productID]; !ok {
		return
	}
	c.delete(productID)
	c.version++
}

func (c *Cart) Clear() {
	if len(c.order) == 0 {
		return
	}
	c.order = nil
	c.items = make(map[int64]*LineItem)
	c.version++
}

// Reconcile refreshes the available stock of every item and re-clamps it.
// Products missing from stock are treated as sold out.
func (c *Cart) Reconcile(stock map[int64]int) []Outcome {
	var changed []Outcome
	for _, id := range append([]int64(nil), c.order...) {
		if out, ok := c.SetAvailable(id, stock[id]); ok {
			changed = append(changed, out)
		}
	}
	return changed
}

// SetAvailable refreshes the stock of one item and re-clamps its quantity.
// It reports false when the item is absent or nothing changed.
func (c *Cart) SetAvailable(productID int64, available int) (Outcome, bool) {
	item, ok := c.items[productID]
	if !ok {
		return Outcome{}, false
	}
	res := Clamp(item.Quantity, available)
	if !res.Limited && available == item.AvailableQuantity {
		return Outcome{}, false
	}

	out := outcome(productID, item.Quantity, available, res)
	if res.Removed {
		c.delete(productID)
	} else {
		item.AvailableQuantity = available
		item.Quantity = res.Quantity
	}
	c.version++
	return out, true
}

func (c *Cart) Len() int {
	return len(c.order)
}

func (c *Cart) Item(productID int64) (LineItem, bool) {
	it, ok := c.items[productID]
	if !ok {
		return LineItem{}, false
	}
	return *it, true
}

// Items returns a copy of the line items in display order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

func (c *Cart) TotalItems() int {
	total := 0
	for _, it := range c.items {
		total += it.Quantity
	}
	return total
}

func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// GroupBySeller splits the items by seller, keeping the order in which each
// seller first appears.
func (c *Cart) GroupBySeller() []SellerGroup {
	var groups []SellerGroup
	index := make(map[int64]int)
	for _, id := range c.order {
		it := *c.items[id]
		i, ok := index[it.SellerID]
		if !ok {
			i = len(groups)
			index[it.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: it.SellerID, SellerName: it.SellerName, Subtotal: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, it)
		groups[i].Subtotal = groups[i].Subtotal.Add(it.LineTotal())
	}
	return groups
}

func (c *Cart) insert(item *LineItem) {
	c.items[item.ProductID] = item
	c.order = append(c.order, item.ProductID)
}

func (c *Cart) delete(productID int64) {
	delete(c.items, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// mergedQuantity adds quantity onto current, saturating at math.MaxInt so a
// huge request clamps to stock instead of wrapping negative.
func mergedQuantity(current, quantity int) int {
	if quantity > 0 && current > math.MaxInt-quantity {
		return math.MaxInt
	}
	return current + quantity
}

func outcome(productID int64, requested, available int, res ClampResult) Outcome {
	out := Outcome{ProductID: productID, Quantity: res.Quantity, Removed: res.Removed}
	if res.Limited {
		if available < 0 {
			available = 0
		}
		out.Notice = &LimitExceededError{ProductID: productID, Requested: requested, Available: available}
	}
	return out
}
