package cart

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tomatoes() LineItem {
	return LineItem{ProductID: 1, Name: "Tomatoes", UnitPrice: decimal.RequireFromString("2.99"), AvailableQuantity: 50, SellerID: 10, SellerName: "Green Farm"}
}

func onions() LineItem {
	return LineItem{ProductID: 2, Name: "Onions", UnitPrice: decimal.RequireFromString("3.50"), AvailableQuantity: 20, SellerID: 11, SellerName: "Market Hall"}
}

func TestAdd_NewItem(t *testing.T) {
	c := New()
	out, err := c.Add(tomatoes(), 3)
	require.NoError(t, err)

	assert.Nil(t, out.Notice)
	assert.Equal(t, 3, out.Quantity)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 3, c.TotalItems())
	assert.Equal(t, int64(1), c.Version())

	item, ok := c.Item(1)
	require.True(t, ok)
	assert.False(t, item.AddedAt.IsZero())
}

func TestAdd_MergesQuantity(t *testing.T) {
	c := New()
	_, err := c.Add(tomatoes(), 2)
	require.NoError(t, err)
	_, err = c.Add(tomatoes(), 5)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
	item, _ := c.Item(1)
	assert.Equal(t, 7, item.Quantity)
}

func TestAdd_ClampsWithNotice(t *testing.T) {
	c := New()
	item := LineItem{ProductID: 3, Name: "Mangoes", UnitPrice: decimal.NewFromInt(1), AvailableQuantity: 5}

	out, err := c.Add(item, 7)
	require.NoError(t, err)
	require.NotNil(t, out.Notice)
	assert.Equal(t, &LimitExceededError{ProductID: 3, Requested: 7, Available: 5}, out.Notice)

	stored, ok := c.Item(3)
	require.True(t, ok)
	assert.Equal(t, 5, stored.Quantity)
}

func TestAdd_MergeAboveStockClamps(t *testing.T) {
	c := New()
	item := onions()
	_, err := c.Add(item, 15)
	require.NoError(t, err)

	out, err := c.Add(item, 10)
	require.NoError(t, err)
	require.NotNil(t, out.Notice)
	assert.Equal(t, 25, out.Notice.Requested)

	stored, _ := c.Item(2)
	assert.Equal(t, 20, stored.Quantity)
}

func TestAdd_HugeQuantityMergeClampsInsteadOfRemoving(t *testing.T) {
	c := New()
	item := LineItem{ProductID: 3, Name: "Plantain", UnitPrice: decimal.RequireFromString("1.20"), AvailableQuantity: 5}
	_, err := c.Add(item, 2)
	require.NoError(t, err)

	out, err := c.Add(item, math.MaxInt)
	require.NoError(t, err)
	assert.False(t, out.Removed)
	assert.Equal(t, 5, out.Quantity)
	require.NotNil(t, out.Notice)
	assert.Equal(t, 5, out.Notice.Available)
	assert.Equal(t, math.MaxInt, out.Notice.Requested)

	stored, ok := c.Item(3)
	require.True(t, ok)
	assert.Equal(t, 5, stored.Quantity)

	out, err = New().Add(item, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Quantity)
	assert.NotNil(t, out.Notice)
}

func TestAdd_RefreshesProductData(t *testing.T) {
	c := New()
	_, err := c.Add(tomatoes(), 1)
	require.NoError(t, err)
	first, _ := c.Item(1)

	updated := tomatoes()
	updated.UnitPrice = decimal.RequireFromString("3.10")
	_, err = c.Add(updated, 1)
	require.NoError(t, err)

	stored, _ := c.Item(1)
	assert.True(t, stored.UnitPrice.Equal(decimal.RequireFromString("3.10")))
	assert.Equal(t, first.AddedAt, stored.AddedAt)
}

func TestAdd_SoldOutDoesNotInsert(t *testing.T) {
	c := New()
	item := tomatoes()
	item.AvailableQuantity = 0

	out, err := c.Add(item, 2)
	require.NoError(t, err)
	assert.True(t, out.Removed)
	assert.NotNil(t, out.Notice)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Version())
}

func TestAdd_InvalidItem(t *testing.T) {
	c := New()

	_, err := c.Add(LineItem{Name: "no id", AvailableQuantity: 1}, 1)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "product_id", verr.Field)

	item := tomatoes()
	item.UnitPrice = decimal.NewFromInt(-1)
	_, err = c.Add(item, 1)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "unit_price", verr.Field)
}

func TestUpdate_ZeroRemoves(t *testing.T) {
	c := New()
	_, _ = c.Add(tomatoes(), 3)
	_, _ = c.Add(onions(), 2)

	out, err := c.Update(1, 0)
	require.NoError(t, err)
	assert.True(t, out.Removed)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ProductID)
}

func TestUpdate_ClampsToStock(t *testing.T) {
	c := New()
	_, _ = c.Add(onions(), 2)

	out, err := c.Update(2, 40)
	require.NoError(t, err)
	require.NotNil(t, out.Notice)
	assert.Equal(t, 20, out.Quantity)
}

func TestUpdate_MissingProduct(t *testing.T) {
	c := New()
	_, err := c.Update(99, 1)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestUpdate_SameQuantityKeepsVersion(t *testing.T) {
	c := New()
	_, _ = c.Add(onions(), 2)
	v := c.Version()

	_, err := c.Update(2, 2)
	require.NoError(t, err)
	assert.Equal(t, v, c.Version())
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	c := New()
	_, _ = c.Add(tomatoes(), 1)
	v := c.Version()

	c.Remove(42)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, v, c.Version())

	c.Remove(1)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, v+1, c.Version())
}

func TestClear(t *testing.T) {
	c := New()
	_, _ = c.Add(tomatoes(), 1)
	_, _ = c.Add(onions(), 1)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.TotalItems())
	assert.True(t, c.Subtotal().IsZero())
}

func TestSubtotal_Example(t *testing.T) {
	c := New()
	_, _ = c.Add(tomatoes(), 3)
	_, _ = c.Add(onions(), 2)

	assert.Equal(t, "15.97", c.Subtotal().StringFixed(2))
	assert.Equal(t, 5, c.TotalItems())
}

func TestSubtotal_NoDriftAfterRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := New()
	catalog := []LineItem{tomatoes(), onions(), {ProductID: 3, UnitPrice: decimal.RequireFromString("0.35"), AvailableQuantity: 9}}

	for i := 0; i < 500; i++ {
		item := catalog[rng.Intn(len(catalog))]
		switch rng.Intn(4) {
		case 0, 1:
			_, err := c.Add(item, rng.Intn(8)-1)
			require.NoError(t, err)
		case 2:
			if _, ok := c.Item(item.ProductID); ok {
				_, err := c.Update(item.ProductID, rng.Intn(12)-2)
				require.NoError(t, err)
			}
		case 3:
			c.Remove(item.ProductID)
		}

		want := decimal.Zero
		for _, it := range c.Items() {
			assert.GreaterOrEqual(t, it.Quantity, 1)
			assert.LessOrEqual(t, it.Quantity, it.AvailableQuantity)
			want = want.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		require.True(t, want.Equal(c.Subtotal()), "step %d", i)
	}
}

func TestItems_InsertionOrderAndCopy(t *testing.T) {
	c := New()
	_, _ = c.Add(onions(), 1)
	_, _ = c.Add(tomatoes(), 1)

	items := c.Items()
	assert.Equal(t, int64(2), items[0].ProductID)
	assert.Equal(t, int64(1), items[1].ProductID)

	items[0].Quantity = 99
	stored, _ := c.Item(2)
	assert.Equal(t, 1, stored.Quantity)
}

func TestReconcile(t *testing.T) {
	c := New()
	_, _ = c.Add(tomatoes(), 10)
	_, _ = c.Add(onions(), 2)

	changed := c.Reconcile(map[int64]int{1: 4})

	require.Len(t, changed, 2)
	assert.Equal(t, 4, changed[0].Quantity)
	assert.NotNil(t, changed[0].Notice)
	assert.True(t, changed[1].Removed)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, 4, items[0].AvailableQuantity)
}

func TestRestore_RoundTripAndClamp(t *testing.T) {
	over := onions()
	over.Quantity = 30
	gone := tomatoes()
	gone.Quantity = 0

	c, err := Restore(State{Items: []LineItem{over, gone}, Version: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.Version())
	require.Equal(t, 1, c.Len())
	item, _ := c.Item(2)
	assert.Equal(t, 20, item.Quantity)

	again, err := Restore(c.State())
	require.NoError(t, err)
	assert.Equal(t, c.Items(), again.Items())
}

func TestRestore_RejectsDuplicates(t *testing.T) {
	a := tomatoes()
	a.Quantity = 1
	_, err := Restore(State{Items: []LineItem{a, a}})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestGroupBySeller(t *testing.T) {
	c := New()
	second := tomatoes()
	second.ProductID = 5
	second.UnitPrice = decimal.NewFromInt(1)

	_, _ = c.Add(tomatoes(), 1)
	_, _ = c.Add(onions(), 2)
	_, _ = c.Add(second, 3)

	groups := c.GroupBySeller()
	require.Len(t, groups, 2)
	assert.Equal(t, int64(10), groups[0].SellerID)
	assert.Len(t, groups[0].Items, 2)
	assert.Equal(t, "5.99", groups[0].Subtotal.StringFixed(2))
	assert.Equal(t, "7.00", groups[1].Subtotal.StringFixed(2))
}

func TestSetAvailable(t *testing.T) {
	c := New()
	_, _ = c.Add(onions(), 4)
	v := c.Version()

	_, changed := c.SetAvailable(2, 20)
	assert.False(t, changed)
	assert.Equal(t, v, c.Version())

	out, changed := c.SetAvailable(2, 30)
	assert.True(t, changed)
	assert.Nil(t, out.Notice)
	item, _ := c.Item(2)
	assert.Equal(t, 30, item.AvailableQuantity)
	assert.Equal(t, 4, item.Quantity)

	_, changed = c.SetAvailable(77, 1)
	assert.False(t, changed)
}
