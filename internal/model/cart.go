package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one cart line, keyed by ProductID.
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Thumbnail string          `json:"thumbnail,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Recalculate sets Subtotal to UnitPrice x Quantity.
func (i *CartItem) Recalculate() {
	i.Subtotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is an active shopping cart. A cart always holds at least one line.
type Cart struct {
	ID        string          `json:"id"`
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Recalculate recomputes every line subtotal and the cart total.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for idx := range c.Items {
		c.Items[idx].Recalculate()
		total = total.Add(c.Items[idx].Subtotal)
	}
	c.Total = total
}

// ItemCount returns the sum of all line quantities.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IndexOf returns the index of the line for productID, or -1.
func (c *Cart) IndexOf(productID string) int {
	for idx, item := range c.Items {
		if item.ProductID == productID {
			return idx
		}
	}
	return -1
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = make([]CartItem, len(c.Items))
	copy(clone.Items, c.Items)
	return &clone
}
