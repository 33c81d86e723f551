package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WishlistItem is a saved product reference.
type WishlistItem struct {
	ProductID string          `json:"productId" validate:"required"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Thumbnail string          `json:"thumbnail,omitempty"`
	AddedAt   time.Time       `json:"addedAt"`
}
