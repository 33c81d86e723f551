// Package model defines data structures used throughout the application.
package model

import (
	"github.com/shopspring/decimal"
)

// CategoryRef is the category summary embedded in a product.
type CategoryRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product is a catalog entry as served by the remote API.
type Product struct {
	ID               string          `json:"_id"`
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	SKU              string          `json:"sku"`
	ShortDescription string          `json:"shortDescription"`
	Description      string          `json:"description"`
	Category         CategoryRef     `json:"category"`
	Tags             []string        `json:"tags,omitempty"`
	Price            decimal.Decimal `json:"price"`
	OriginalPrice    decimal.Decimal `json:"originalPrice"`
	Thumbnail        string          `json:"thumbnail"`
	Gallery          []string        `json:"gallery,omitempty"`
	StockStatus      string          `json:"stockStatus,omitempty"`
	IsActive         bool            `json:"isActive"`
}

// Category is a catalog category.
type Category struct {
	ID             string  `json:"_id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	Description    string  `json:"description"`
	Image          string  `json:"image"`
	ParentCategory *string `json:"parentCategory"`
	SortOrder      int     `json:"sortOrder"`
	IsActive       bool    `json:"isActive"`
}
