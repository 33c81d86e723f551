// Package handler provides the HTTP and WebSocket handlers of the storefront
// state service.
package handler

import (
	"github.com/vyrodovalexey/storefront-state/internal/model"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// WishlistResponse is the wishlist as returned by the API.
type WishlistResponse struct {
	Items []model.WishlistItem `json:"items"`
	Count int                  `json:"count"`
}

// ToggleResponse reports the outcome of a wishlist toggle.
type ToggleResponse struct {
	Added    bool             `json:"added"`
	Wishlist WishlistResponse `json:"wishlist"`
}

// RecaptchaConfigResponse carries the public anti-abuse site key.
type RecaptchaConfigResponse struct {
	SiteKey string `json:"siteKey"`
}

// AddItemRequest is the body of POST /api/v1/cart/items.
type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"max=9999"`
}

// SetQuantityRequest is the body of PUT /api/v1/cart/items/{productId}.
type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"max=9999"`
}

// LoginRequest is the body of POST /api/v1/session/login.
type LoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}
