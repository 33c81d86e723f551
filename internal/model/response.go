package model

import "time"

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StoreEvent types.
const (
	EventTypeCart     = "cart"
	EventTypeWishlist = "wishlist"
	EventTypeSession  = "session"
	EventTypePing     = "ping"
)

// StoreEvent notifies UI connections that a shopper store changed.
type StoreEvent struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewStoreEvent creates a StoreEvent stamped with the current time.
func NewStoreEvent(eventType, clientID string, data any) StoreEvent {
	return StoreEvent{
		Type:      eventType,
		ClientID:  clientID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
