package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods accepted by the remote order endpoint.
const (
	PaymentMethodOnline = "online"
	PaymentMethodCOD    = "cod"
)

// OrderRequest is the body of a remote order creation call.
type OrderRequest struct {
	CartID        string `json:"cartId"`
	AddressID     string `json:"addressId"`
	PaymentMethod string `json:"paymentMethod"`
}

// Order is an order as returned by the remote API.
type Order struct {
	ID            string          `json:"_id"`
	OrderNumber   string          `json:"orderNumber,omitempty"`
	CartID        string          `json:"cartId,omitempty"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
}
