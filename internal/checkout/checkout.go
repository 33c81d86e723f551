// Package checkout computes order summaries and places orders for a shopper.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/validation"
)

// DefaultTaxRate applies when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// Sentinel errors for checkout operations.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidOrder     = errors.New("invalid order request")
)

// Cart is the part of the cart store checkout needs.
type Cart interface {
	Cart() (model.Cart, bool)
	Clear(ctx context.Context) error
}

// Session is the part of the session store checkout needs.
type Session interface {
	IsAuthenticated() bool
	Token() string
}

// OrderCreator places orders remotely.
type OrderCreator interface {
	CreateOrder(ctx context.Context, token string, req model.OrderRequest) (*model.Order, error)
}

// Summary is the order summary shown before checkout.
type Summary struct {
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

// Request is the checkout form.
type Request struct {
	AddressID     string `json:"addressId" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=online cod"`
}

// Service places orders for one shopper.
type Service struct {
	cart    Cart
	session Session
	orders  OrderCreator
	taxRate decimal.Decimal
	logger  *zap.Logger
}

// New creates a checkout Service. A zero taxRate selects DefaultTaxRate.
func New(cart Cart, session Session, orders OrderCreator, taxRate decimal.Decimal, logger *zap.Logger) *Service {
	if taxRate.IsZero() {
		taxRate = DefaultTaxRate
	}
	return &Service{
		cart:    cart,
		session: session,
		orders:  orders,
		taxRate: taxRate,
		logger:  logger,
	}
}

// Summary returns the totals of the current cart. Tax is rounded to whole
// currency units.
func (s *Service) Summary() Summary {
	c, ok := s.cart.Cart()
	if !ok {
		return Summary{Subtotal: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
	}

	tax := c.Total.Mul(s.taxRate).Round(0)
	return Summary{
		ItemCount: c.ItemCount(),
		Subtotal:  c.Total,
		Tax:       tax,
		Total:     c.Total.Add(tax),
	}
}

// PlaceOrder creates a remote order for the current cart and clears the
// cart once the order is accepted.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*model.Order, error) {
	if !s.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if fields := validation.Struct(req); fields != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrder, validation.Join(fields))
	}

	c, ok := s.cart.Cart()
	if !ok || len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	method := req.PaymentMethod
	if method == "" {
		method = model.PaymentMethodOnline
	}

	order, err := s.orders.CreateOrder(ctx, s.session.Token(), model.OrderRequest{
		CartID:        c.ID,
		AddressID:     req.AddressID,
		PaymentMethod: method,
	})
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}

	if err := s.cart.Clear(ctx); err != nil {
		s.logger.Warn("clearing cart after order", zap.String("order_id", order.ID), zap.Error(err))
	}
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("cart_id", c.ID),
		zap.String("payment_method", method),
	)
	return order, nil
}
