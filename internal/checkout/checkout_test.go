package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
)

type fakeCart struct {
	cart    *model.Cart
	cleared bool
}

func (f *fakeCart) Cart() (model.Cart, bool) {
	if f.cart == nil {
		return model.Cart{}, false
	}
	return *f.cart.Clone(), true
}

func (f *fakeCart) Clear(context.Context) error {
	f.cart = nil
	f.cleared = true
	return nil
}

type fakeSession struct {
	token string
}

func (f fakeSession) IsAuthenticated() bool { return f.token != "" }
func (f fakeSession) Token() string         { return f.token }

type fakeOrders struct {
	order *model.Order
	err   error
	calls []model.OrderRequest
	token string
}

func (f *fakeOrders) CreateOrder(_ context.Context, token string, req model.OrderRequest) (*model.Order, error) {
	f.calls = append(f.calls, req)
	f.token = token
	return f.order, f.err
}

func cartWithTotal(total int64, qty int) *model.Cart {
	c := &model.Cart{
		ID:    "local-1",
		Items: []model.CartItem{{ProductID: "p1", UnitPrice: decimal.NewFromInt(total / int64(qty)), Quantity: qty}},
	}
	c.Recalculate()
	return c
}

func TestService_Summary(t *testing.T) {
	tests := []struct {
		name      string
		cart      *model.Cart
		rate      decimal.Decimal
		wantCount int
		wantTax   int64
		wantTotal int64
	}{
		{"empty cart", nil, decimal.Zero, 0, 0, 0},
		{"default rate", cartWithTotal(1000, 2), decimal.Zero, 2, 180, 1180},
		{"rounds tax", cartWithTotal(99, 1), decimal.Zero, 1, 18, 117},
		{"custom rate", cartWithTotal(200, 4), decimal.RequireFromString("0.05"), 4, 10, 210},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&fakeCart{cart: tt.cart}, fakeSession{}, &fakeOrders{}, tt.rate, zap.NewNop())

			got := svc.Summary()

			assert.Equal(t, tt.wantCount, got.ItemCount)
			assert.True(t, got.Tax.Equal(decimal.NewFromInt(tt.wantTax)), "tax = %s", got.Tax)
			assert.True(t, got.Total.Equal(decimal.NewFromInt(tt.wantTotal)), "total = %s", got.Total)
		})
	}
}

func TestService_PlaceOrder(t *testing.T) {
	// Arrange
	cart := &fakeCart{cart: cartWithTotal(100, 1)}
	orders := &fakeOrders{order: &model.Order{ID: "o1", Status: "pending"}}
	svc := New(cart, fakeSession{token: "tok"}, orders, decimal.Zero, zap.NewNop())

	// Act
	order, err := svc.PlaceOrder(context.Background(), Request{AddressID: "addr-1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, "tok", orders.token)
	require.Len(t, orders.calls, 1)
	assert.Equal(t, model.OrderRequest{CartID: "local-1", AddressID: "addr-1", PaymentMethod: model.PaymentMethodOnline}, orders.calls[0])
	assert.True(t, cart.cleared)
}

func TestService_PlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cart    *model.Cart
		token   string
		req     Request
		err     error
		wantErr error
	}{
		{name: "anonymous", cart: cartWithTotal(100, 1), req: Request{AddressID: "a"}, wantErr: ErrNotAuthenticated},
		{name: "empty cart", token: "tok", req: Request{AddressID: "a"}, wantErr: ErrEmptyCart},
		{name: "missing address", cart: cartWithTotal(100, 1), token: "tok", req: Request{}, wantErr: ErrInvalidOrder},
		{name: "bad payment method", cart: cartWithTotal(100, 1), token: "tok", req: Request{AddressID: "a", PaymentMethod: "barter"}, wantErr: ErrInvalidOrder},
		{name: "remote failure", cart: cartWithTotal(100, 1), token: "tok", req: Request{AddressID: "a"}, err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cart := &fakeCart{cart: tt.cart}
			orders := &fakeOrders{err: tt.err}
			svc := New(cart, fakeSession{token: tt.token}, orders, decimal.Zero, zap.NewNop())

			// Act
			order, err := svc.PlaceOrder(context.Background(), tt.req)

			// Assert
			require.Error(t, err)
			assert.Nil(t, order)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, orders.calls)
			}
			assert.False(t, cart.cleared)
		})
	}
}
