package remote

import (
	"context"
	"net/http"

	"github.com/vyrodovalexey/storefront-state/internal/model"
)

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type remoteCart struct {
	ObjectID string `json:"_id"`
	ID       string `json:"id"`
}

type addToCartResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Cart    *remoteCart `json:"cart"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Order   *model.Order `json:"order"`
}

// AddToCart adds a line to the caller's remote cart and returns the remote
// cart ID.
func (c *Client) AddToCart(ctx context.Context, token, productID string, quantity int) (string, error) {
	var resp addToCartResponse
	body := addToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, "cart_add", http.MethodPost, "/cart/add", token, body, &resp); err != nil {
		return "", err
	}

	if !resp.Success || resp.Cart == nil {
		return "", &RemoteError{Status: http.StatusOK, Message: resp.Message}
	}
	if resp.Cart.ObjectID != "" {
		return resp.Cart.ObjectID, nil
	}
	return resp.Cart.ID, nil
}

// CreateOrder places an order for a cart.
func (c *Client) CreateOrder(ctx context.Context, token string, req model.OrderRequest) (*model.Order, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = model.PaymentMethodOnline
	}

	var resp orderResponse
	if err := c.do(ctx, "orders", http.MethodPost, "/orders", token, req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success || resp.Order == nil {
		msg := resp.Message
		if msg == "" {
			msg = "failed to create order"
		}
		return nil, &RemoteError{Status: http.StatusOK, Message: msg}
	}
	return resp.Order, nil
}
