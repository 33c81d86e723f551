package remote

import (
	"context"
	"net/http"

	"github.com/vyrodovalexey/storefront-state/internal/model"
)

// LoginRequest is the body of the login call.
type LoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

// RegisterRequest is the body of the registration call.
type RegisterRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Phone          string `json:"phone,omitempty"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

// Login authenticates against the remote auth endpoint.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*model.AuthResponse, error) {
	return c.authenticate(ctx, "login", "/auth/login", req)
}

// Register creates an account through the remote auth endpoint.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*model.AuthResponse, error) {
	return c.authenticate(ctx, "register", "/auth/register", req)
}

func (c *Client) authenticate(ctx context.Context, endpoint, path string, body any) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := c.do(ctx, endpoint, http.MethodPost, path, "", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &RemoteError{Status: http.StatusOK, Message: resp.Message}
	}
	if resp.User == nil || resp.Token == "" {
		return nil, &RemoteError{Status: http.StatusOK, Message: "incomplete auth response"}
	}
	return &resp, nil
}
