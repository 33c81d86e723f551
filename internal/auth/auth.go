// Package auth guards the storefront state API with service credentials.
// Shopper identity is handled by the session store, not here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AuthMethod represents the authentication method used.
type AuthMethod string

const (
	// AuthMethodNone indicates no authentication.
	AuthMethodNone AuthMethod = "none"
	// AuthMethodBasic indicates HTTP Basic authentication.
	AuthMethodBasic AuthMethod = "basic"
	// AuthMethodAPIKey indicates API key authentication.
	AuthMethodAPIKey AuthMethod = "apikey"
	// AuthMethodMulti indicates multi-method authentication.
	AuthMethodMulti AuthMethod = "multi"
)

// AuthInfo holds the authenticated caller.
type AuthInfo struct {
	Method  AuthMethod
	Subject string
}

// Authenticator validates a request and returns auth info.
type Authenticator interface {
	Authenticate(r *http.Request) (*AuthInfo, error)
	Method() AuthMethod
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownMode        = errors.New("unknown auth mode")
)

// Settings selects and configures an Authenticator.
type Settings struct {
	Mode       string
	BasicUsers string
	APIKeys    string
}

// New builds the Authenticator for s.Mode. Mode "none" (or empty) returns
// a nil Authenticator. Mode "multi" combines every configured method,
// API keys first.
func New(s Settings) (Authenticator, error) {
	switch AuthMethod(s.Mode) {
	case AuthMethodNone, "":
		return nil, nil
	case AuthMethodBasic:
		return NewBasicAuthenticator(s.BasicUsers)
	case AuthMethodAPIKey:
		return NewAPIKeyAuthenticator(s.APIKeys)
	case AuthMethodMulti:
		return newMulti(s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, s.Mode)
	}
}

func newMulti(s Settings) (Authenticator, error) {
	var authenticators []Authenticator

	if s.APIKeys != "" {
		ak, err := NewAPIKeyAuthenticator(s.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("creating API key authenticator: %w", err)
		}
		authenticators = append(authenticators, ak)
	}

	if s.BasicUsers != "" {
		ba, err := NewBasicAuthenticator(s.BasicUsers)
		if err != nil {
			return nil, fmt.Errorf("creating basic authenticator: %w", err)
		}
		authenticators = append(authenticators, ba)
	}

	if len(authenticators) == 0 {
		return nil, fmt.Errorf("multi auth mode requires at least one authenticator")
	}

	return NewMultiAuthenticator(authenticators...), nil
}

// contextKey is the type for context keys in this package.
type contextKey string

// authInfoKey is the context key for AuthInfo.
const authInfoKey contextKey = "auth_info"

// FromContext retrieves AuthInfo from the context.
func FromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authInfoKey).(*AuthInfo)
	return info, ok
}

// WithAuthInfo stores AuthInfo in the context.
func WithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}
