package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vyrodovalexey/storefront-state/internal/auth"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		settings   auth.Settings
		wantNil    bool
		wantMethod auth.AuthMethod
		wantErr    bool
		wantErrIs  error
	}{
		{name: "none returns nil", settings: auth.Settings{Mode: "none"}, wantNil: true},
		{name: "empty mode returns nil", settings: auth.Settings{}, wantNil: true},
		{
			name:       "basic",
			settings:   auth.Settings{Mode: "basic", BasicUsers: "ops:$2a$10$hash"},
			wantMethod: auth.AuthMethodBasic,
		},
		{
			name:       "apikey",
			settings:   auth.Settings{Mode: "apikey", APIKeys: "k1:web"},
			wantMethod: auth.AuthMethodAPIKey,
		},
		{
			name:       "multi with both",
			settings:   auth.Settings{Mode: "multi", APIKeys: "k1:web", BasicUsers: "ops:hash"},
			wantMethod: auth.AuthMethodMulti,
		},
		{name: "multi without config", settings: auth.Settings{Mode: "multi"}, wantErr: true},
		{name: "basic with bad config", settings: auth.Settings{Mode: "basic", BasicUsers: "nohash"}, wantErr: true},
		{
			name:      "unknown mode",
			settings:  auth.Settings{Mode: "oidc"},
			wantErr:   true,
			wantErrIs: auth.ErrUnknownMode,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			got, err := auth.New(tt.settings)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("New() = %v, want nil", got)
				}
				return
			}
			if got.Method() != tt.wantMethod {
				t.Errorf("Method() = %s, want %s", got.Method(), tt.wantMethod)
			}
		})
	}
}

func TestWithAuthInfoAndFromContext(t *testing.T) {
	t.Parallel()

	// Arrange
	info := &auth.AuthInfo{Method: auth.AuthMethodAPIKey, Subject: "web"}

	// Act
	ctx := auth.WithAuthInfo(context.Background(), info)
	got, ok := auth.FromContext(ctx)

	// Assert
	if !ok {
		t.Fatal("FromContext() returned ok=false")
	}
	if got != info {
		t.Errorf("FromContext() = %+v, want %+v", got, info)
	}
}

func TestFromContext_EmptyContext(t *testing.T) {
	t.Parallel()

	got, ok := auth.FromContext(context.Background())

	if ok || got != nil {
		t.Errorf("FromContext() = %+v, %v; want nil, false", got, ok)
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	t.Parallel()

	errs := []error{
		auth.ErrUnauthenticated,
		auth.ErrInvalidAPIKey,
		auth.ErrInvalidCredentials,
		auth.ErrUnknownMode,
	}

	for i, a := range errs {
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = true, want false", a, b)
			}
		}
	}
}
