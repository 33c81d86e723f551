package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vyrodovalexey/storefront-state/internal/auth"
)

func TestNewAPIKeyAuthenticator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{name: "single key", config: "key1:web"},
		{name: "multiple keys", config: "key1:web,key2:mobile"},
		{name: "spaces and trailing comma", config: " key1:web , key2:mobile ,"},
		{name: "empty config", config: "", wantErr: true},
		{name: "whitespace only", config: "   ", wantErr: true},
		{name: "missing colon", config: "key1", wantErr: true},
		{name: "empty name", config: "key1:", wantErr: true},
		{name: "empty key", config: ":web", wantErr: true},
		{name: "only commas", config: ",,", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := auth.NewAPIKeyAuthenticator(tt.config)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("expected authenticator, got nil")
			}
		})
	}
}

func TestAPIKeyAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	authenticator, err := auth.NewAPIKeyAuthenticator("key-web:web,key-mobile:mobile")
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	tests := []struct {
		name        string
		header      string
		wantSubject string
		wantErrIs   error
	}{
		{name: "web key", header: "key-web", wantSubject: "web"},
		{name: "mobile key", header: "key-mobile", wantSubject: "mobile"},
		{name: "missing header", header: "", wantErrIs: auth.ErrUnauthenticated},
		{name: "unknown key", header: "key-other", wantErrIs: auth.ErrInvalidAPIKey},
		{name: "prefix of a key", header: "key-we", wantErrIs: auth.ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			if tt.header != "" {
				req.Header.Set(auth.APIKeyHeader, tt.header)
			}

			// Act
			info, err := authenticator.Authenticate(req)

			// Assert
			if tt.wantErrIs != nil {
				if !errors.Is(err, tt.wantErrIs) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() unexpected error: %v", err)
			}
			if info.Subject != tt.wantSubject {
				t.Errorf("Subject = %s, want %s", info.Subject, tt.wantSubject)
			}
			if info.Method != auth.AuthMethodAPIKey {
				t.Errorf("Method = %s, want %s", info.Method, auth.AuthMethodAPIKey)
			}
		})
	}
}
