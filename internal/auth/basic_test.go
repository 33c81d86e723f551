package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/storefront-state/internal/auth"
)

func generateBcryptHash(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}

	return string(hash)
}

func TestNewBasicAuthenticator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{name: "single user", config: "ops:$2a$10$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ012"},
		{name: "multiple users", config: "ops:hash1,support:hash2"},
		{name: "empty config", config: "", wantErr: true},
		{name: "no colon", config: "opsnohash", wantErr: true},
		{name: "empty username", config: ":hash", wantErr: true},
		{name: "empty hash", config: "ops:", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := auth.NewBasicAuthenticator(tt.config)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewBasicAuthenticator() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBasicAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	hash := generateBcryptHash(t, "s3cret")
	authenticator, err := auth.NewBasicAuthenticator("ops:" + hash)
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	tests := []struct {
		name      string
		setAuth   bool
		username  string
		password  string
		wantErrIs error
	}{
		{name: "valid credentials", setAuth: true, username: "ops", password: "s3cret"},
		{name: "no credentials", setAuth: false, wantErrIs: auth.ErrUnauthenticated},
		{name: "wrong password", setAuth: true, username: "ops", password: "nope", wantErrIs: auth.ErrInvalidCredentials},
		{name: "unknown user", setAuth: true, username: "ghost", password: "s3cret", wantErrIs: auth.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.username, tt.password)
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
			if info.Subject != "ops" || info.Method != auth.AuthMethodBasic {
				t.Errorf("Authenticate() = %+v", info)
			}
		})
	}
}

func TestBasicAuthenticator_SameErrorForUnknownUserAndWrongPassword(t *testing.T) {
	t.Parallel()

	authenticator, err := auth.NewBasicAuthenticator("ops:" + generateBcryptHash(t, "s3cret"))
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	unknown := httptest.NewRequest(http.MethodGet, "/", nil)
	unknown.SetBasicAuth("ghost", "s3cret")
	wrong := httptest.NewRequest(http.MethodGet, "/", nil)
	wrong.SetBasicAuth("ops", "nope")

	_, errUnknown := authenticator.Authenticate(unknown)
	_, errWrong := authenticator.Authenticate(wrong)

	if errUnknown == nil || errWrong == nil {
		t.Fatal("expected both requests to fail")
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Errorf("error messages differ: %q vs %q", errUnknown, errWrong)
	}
}
