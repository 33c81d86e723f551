package auth

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against for unknown users so that both failure
// paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("unknown-user"), bcrypt.DefaultCost)
	return hash
})

// BasicAuthenticator authenticates operators with HTTP Basic credentials
// checked against bcrypt hashes.
type BasicAuthenticator struct {
	users map[string]string // username -> bcrypt hash
}

// NewBasicAuthenticator creates an authenticator from "user1:hash1,user2:hash2".
func NewBasicAuthenticator(usersConfig string) (*BasicAuthenticator, error) {
	users, err := parseCredentials(usersConfig, "basic auth", "user:hash")
	if err != nil {
		return nil, err
	}
	return &BasicAuthenticator{users: users}, nil
}

// Authenticate verifies the Basic credentials of r.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrUnauthenticated
	}

	hash, exists := a.users[username]
	hashBytes := []byte(hash)
	if !exists {
		hashBytes = dummyHash()
	}

	err := bcrypt.CompareHashAndPassword(hashBytes, []byte(password))
	if err != nil || !exists {
		return nil, fmt.Errorf("%w: user or password rejected", ErrInvalidCredentials)
	}

	return &AuthInfo{Method: AuthMethodBasic, Subject: username}, nil
}

// Method returns the authentication method type.
func (a *BasicAuthenticator) Method() AuthMethod {
	return AuthMethodBasic
}
