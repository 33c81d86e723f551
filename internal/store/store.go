// Package store provides snapshot storage interfaces and implementations.
package store

import (
	"context"
	"errors"
	"strings"
)

// Store errors.
var (
	ErrNotFound        = errors.New("snapshot not found")
	ErrInvalidKey      = errors.New("invalid snapshot key")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	ErrNilValue        = errors.New("snapshot value cannot be nil")
)

// Snapshot kinds, one key per shopper store.
const (
	KindCart     = "cart"
	KindWishlist = "wishlist"
	KindSession  = "session"
)

const keyNamespace = "sf"

// Store defines the interface for snapshot storage operations.
type Store interface {
	// Get returns the raw snapshot stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the snapshot stored at key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the snapshot stored at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Change describes a write to a snapshot key.
type Change struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// Watcher is implemented by stores that can report writes made by any
// execution context sharing the store.
type Watcher interface {
	// Watch streams changes until ctx is done, then closes the channel.
	Watch(ctx context.Context) (<-chan Change, error)
}

// Key builds the snapshot key for a shopper store.
func Key(clientID, kind string) string {
	return keyNamespace + ":" + strings.TrimSpace(clientID) + ":" + kind
}

// ParseKey splits a snapshot key built by Key.
func ParseKey(key string) (clientID, kind string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != keyNamespace || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
