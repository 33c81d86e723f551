// Package wishlist implements the shopper's wishlist store.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/store"
)

// ErrInvalidProductID is returned when an item has no product id.
var ErrInvalidProductID = errors.New("invalid product id")

// Option configures a Store.
type Option func(*Store)

// WithListener registers a callback invoked with the item list after every
// committed change.
func WithListener(fn func([]model.WishlistItem)) Option {
	return func(s *Store) {
		s.listener = fn
	}
}

// WithClock overrides the time source used for AddedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns one shopper's wishlist, kept in insertion order.
type Store struct {
	opMu sync.Mutex

	mu    sync.RWMutex
	items []model.WishlistItem

	slot     *store.Slot[[]model.WishlistItem]
	listener func([]model.WishlistItem)
	now      func() time.Time
	logger   *zap.Logger
}

// New creates an empty wishlist store persisting under key.
func New(snapshots store.Store, key string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		slot:   store.NewSlot[[]model.WishlistItem](snapshots, key),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends an item. Adding a product that is already saved is a no-op.
func (s *Store) Add(ctx context.Context, item model.WishlistItem) error {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return ErrInvalidProductID
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Contains(item.ProductID) {
		return nil
	}

	item.AddedAt = s.now().UTC()
	if err := s.commit(ctx, append(s.Items(), item)); err != nil {
		return fmt.Errorf("add %q: %w", item.ProductID, err)
	}
	return nil
}

// Remove drops a product. Unknown products are ignored.
func (s *Store) Remove(ctx context.Context, productID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	return s.removeLocked(ctx, productID)
}

// Toggle adds the item when absent and removes it when present. It
// reports whether the item is saved afterwards, failed writes included.
func (s *Store) Toggle(ctx context.Context, item model.WishlistItem) (bool, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return false, ErrInvalidProductID
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Contains(item.ProductID) {
		if err := s.removeLocked(ctx, item.ProductID); err != nil {
			return true, err
		}
		return false, nil
	}

	item.AddedAt = s.now().UTC()
	if err := s.commit(ctx, append(s.Items(), item)); err != nil {
		return false, fmt.Errorf("toggle %q: %w", item.ProductID, err)
	}
	return true, nil
}

// Clear empties the wishlist and deletes its snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.commit(ctx, nil); err != nil {
		return fmt.Errorf("clear wishlist: %w", err)
	}
	return nil
}

// Restore loads the persisted wishlist. Corrupt snapshots are discarded.
func (s *Store) Restore(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	saved, found := s.slot.LoadOrReset(ctx, s.logger)
	if !found {
		s.set(nil)
		return
	}

	kept := make([]model.WishlistItem, 0, len(saved))
	seen := make(map[string]struct{}, len(saved))
	for _, item := range saved {
		if item.ProductID == "" {
			continue
		}
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		kept = append(kept, item)
	}
	s.set(kept)
}

// Contains reports whether a product is saved.
func (s *Store) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return indexOf(s.items, productID) >= 0
}

// Count returns the number of saved items.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Items returns a copy of the saved items in insertion order.
func (s *Store) Items() []model.WishlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.WishlistItem, len(s.items))
	copy(items, s.items)
	return items
}

func (s *Store) removeLocked(ctx context.Context, productID string) error {
	items := s.Items()
	idx := indexOf(items, productID)
	if idx < 0 {
		return nil
	}

	if err := s.commit(ctx, append(items[:idx], items[idx+1:]...)); err != nil {
		return fmt.Errorf("remove %q: %w", productID, err)
	}
	return nil
}

// commit persists next and then makes it the current list. An empty list
// deletes the snapshot. A failed write leaves the current list unchanged.
func (s *Store) commit(ctx context.Context, next []model.WishlistItem) error {
	writeCtx := context.WithoutCancel(ctx)

	var err error
	if len(next) == 0 {
		err = s.slot.Clear(writeCtx)
	} else {
		err = s.slot.Save(writeCtx, next)
	}
	if err != nil {
		return err
	}
	s.set(next)

	if s.listener != nil {
		s.listener(s.Items())
	}
	return nil
}

func (s *Store) set(items []model.WishlistItem) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

func indexOf(items []model.WishlistItem, productID string) int {
	for idx, item := range items {
		if item.ProductID == productID {
			return idx
		}
	}
	return -1
}
