// Package cart implements the shopper's cart store.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/store"
)

// Sentinel errors for cart operations.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidProductID = errors.New("invalid product id")
	ErrQuantityTooLarge = errors.New("quantity exceeds line limit")
)

// MaxLineQuantity is the largest quantity a single cart line may hold.
const MaxLineQuantity = 9999

const localIDPrefix = "local-"

// Catalog resolves product details for new cart lines.
type Catalog interface {
	FetchProduct(ctx context.Context, id string) *model.Product
}

// RemoteCart mirrors local adds into the shopper's server-side cart.
type RemoteCart interface {
	AddToCart(ctx context.Context, token, productID string, quantity int) (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithRemoteSync pushes committed adds to the remote cart whenever token
// returns a non-empty bearer token.
func WithRemoteSync(remote RemoteCart, token func() string) Option {
	return func(s *Store) {
		s.remote = remote
		s.token = token
	}
}

// WithListener registers a callback invoked with the new state after every
// committed change.
func WithListener(fn func(State)) Option {
	return func(s *Store) {
		s.listener = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides local cart ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// Store owns one shopper's cart. Mutations are serialized by opMu for
// their whole duration, catalog lookups included. Readers only take mu.
type Store struct {
	opMu sync.Mutex

	mu   sync.RWMutex
	cart *model.Cart

	slot     *store.Slot[model.Cart]
	catalog  Catalog
	remote   RemoteCart
	token    func() string
	listener func(State)
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// New creates an empty cart store persisting under key.
func New(snapshots store.Store, key string, catalog Catalog, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		slot:    store.NewSlot[model.Cart](snapshots, key),
		catalog: catalog,
		now:     time.Now,
		newID: func() string {
			return localIDPrefix + uuid.NewString()
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem adds quantity units of a product. A quantity below 1 counts as 1.
// The catalog is consulted only for products not already in the cart. A
// line may not grow beyond MaxLineQuantity.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrInvalidProductID
	}
	if quantity < 1 {
		quantity = 1
	}
	if quantity > MaxLineQuantity {
		return fmt.Errorf("add item %q: %w", productID, ErrQuantityTooLarge)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	next := s.snapshot()
	if idx := indexOf(next, productID); idx >= 0 {
		if next.Items[idx].Quantity > MaxLineQuantity-quantity {
			return fmt.Errorf("add item %q: %w", productID, ErrQuantityTooLarge)
		}
		next.Items[idx].Quantity += quantity
	} else {
		product := s.catalog.FetchProduct(ctx, productID)
		if product == nil {
			return fmt.Errorf("add item %q: %w", productID, ErrProductNotFound)
		}
		if next == nil {
			next = &model.Cart{ID: s.newID()}
		}
		next.Items = append(next.Items, lineFor(productID, product, quantity))
	}

	if err := s.commit(ctx, next); err != nil {
		return fmt.Errorf("add item %q: %w", productID, err)
	}
	s.logger.Debug("cart item added",
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)

	s.syncRemote(ctx, productID, quantity)
	return nil
}

// RemoveItem drops a line. Unknown products are ignored.
func (s *Store) RemoveItem(ctx context.Context, productID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	return s.removeLocked(ctx, productID)
}

// SetQuantity overwrites a line quantity. A quantity of zero or less
// removes the line.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity > MaxLineQuantity {
		return fmt.Errorf("set quantity %q: %w", productID, ErrQuantityTooLarge)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if quantity <= 0 {
		return s.removeLocked(ctx, productID)
	}

	next := s.snapshot()
	idx := indexOf(next, productID)
	if idx < 0 {
		return nil
	}
	next.Items[idx].Quantity = quantity

	if err := s.commit(ctx, next); err != nil {
		return fmt.Errorf("set quantity %q: %w", productID, err)
	}
	return nil
}

// Clear empties the cart and deletes its snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.commit(ctx, nil); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Restore loads the persisted cart. Missing, empty or corrupt snapshots
// leave the store Empty.
func (s *Store) Restore(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	saved, found := s.slot.LoadOrReset(ctx, s.logger)
	if !found {
		s.set(nil)
		return
	}

	restored := s.sanitize(&saved)
	if restored == nil {
		s.logger.Debug("discarding cart snapshot without items", zap.String("key", s.slot.Key()))
		if err := s.slot.Clear(ctx); err != nil {
			s.logger.Warn("deleting empty cart snapshot", zap.Error(err))
		}
	}
	s.set(restored)
}

// State returns the current state. Active carts are copies.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cart == nil {
		return Empty{}
	}
	return Active{Cart: *s.cart.Clone()}
}

// Cart returns a copy of the active cart, or false when Empty.
func (s *Store) Cart() (model.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cart == nil {
		return model.Cart{}, false
	}
	return *s.cart.Clone(), true
}

// Total returns the cart total, zero when Empty.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cart == nil {
		return decimal.Zero
	}
	return s.cart.Total
}

// ItemCount returns the sum of line quantities.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cart == nil {
		return 0
	}
	return s.cart.ItemCount()
}

// LineCount returns the number of distinct lines.
func (s *Store) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cart == nil {
		return 0
	}
	return len(s.cart.Items)
}

func (s *Store) removeLocked(ctx context.Context, productID string) error {
	next := s.snapshot()
	idx := indexOf(next, productID)
	if idx < 0 {
		return nil
	}
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)

	if err := s.commit(ctx, next); err != nil {
		return fmt.Errorf("remove item %q: %w", productID, err)
	}
	s.logger.Debug("cart item removed", zap.String("product_id", productID))
	return nil
}

// commit recalculates next, writes its snapshot and only then makes it the
// current state. A nil or line-less cart becomes Empty and deletes the
// snapshot. When the write fails the current state is left unchanged.
// Writes ignore the caller's cancellation.
func (s *Store) commit(ctx context.Context, next *model.Cart) error {
	if next != nil && len(next.Items) == 0 {
		next = nil
	}

	writeCtx := context.WithoutCancel(ctx)
	if next == nil {
		if err := s.slot.Clear(writeCtx); err != nil {
			return err
		}
	} else {
		next.Recalculate()
		next.UpdatedAt = s.now().UTC()
		if err := s.slot.Save(writeCtx, *next); err != nil {
			return err
		}
	}
	s.set(next)

	if s.listener != nil {
		s.listener(s.State())
	}
	return nil
}

func (s *Store) syncRemote(ctx context.Context, productID string, quantity int) {
	if s.remote == nil || s.token == nil {
		return
	}
	token := s.token()
	if token == "" {
		return
	}

	remoteID, err := s.remote.AddToCart(ctx, token, productID, quantity)
	if err != nil {
		s.logger.Warn("syncing cart line to remote cart",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return
	}

	next := s.snapshot()
	if next == nil || remoteID == "" || next.ID == remoteID {
		return
	}
	next.ID = remoteID
	if err := s.commit(ctx, next); err != nil {
		s.logger.Warn("adopting remote cart id", zap.String("cart_id", remoteID), zap.Error(err))
	}
}

// snapshot returns a private copy of the current cart, nil when Empty.
func (s *Store) snapshot() *model.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cart.Clone()
}

func (s *Store) set(c *model.Cart) {
	s.mu.Lock()
	s.cart = c
	s.mu.Unlock()
}

func indexOf(c *model.Cart, productID string) int {
	if c == nil {
		return -1
	}
	return c.IndexOf(productID)
}

func lineFor(productID string, product *model.Product, quantity int) model.CartItem {
	return model.CartItem{
		ProductID: productID,
		Name:      product.Name,
		SKU:       product.SKU,
		Thumbnail: product.Thumbnail,
		UnitPrice: product.Price,
		Quantity:  quantity,
	}
}

// sanitize drops unusable lines from a restored cart and recomputes its
// totals. It returns nil when nothing usable remains.
func (s *Store) sanitize(c *model.Cart) *model.Cart {
	kept := c.Items[:0]
	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ProductID == "" || item.Quantity < 1 || item.Quantity > MaxLineQuantity || item.UnitPrice.IsNegative() {
			continue
		}
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		return nil
	}

	c.Items = kept
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.Recalculate()
	return c
}
