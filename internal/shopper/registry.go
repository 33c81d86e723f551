// Package shopper owns the per-client store sets and keeps them converged
// with snapshot changes made elsewhere.
package shopper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/cart"
	"github.com/vyrodovalexey/storefront-state/internal/checkout"
	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/session"
	"github.com/vyrodovalexey/storefront-state/internal/store"
	"github.com/vyrodovalexey/storefront-state/internal/wishlist"
)

// ErrInvalidClientID is returned for empty or malformed client IDs.
var ErrInvalidClientID = errors.New("invalid client id")

// DefaultIdleTTL is how long an unused shopper stays loaded.
const DefaultIdleTTL = 30 * time.Minute

var activeShoppers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "shoppers_loaded",
		Help: "Number of shoppers with stores loaded in memory",
	},
)

// Remote is the storefront API surface the stores depend on.
type Remote interface {
	cart.Catalog
	cart.RemoteCart
	session.Authenticator
	checkout.OrderCreator
}

// Publisher receives store change events.
type Publisher interface {
	Publish(event model.StoreEvent)
}

// Config tunes the stores built by a Registry.
type Config struct {
	TaxRate        decimal.Decimal
	CartRemoteSync bool
	IdleTTL        time.Duration
	TokenSource    session.TokenSource
}

// Shopper is the store set of one client.
type Shopper struct {
	ClientID string
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Session  *session.Store
	Checkout *checkout.Service
}

// entry tracks one shopper. ready is closed once the shopper is loaded.
// refs and lastSeen are guarded by Registry.mu.
type entry struct {
	ready    chan struct{}
	shopper  *Shopper
	refs     int
	lastSeen time.Time
}

func (e *entry) loaded() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Registry creates shoppers on first use and restores them from snapshots.
// Shoppers are loaded outside the registry lock, once per client.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	snapshots store.Store
	remote    Remote
	publisher Publisher
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(snapshots store.Store, remote Remote, publisher Publisher, cfg Config, logger *zap.Logger) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	return &Registry{
		entries:   make(map[string]*entry),
		snapshots: snapshots,
		remote:    remote,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Acquire returns the shopper for clientID, loading it from snapshots on
// first use, together with a release function. A held shopper is never
// evicted. Concurrent first uses of one client share a single load.
func (r *Registry) Acquire(ctx context.Context, clientID string) (*Shopper, func(), error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	e, exists := r.entries[clientID]
	if !exists {
		e = &entry{ready: make(chan struct{})}
		r.entries[clientID] = e
	}
	e.refs++
	e.lastSeen = r.now()
	r.mu.Unlock()

	if exists {
		select {
		case <-e.ready:
		case <-ctx.Done():
			r.release(e)
			return nil, nil, fmt.Errorf("waiting for shopper %q: %w", clientID, ctx.Err())
		}
	} else {
		e.shopper = r.load(context.WithoutCancel(ctx), clientID)
		close(e.ready)
		activeShoppers.Inc()
	}

	var once sync.Once
	return e.shopper, func() { once.Do(func() { r.release(e) }) }, nil
}

// Get returns the shopper for clientID without holding it.
func (r *Registry) Get(ctx context.Context, clientID string) (*Shopper, error) {
	sh, release, err := r.Acquire(ctx, clientID)
	if err != nil {
		return nil, err
	}
	release()
	return sh, nil
}

// Lookup returns an already loaded shopper.
func (r *Registry) Lookup(clientID string) (*Shopper, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok || !e.loaded() {
		return nil, false
	}
	return e.shopper, true
}

// Len returns the number of loaded or loading shoppers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// EvictIdle unloads released shoppers unused for longer than the idle TTL.
// Their state remains in the snapshot store.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if e.refs > 0 || !e.loaded() || !e.lastSeen.Before(cutoff) {
			continue
		}
		delete(r.entries, id)
		activeShoppers.Dec()
		evicted++
	}
	return evicted
}

func (r *Registry) release(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	e.lastSeen = r.now()
}

func (r *Registry) load(ctx context.Context, clientID string) *Shopper {
	sh := r.build(clientID)
	sh.Session.Restore(ctx)
	sh.Cart.Restore(ctx)
	sh.Wishlist.Restore(ctx)

	r.logger.Debug("shopper loaded", zap.String("client_id", clientID))
	return sh
}

// Run applies snapshot changes to loaded shoppers and evicts idle ones
// until ctx is done. A nil watcher only evicts.
func (r *Registry) Run(ctx context.Context, watcher store.Watcher) error {
	var changes <-chan store.Change
	if watcher != nil {
		var err error
		if changes, err = watcher.Watch(ctx); err != nil {
			return fmt.Errorf("watching snapshots: %w", err)
		}
	}

	ticker := time.NewTicker(r.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.logger.Debug("evicted idle shoppers", zap.Int("count", n))
			}
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			r.apply(ctx, change)
		}
	}
}

func (r *Registry) apply(ctx context.Context, change store.Change) {
	clientID, kind, ok := store.ParseKey(change.Key)
	if !ok || kind != store.KindSession {
		return
	}

	sh, loaded := r.Lookup(clientID)
	if !loaded {
		return
	}
	sh.Session.Resync(ctx)
}

func (r *Registry) build(clientID string) *Shopper {
	logger := r.logger.With(zap.String("client_id", clientID))

	sess := session.New(r.snapshots, store.Key(clientID, store.KindSession), r.remote, logger,
		session.WithTokenSource(r.cfg.TokenSource),
		session.WithListener(func(v session.View) {
			r.publish(model.EventTypeSession, clientID, v)
		}),
	)

	cartOpts := []cart.Option{
		cart.WithListener(func(s cart.State) {
			r.publish(model.EventTypeCart, clientID, cart.ViewOf(s))
		}),
	}
	if r.cfg.CartRemoteSync {
		cartOpts = append(cartOpts, cart.WithRemoteSync(r.remote, sess.Token))
	}
	c := cart.New(r.snapshots, store.Key(clientID, store.KindCart), r.remote, logger, cartOpts...)

	wl := wishlist.New(r.snapshots, store.Key(clientID, store.KindWishlist), logger,
		wishlist.WithListener(func(items []model.WishlistItem) {
			r.publish(model.EventTypeWishlist, clientID, items)
		}),
	)

	return &Shopper{
		ClientID: clientID,
		Cart:     c,
		Wishlist: wl,
		Session:  sess,
		Checkout: checkout.New(c, sess, r.remote, r.cfg.TaxRate, logger),
	}
}

func (r *Registry) publish(eventType, clientID string, data any) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(model.NewStoreEvent(eventType, clientID, data))
}

// ValidateClientID checks that id is usable as a snapshot key segment.
func ValidateClientID(id string) error {
	if id == "" || len(id) > 128 || strings.ContainsAny(id, ": \t\r\n/") {
		return fmt.Errorf("%w: %q", ErrInvalidClientID, id)
	}
	return nil
}
