package cart

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/store"
)

const testKey = "sf:client-1:cart"

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]model.Product
	calls    int
}

func newFakeCatalog(products ...model.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]model.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) FetchProduct(_ context.Context, id string) *model.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	p, ok := c.products[id]
	if !ok {
		return nil
	}
	return &p
}

func (c *fakeCatalog) setPrice(id string, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.products[id]
	p.Price = decimal.NewFromInt(price)
	c.products[id] = p
}

func (c *fakeCatalog) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeRemote struct {
	cartID string
	err    error
	tokens []string
}

func (r *fakeRemote) AddToCart(_ context.Context, token, _ string, _ int) (string, error) {
	r.tokens = append(r.tokens, token)
	return r.cartID, r.err
}

func product(id string, price int64) model.Product {
	return model.Product{ID: id, Name: "Product " + id, SKU: strings.ToUpper(id), Price: decimal.NewFromInt(price)}
}

func newTestStore(t *testing.T, snapshots store.Store, catalog Catalog, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})}, opts...)
	return New(snapshots, testKey, catalog, zap.NewNop(), opts...)
}

func loadSnapshot(t *testing.T, snapshots store.Store) (model.Cart, bool) {
	t.Helper()
	saved, found, err := store.NewSlot[model.Cart](snapshots, testKey).Load(context.Background())
	require.NoError(t, err)
	return saved, found
}

func TestStore_Scenario(t *testing.T) {
	// Arrange
	ctx := context.Background()
	snapshots := store.NewMemoryStore()
	s := newTestStore(t, snapshots, newFakeCatalog(product("sku-1", 100)))

	// Act & Assert: add
	require.NoError(t, s.AddItem(ctx, "sku-1", 1))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, s.ItemCount())

	// Act & Assert: set quantity
	require.NoError(t, s.SetQuantity(ctx, "sku-1", 3))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 3, s.ItemCount())

	// Act & Assert: remove
	require.NoError(t, s.RemoveItem(ctx, "sku-1"))
	assert.IsType(t, Empty{}, s.State())
	assert.True(t, s.Total().IsZero())
	assert.Equal(t, 0, s.ItemCount())

	_, found := loadSnapshot(t, snapshots)
	assert.False(t, found, "snapshot should be deleted when the cart empties")
}

func TestStore_AddItem_MergesQuantities(t *testing.T) {
	// Arrange
	ctx := context.Background()
	catalog := newFakeCatalog(product("p1", 10))
	s := newTestStore(t, store.NewMemoryStore(), catalog)

	// Act
	require.NoError(t, s.AddItem(ctx, "p1", 2))
	require.NoError(t, s.AddItem(ctx, "p1", 3))

	// Assert
	c, ok := s.Cart()
	require.True(t, ok)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.True(t, c.Items[0].Subtotal.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 1, catalog.callCount(), "existing lines must not be re-fetched")
}

func TestStore_AddItem_KeepsStoredPrice(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog(product("p1", 10))
	s := newTestStore(t, store.NewMemoryStore(), catalog)

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	catalog.setPrice("p1", 99)
	require.NoError(t, s.AddItem(ctx, "p1", 1))

	assert.True(t, s.Total().Equal(decimal.NewFromInt(20)))
}

func TestStore_AddItem_DefaultsQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
	}{
		{"zero", 0},
		{"negative", -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 5)))

			require.NoError(t, s.AddItem(context.Background(), "p1", tt.quantity))

			assert.Equal(t, 1, s.ItemCount())
		})
	}
}

func TestStore_AddItem_Errors(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		wantErr   error
	}{
		{"unknown product", "missing", ErrProductNotFound},
		{"empty id", "  ", ErrInvalidProductID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			snapshots := store.NewMemoryStore()
			s := newTestStore(t, snapshots, newFakeCatalog(product("p1", 5)))
			require.NoError(t, s.AddItem(ctx, "p1", 2))
			before, _ := s.Cart()

			// Act
			err := s.AddItem(ctx, tt.productID, 1)

			// Assert
			require.ErrorIs(t, err, tt.wantErr)
			after, _ := s.Cart()
			assert.Equal(t, before, after)
		})
	}
}

func TestStore_AddItem_NotFoundOnEmptyCart(t *testing.T) {
	ctx := context.Background()
	snapshots := store.NewMemoryStore()
	s := newTestStore(t, snapshots, newFakeCatalog())

	err := s.AddItem(ctx, "ghost", 1)

	require.ErrorIs(t, err, ErrProductNotFound)
	assert.IsType(t, Empty{}, s.State())
	_, found := loadSnapshot(t, snapshots)
	assert.False(t, found)
}

func TestStore_NewCartGetsLocalID(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 5)))

	require.NoError(t, s.AddItem(context.Background(), "p1", 1))

	c, ok := s.Cart()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(c.ID, "local-"), "got id %q", c.ID)
}

func TestStore_SetQuantity(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		quantity  int
		wantCount int
		wantLines int
	}{
		{"overwrites quantity", "p1", 4, 5, 2},
		{"zero removes line", "p1", 0, 1, 1},
		{"negative removes line", "p1", -1, 1, 1},
		{"unknown product is a no-op", "nope", 7, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 5), product("p2", 7)))
			require.NoError(t, s.AddItem(ctx, "p1", 2))
			require.NoError(t, s.AddItem(ctx, "p2", 1))

			// Act
			require.NoError(t, s.SetQuantity(ctx, tt.productID, tt.quantity))

			// Assert
			assert.Equal(t, tt.wantCount, s.ItemCount())
			assert.Equal(t, tt.wantLines, s.LineCount())
		})
	}
}

func TestStore_SetQuantity_EmptyIsNoop(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog())

	require.NoError(t, s.SetQuantity(context.Background(), "p1", 3))

	assert.IsType(t, Empty{}, s.State())
}

func TestStore_RemoveItem_KeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("a", 1), product("b", 2), product("c", 3)))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AddItem(ctx, id, 1))
	}

	require.NoError(t, s.RemoveItem(ctx, "b"))
	require.NoError(t, s.RemoveItem(ctx, "unknown"))

	c, ok := s.Cart()
	require.True(t, ok)
	require.Len(t, c.Items, 2)
	assert.Equal(t, "a", c.Items[0].ProductID)
	assert.Equal(t, "c", c.Items[1].ProductID)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(4)))
}

func TestStore_TotalMatchesLines(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(
		model.Product{ID: "a", Price: decimal.RequireFromString("19.99")},
		model.Product{ID: "b", Price: decimal.RequireFromString("0.10")},
	))

	// Act
	require.NoError(t, s.AddItem(ctx, "a", 3))
	require.NoError(t, s.AddItem(ctx, "b", 7))
	require.NoError(t, s.SetQuantity(ctx, "a", 2))

	// Assert
	c, ok := s.Cart()
	require.True(t, ok)
	sum := decimal.Zero
	for _, item := range c.Items {
		assert.True(t, item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))))
		sum = sum.Add(item.Subtotal)
	}
	assert.True(t, c.Total.Equal(sum))
	assert.True(t, c.Total.Equal(decimal.RequireFromString("40.68")))
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	snapshots := store.NewMemoryStore()
	s := newTestStore(t, snapshots, newFakeCatalog(product("p1", 5)))
	require.NoError(t, s.AddItem(ctx, "p1", 2))

	require.NoError(t, s.Clear(ctx))

	assert.IsType(t, Empty{}, s.State())
	_, found := loadSnapshot(t, snapshots)
	assert.False(t, found)
}

func TestStore_PersistsEveryMutation(t *testing.T) {
	// Arrange
	ctx := context.Background()
	snapshots := store.NewMemoryStore()
	s := newTestStore(t, snapshots, newFakeCatalog(product("p1", 5)))

	// Act
	require.NoError(t, s.AddItem(ctx, "p1", 2))

	// Assert
	saved, found := loadSnapshot(t, snapshots)
	require.True(t, found)
	current, _ := s.Cart()
	assert.Equal(t, current.ID, saved.ID)
	assert.True(t, saved.Total.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), saved.UpdatedAt)
}

type failingStore struct {
	store.Store
	setErr    error
	deleteErr error
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, key)
}

func TestStore_FailedWriteKeepsState(t *testing.T) {
	errDisk := errors.New("disk full")

	tests := []struct {
		name   string
		mutate func(ctx context.Context, s *Store) error
		setErr bool
	}{
		{"add new line", func(ctx context.Context, s *Store) error { return s.AddItem(ctx, "p2", 1) }, true},
		{"merge line", func(ctx context.Context, s *Store) error { return s.AddItem(ctx, "p1", 3) }, true},
		{"set quantity", func(ctx context.Context, s *Store) error { return s.SetQuantity(ctx, "p1", 7) }, true},
		{"remove only line", func(ctx context.Context, s *Store) error { return s.RemoveItem(ctx, "p1") }, false},
		{"set quantity to zero", func(ctx context.Context, s *Store) error { return s.SetQuantity(ctx, "p1", 0) }, false},
		{"clear", func(ctx context.Context, s *Store) error { return s.Clear(ctx) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			snapshots := &failingStore{Store: store.NewMemoryStore()}
			var events int
			s := newTestStore(t, snapshots, newFakeCatalog(product("p1", 5), product("p2", 8)),
				WithListener(func(State) { events++ }))
			require.NoError(t, s.AddItem(ctx, "p1", 2))
			before, _ := s.Cart()
			if tt.setErr {
				snapshots.setErr = errDisk
			} else {
				snapshots.deleteErr = errDisk
			}

			// Act
			err := tt.mutate(ctx, s)

			// Assert
			require.ErrorIs(t, err, errDisk)
			after, ok := s.Cart()
			require.True(t, ok)
			assert.Equal(t, before, after)
			assert.Equal(t, 1, events, "failed writes must not notify")

			saved, found := loadSnapshot(t, snapshots)
			require.True(t, found)
			assert.Equal(t, before.ItemCount(), saved.ItemCount())
			assert.True(t, before.Total.Equal(saved.Total))
		})
	}
}

func TestStore_FailedWriteOnEmptyCart(t *testing.T) {
	// Arrange
	ctx := context.Background()
	snapshots := &failingStore{Store: store.NewMemoryStore(), setErr: errors.New("disk full")}
	s := newTestStore(t, snapshots, newFakeCatalog(product("sku-1", 100)))

	// Act
	err := s.AddItem(ctx, "sku-1", 1)

	// Assert
	require.Error(t, err)
	assert.IsType(t, Empty{}, s.State())
	assert.Equal(t, 0, s.ItemCount())

	restored := newTestStore(t, snapshots, newFakeCatalog())
	restored.Restore(ctx)
	assert.Equal(t, s.State(), restored.State())
}

func TestStore_CancelledRequestStillPersists(t *testing.T) {
	// Arrange
	snapshots := store.NewMemoryStore()
	s := newTestStore(t, snapshots, newFakeCatalog(product("p1", 5)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := s.AddItem(ctx, "p1", 2)

	// Assert
	require.NoError(t, err)
	saved, found := loadSnapshot(t, snapshots)
	require.True(t, found)
	assert.Equal(t, 2, saved.ItemCount())
	assert.Equal(t, 2, s.ItemCount())
}

func TestStore_QuantityLimit(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ctx context.Context, s *Store) error
	}{
		{"add beyond limit", func(ctx context.Context, s *Store) error { return s.AddItem(ctx, "p1", MaxLineQuantity) }},
		{"add max int", func(ctx context.Context, s *Store) error { return s.AddItem(ctx, "p1", math.MaxInt) }},
		{"new line beyond limit", func(ctx context.Context, s *Store) error { return s.AddItem(ctx, "p2", MaxLineQuantity+1) }},
		{"set beyond limit", func(ctx context.Context, s *Store) error { return s.SetQuantity(ctx, "p1", MaxLineQuantity+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 5), product("p2", 1)))
			require.NoError(t, s.AddItem(ctx, "p1", 2))

			// Act
			err := tt.mutate(ctx, s)

			// Assert
			require.ErrorIs(t, err, ErrQuantityTooLarge)
			assert.Equal(t, 2, s.ItemCount())
			assert.True(t, s.Total().Equal(decimal.NewFromInt(10)))
		})
	}
}

func TestStore_QuantityLimit_Boundary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 1)))

	require.NoError(t, s.AddItem(ctx, "p1", MaxLineQuantity-1))
	require.NoError(t, s.AddItem(ctx, "p1", 1))
	assert.Equal(t, MaxLineQuantity, s.ItemCount())

	require.ErrorIs(t, s.AddItem(ctx, "p1", 1), ErrQuantityTooLarge)
	require.NoError(t, s.SetQuantity(ctx, "p1", MaxLineQuantity))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(MaxLineQuantity)))
}

func TestStore_Restore(t *testing.T) {
	// Arrange
	ctx := context.Background()
	snapshots := store.NewMemoryStore()
	first := newTestStore(t, snapshots, newFakeCatalog(product("p1", 5), product("p2", 8)))
	require.NoError(t, first.AddItem(ctx, "p1", 2))
	require.NoError(t, first.AddItem(ctx, "p2", 1))
	want, _ := first.Cart()

	// Act
	second := newTestStore(t, snapshots, newFakeCatalog())
	second.Restore(ctx)

	// Assert
	got, ok := second.Cart()
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 3, second.ItemCount())
	assert.True(t, second.Total().Equal(decimal.NewFromInt(18)))
}

func TestStore_Restore_RecomputesTotals(t *testing.T) {
	// Arrange
	ctx := context.Background()
	snapshots := store.NewMemoryStore()
	raw := `{"id":"local-x","items":[{"productId":"p1","unitPrice":"2.5","quantity":4,"subtotal":"999"}],"total":"12345"}`
	require.NoError(t, snapshots.Set(ctx, testKey, []byte(raw)))
	s := newTestStore(t, snapshots, newFakeCatalog())

	// Act
	s.Restore(ctx)

	// Assert
	c, ok := s.Cart()
	require.True(t, ok)
	assert.True(t, c.Items[0].Subtotal.Equal(decimal.NewFromInt(10)))
	assert.True(t, c.Total.Equal(decimal.NewFromInt(10)))
}

func TestStore_Restore_FallsBackToEmpty(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantFound bool
	}{
		{name: "missing snapshot"},
		{name: "corrupt snapshot", raw: `{"items": [`},
		{name: "no items", raw: `{"id":"local-1","items":[],"total":"0"}`},
		{name: "only invalid lines", raw: `{"id":"local-1","items":[{"productId":"","quantity":1},{"productId":"p1","quantity":0},{"productId":"p2","quantity":10000}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			snapshots := store.NewMemoryStore()
			if tt.raw != "" {
				require.NoError(t, snapshots.Set(ctx, testKey, []byte(tt.raw)))
			}
			s := newTestStore(t, snapshots, newFakeCatalog())

			// Act
			s.Restore(ctx)

			// Assert
			assert.IsType(t, Empty{}, s.State())
			assert.True(t, s.Total().IsZero())
			_, err := snapshots.Get(ctx, testKey)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestStore_Listener(t *testing.T) {
	// Arrange
	ctx := context.Background()
	var states []State
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 5)),
		WithListener(func(st State) { states = append(states, st) }))

	// Act
	require.NoError(t, s.AddItem(ctx, "p1", 1))
	require.NoError(t, s.Clear(ctx))

	// Assert
	require.Len(t, states, 2)
	assert.IsType(t, Active{}, states[0])
	assert.IsType(t, Empty{}, states[1])
}

func TestStore_RemoteSync(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		remote     *fakeRemote
		wantCalls  int
		wantCartID string
	}{
		{"adopts remote id", "tok", &fakeRemote{cartID: "remote-1"}, 1, "remote-1"},
		{"failure keeps local add", "tok", &fakeRemote{err: errors.New("boom")}, 1, "local-fixed"},
		{"anonymous skips sync", "", &fakeRemote{cartID: "remote-1"}, 0, "local-fixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 5)),
				WithIDGenerator(func() string { return "local-fixed" }),
				WithRemoteSync(tt.remote, func() string { return tt.token }),
			)

			// Act
			err := s.AddItem(context.Background(), "p1", 1)

			// Assert
			require.NoError(t, err)
			assert.Len(t, tt.remote.tokens, tt.wantCalls)
			c, ok := s.Cart()
			require.True(t, ok)
			assert.Equal(t, tt.wantCartID, c.ID)
			assert.Equal(t, 1, c.ItemCount())
		})
	}
}

func TestStore_ConcurrentAdds(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s := newTestStore(t, store.NewMemoryStore(), newFakeCatalog(product("p1", 1)))
	const workers = 20

	// Act
	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AddItem(ctx, "p1", 1)
			_ = s.ItemCount()
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, workers, s.ItemCount())
	assert.Equal(t, 1, s.LineCount())
}

func TestViewOf(t *testing.T) {
	empty := ViewOf(Empty{})
	assert.True(t, empty.Empty)
	assert.NotNil(t, empty.Items)

	active := ViewOf(Active{Cart: model.Cart{ID: "c1", Items: []model.CartItem{{ProductID: "p1", Quantity: 2}}}})
	assert.False(t, active.Empty)
	assert.Equal(t, 2, active.ItemCount)
}
