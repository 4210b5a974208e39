package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/norun9/rocketshoes-cart/cartstore"
	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/norun9/rocketshoes-cart/notify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCatalog struct {
	mu         sync.Mutex
	stock      map[int]int
	products   map[int]domain.Product
	stockErr   error
	productErr error
	blankStock bool
	stockCalls int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		stock:    map[int]int{},
		products: map[int]domain.Product{},
	}
}

func (f *fakeCatalog) withProduct(id, stock int) *fakeCatalog {
	f.stock[id] = stock
	f.products[id] = product(id)
	return f
}

func (f *fakeCatalog) GetStock(ctx context.Context, productID int) (domain.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stockCalls++
	if f.stockErr != nil {
		return domain.Stock{}, f.stockErr
	}
	if f.blankStock {
		return domain.Stock{}, nil
	}
	amount, ok := f.stock[productID]
	if !ok {
		return domain.Stock{}, errors.New("stock not found")
	}
	return domain.Stock{ProductID: productID, Amount: amount}, nil
}

func (f *fakeCatalog) GetProduct(ctx context.Context, productID int) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.productErr != nil {
		return domain.Product{}, f.productErr
	}
	p, ok := f.products[productID]
	if !ok {
		return domain.Product{}, errors.New("product not found")
	}
	return p, nil
}

// flakyStore fails Save or Load on demand.
type flakyStore struct {
	*cartstore.LocalCartStore
	saveErr error
	loadErr error
}

func (s *flakyStore) Save(ctx context.Context, c domain.Cart) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.LocalCartStore.Save(ctx, c)
}

func (s *flakyStore) Load(ctx context.Context) (domain.Cart, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.LocalCartStore.Load(ctx)
}

func product(id int) domain.Product {
	return domain.Product{
		ID:    id,
		Title: "Tênis " + string(rune('A'+id)),
		Price: 100 + float64(id),
		Image: "https://example.com/tenis.jpg",
	}
}

func item(id, amount int) domain.CartItem {
	return domain.CartItem{Product: product(id), Amount: amount}
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

type fixture struct {
	store    *flakyStore
	catalog  *fakeCatalog
	notifier *notify.Recorder
	c        *Container
}

func newFixture(t *testing.T, initial domain.Cart, cat *fakeCatalog) *fixture {
	t.Helper()
	ctx := context.Background()

	store := &flakyStore{LocalCartStore: cartstore.NewLocalCartStore(quietLogger())}
	if initial != nil {
		require.NoError(t, store.Save(ctx, initial))
	}
	rec := &notify.Recorder{}

	c, err := New(ctx, store, cat, rec, WithLogger(quietLogger()))
	require.NoError(t, err)

	return &fixture{store: store, catalog: cat, notifier: rec, c: c}
}

func (f *fixture) persisted(t *testing.T) domain.Cart {
	t.Helper()
	stored, err := f.store.LocalCartStore.Load(context.Background())
	require.NoError(t, err)
	return stored
}

func TestAddProductToEmptyCart(t *testing.T) {
	f := newFixture(t, nil, newFakeCatalog().withProduct(1, 5))

	outcome := f.c.AddProduct(context.Background(), 1)

	assert.Equal(t, OK, outcome)
	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, domain.Cart{item(1, 1)}, f.persisted(t))
	assert.Empty(t, f.notifier.Messages())
}

func TestAddDistinctProducts(t *testing.T) {
	cat := newFakeCatalog().withProduct(1, 5).withProduct(2, 5).withProduct(3, 5)
	f := newFixture(t, nil, cat)

	for _, id := range []int{3, 1, 2} {
		require.Equal(t, OK, f.c.AddProduct(context.Background(), id))
	}

	want := domain.Cart{item(3, 1), item(1, 1), item(2, 1)}
	assert.Equal(t, want, f.c.Cart())
	assert.Equal(t, want, f.persisted(t))
}

func TestAddSameProductTwice(t *testing.T) {
	f := newFixture(t, nil, newFakeCatalog().withProduct(1, 5))

	require.Equal(t, OK, f.c.AddProduct(context.Background(), 1))
	require.Equal(t, OK, f.c.AddProduct(context.Background(), 1))

	assert.Equal(t, domain.Cart{item(1, 2)}, f.c.Cart())
	assert.Equal(t, domain.Cart{item(1, 2)}, f.persisted(t))
}

func TestAddProductOutOfStock(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1)}, newFakeCatalog().withProduct(1, 1))

	outcome := f.c.AddProduct(context.Background(), 1)

	assert.Equal(t, OutOfStock, outcome)
	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, domain.Cart{item(1, 1)}, f.persisted(t))
	assert.Equal(t, []string{MsgOutOfStock}, f.notifier.Messages())
}

func TestAddProductWithNoStock(t *testing.T) {
	f := newFixture(t, nil, newFakeCatalog().withProduct(1, 0))

	assert.Equal(t, OutOfStock, f.c.AddProduct(context.Background(), 1))
	assert.Empty(t, f.c.Cart())
	assert.Equal(t, []string{MsgOutOfStock}, f.notifier.Messages())
}

func TestAddProductLookupFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeCatalog)
	}{
		{name: "stock fails", setup: func(f *fakeCatalog) { f.stockErr = errors.New("connection refused") }},
		{name: "product fails", setup: func(f *fakeCatalog) { f.productErr = errors.New("502 bad gateway") }},
		{name: "unknown product", setup: func(f *fakeCatalog) { delete(f.stock, 2) }},
		{name: "catalog returns another product", setup: func(f *fakeCatalog) { f.products[2] = product(7) }},
		{name: "blank stock record", setup: func(f *fakeCatalog) { f.blankStock = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newFakeCatalog().withProduct(1, 5).withProduct(2, 5)
			tt.setup(cat)
			f := newFixture(t, domain.Cart{item(1, 1)}, cat)

			outcome := f.c.AddProduct(context.Background(), 2)

			assert.Equal(t, Unavailable, outcome)
			assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
			assert.Equal(t, domain.Cart{item(1, 1)}, f.persisted(t))
			assert.Equal(t, []string{MsgAddFailed}, f.notifier.Messages())
		})
	}
}

func TestRemoveProduct(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1), item(2, 3), item(3, 2)}, newFakeCatalog())

	outcome := f.c.RemoveProduct(context.Background(), 2)

	assert.Equal(t, OK, outcome)
	assert.Equal(t, domain.Cart{item(1, 1), item(3, 2)}, f.c.Cart())
	assert.Equal(t, domain.Cart{item(1, 1), item(3, 2)}, f.persisted(t))
	assert.Empty(t, f.notifier.Messages())
	assert.Zero(t, f.catalog.stockCalls)
}

func TestRemoveProductNotInCart(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1)}, newFakeCatalog())

	outcome := f.c.RemoveProduct(context.Background(), 9)

	assert.Equal(t, NotFound, outcome)
	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, []string{MsgRemoveFailed}, f.notifier.Messages())
}

func TestUpdateProductAmountIgnoresNonPositive(t *testing.T) {
	for _, amount := range []int{0, -1, -50} {
		f := newFixture(t, domain.Cart{item(1, 2)}, newFakeCatalog().withProduct(1, 5))

		outcome := f.c.UpdateProductAmount(context.Background(), 1, amount)

		assert.Equal(t, Ignored, outcome)
		assert.Equal(t, domain.Cart{item(1, 2)}, f.c.Cart())
		assert.Empty(t, f.notifier.Messages())
		assert.Zero(t, f.catalog.stockCalls, "no stock lookup for amount %d", amount)
	}
}

func TestUpdateProductAmountWithinStock(t *testing.T) {
	f := newFixture(t, domain.Cart{item(4, 1), item(2, 3), item(6, 2)}, newFakeCatalog().withProduct(2, 10))

	outcome := f.c.UpdateProductAmount(context.Background(), 2, 5)

	want := domain.Cart{item(4, 1), item(2, 5), item(6, 2)}
	assert.Equal(t, OK, outcome)
	assert.Equal(t, want, f.c.Cart())
	assert.Equal(t, want, f.persisted(t))
	assert.Empty(t, f.notifier.Messages())
}

func TestUpdateProductAmountOutOfStock(t *testing.T) {
	f := newFixture(t, domain.Cart{item(2, 3)}, newFakeCatalog().withProduct(2, 4))

	outcome := f.c.UpdateProductAmount(context.Background(), 2, 5)

	assert.Equal(t, OutOfStock, outcome)
	assert.Equal(t, domain.Cart{item(2, 3)}, f.c.Cart())
	assert.Equal(t, []string{MsgOutOfStock}, f.notifier.Messages())
}

func TestUpdateProductAmountNotInCart(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1)}, newFakeCatalog().withProduct(2, 10))

	outcome := f.c.UpdateProductAmount(context.Background(), 2, 3)

	assert.Equal(t, NotFound, outcome)
	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, []string{MsgUpdateFailed}, f.notifier.Messages())
}

func TestUpdateProductAmountStockLookupFails(t *testing.T) {
	cat := newFakeCatalog().withProduct(1, 10)
	cat.stockErr = errors.New("timeout")
	f := newFixture(t, domain.Cart{item(1, 1)}, cat)

	outcome := f.c.UpdateProductAmount(context.Background(), 1, 3)

	assert.Equal(t, Unavailable, outcome)
	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, []string{MsgUpdateFailed}, f.notifier.Messages())
}

func TestUpdateProductAmountBlankStockRecord(t *testing.T) {
	cat := newFakeCatalog().withProduct(1, 10)
	cat.blankStock = true
	f := newFixture(t, domain.Cart{item(1, 1)}, cat)

	outcome := f.c.UpdateProductAmount(context.Background(), 1, 3)

	assert.Equal(t, Unavailable, outcome)
	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, []string{MsgUpdateFailed}, f.notifier.Messages())
}

func TestClear(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1), item(2, 2)}, newFakeCatalog())

	assert.Equal(t, OK, f.c.Clear(context.Background()))
	assert.Empty(t, f.c.Cart())
	assert.Empty(t, f.persisted(t))

	raw, ok := f.store.Raw()
	require.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestSaveFailureKeepsCart(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1)}, newFakeCatalog().withProduct(1, 5).withProduct(2, 5))
	f.store.saveErr = errors.New("quota exceeded")
	ctx := context.Background()

	assert.Equal(t, StoreFailed, f.c.AddProduct(ctx, 2))
	assert.Equal(t, StoreFailed, f.c.AddProduct(ctx, 1))
	assert.Equal(t, StoreFailed, f.c.UpdateProductAmount(ctx, 1, 3))
	assert.Equal(t, StoreFailed, f.c.RemoveProduct(ctx, 1))
	assert.Equal(t, StoreFailed, f.c.Clear(ctx))

	assert.Equal(t, domain.Cart{item(1, 1)}, f.c.Cart())
	assert.Equal(t, domain.Cart{item(1, 1)}, f.persisted(t))
	assert.Equal(t, []string{MsgAddFailed, MsgAddFailed, MsgUpdateFailed, MsgRemoveFailed, MsgClearFailed}, f.notifier.Messages())
}

func TestSnapshotIsIsolated(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1)}, newFakeCatalog())

	snap := f.c.Cart()
	snap[0].Amount = 99

	assert.Equal(t, 1, f.c.Cart()[0].Amount)
}

func TestNewRestoresPersistedCart(t *testing.T) {
	f := newFixture(t, nil, newFakeCatalog().withProduct(1, 5).withProduct(2, 5))
	ctx := context.Background()
	require.Equal(t, OK, f.c.AddProduct(ctx, 2))
	require.Equal(t, OK, f.c.AddProduct(ctx, 1))
	require.Equal(t, OK, f.c.AddProduct(ctx, 1))

	reloaded, err := New(ctx, f.store, f.catalog, f.notifier, WithLogger(quietLogger()))
	require.NoError(t, err)

	want := domain.Cart{item(2, 1), item(1, 2)}
	if diff := cmp.Diff(want, reloaded.Cart()); diff != "" {
		t.Errorf("reloaded cart mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, f.c.Cart(), reloaded.Cart())
}

func TestNewDiscardsMalformedCart(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid json", raw: "[{oops"},
		{name: "duplicate ids", raw: `[{"id":1,"title":"a","price":1,"image":"i","amount":1},{"id":1,"title":"a","price":1,"image":"i","amount":0}]`},
		{name: "zero amount", raw: `[{"id":4,"title":"a","price":1,"image":"i","amount":0}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cartstore.NewLocalCartStore(quietLogger())
			store.SetRaw(tt.raw)
			log, hook := test.NewNullLogger()

			c, err := New(context.Background(), store, newFakeCatalog().withProduct(1, 5), &notify.Recorder{}, WithLogger(log))
			require.NoError(t, err)

			assert.Empty(t, c.Cart())
			require.NotEmpty(t, hook.Entries)
			assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)

			// the cart is usable and the next save replaces the bad value
			require.Equal(t, OK, c.AddProduct(context.Background(), 1))
			stored, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, domain.Cart{item(1, 1)}, stored)
		})
	}
}

func TestNewFailsWhenStoreFails(t *testing.T) {
	store := &flakyStore{
		LocalCartStore: cartstore.NewLocalCartStore(quietLogger()),
		loadErr:        errors.New("redis down"),
	}

	_, err := New(context.Background(), store, newFakeCatalog(), &notify.Recorder{}, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	f := newFixture(t, nil, newFakeCatalog().withProduct(1, 100))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.c.AddProduct(context.Background(), 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.Cart{item(1, 20)}, f.c.Cart())
	assert.Equal(t, domain.Cart{item(1, 20)}, f.persisted(t))
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, domain.Cart{item(1, 1)}, newFakeCatalog().withProduct(2, 5))
	ctx, cancel := context.WithCancel(context.Background())

	updates := f.c.Subscribe(ctx)
	assert.Equal(t, domain.Cart{item(1, 1)}, <-updates)

	require.Equal(t, OK, f.c.AddProduct(context.Background(), 2))
	require.Equal(t, OK, f.c.RemoveProduct(context.Background(), 1))

	// only the newest cart is buffered
	assert.Equal(t, domain.Cart{item(2, 1)}, <-updates)

	// failures publish nothing
	assert.Equal(t, NotFound, f.c.RemoveProduct(context.Background(), 1))
	select {
	case got := <-updates:
		t.Fatalf("unexpected update %v", got)
	default:
	}

	cancel()
	for range updates {
	}
}
