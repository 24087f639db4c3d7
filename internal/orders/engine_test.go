package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gretalab/go-commerce-orders/internal/stock"
)

const testEmail = "alice@example.com"

func newEngine() (*Engine, *stock.MemoryLedger, *MemoryStore) {
	ledger := stock.NewMemoryLedger()
	store := NewMemoryStore(ledger)
	e := &Engine{Ledger: ledger, Catalog: ledger, Store: store, Log: zap.NewNop()}
	return e, ledger, store
}

func TestPlaceOrder_HappyPath(t *testing.T) {
	ctx := context.Background()
	e, ledger, store := newEngine()
	ledger.AddProduct(1, 1000, 5)
	ledger.AddProduct(2, 250, 10)

	o, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 2},
	})
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, testEmail, o.CustomerEmail)
	assert.False(t, o.OrderDate.IsZero())
	assert.Equal(t, int64(2*1000+1*250), o.TotalCents)

	// items come back in ascending product-id order with snapshotted prices
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(1), o.Items[0].ProductID)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, int64(1000), o.Items[0].UnitPriceCents)
	assert.Equal(t, int64(2), o.Items[1].ProductID)
	assert.Equal(t, o.ID, o.Items[0].OrderID)

	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 3, n)
	n, _ = ledger.StockOf(ctx, 2)
	assert.Equal(t, 9, n)

	stored, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalCents, stored.TotalCents)
}

func TestPlaceOrder_InvalidRequests(t *testing.T) {
	ctx := context.Background()
	e, ledger, _ := newEngine()
	ledger.AddProduct(1, 1000, 5)

	tests := []struct {
		name  string
		email string
		items []ItemRequest
	}{
		{name: "no items", email: testEmail, items: nil},
		{name: "bad email", email: "not-an-email", items: []ItemRequest{{ProductID: 1, Quantity: 1}}},
		{name: "zero quantity", email: testEmail, items: []ItemRequest{{ProductID: 1, Quantity: 0}}},
		{name: "negative quantity", email: testEmail, items: []ItemRequest{{ProductID: 1, Quantity: -2}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.PlaceOrder(ctx, tc.email, tc.items)
			assert.ErrorIs(t, err, ErrInvalidOrder)

			n, _ := ledger.StockOf(ctx, 1)
			assert.Equal(t, 5, n)
		})
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	e, ledger, _ := newEngine()
	ledger.AddProduct(1, 1000, 5)

	_, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{
		{ProductID: 1, Quantity: 1},
		{ProductID: 99, Quantity: 1},
	})
	assert.ErrorIs(t, err, stock.ErrProductNotFound)

	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 5, n)
}

func TestPlaceOrder_DuplicateProductLinesMerged(t *testing.T) {
	ctx := context.Background()
	e, ledger, _ := newEngine()
	ledger.AddProduct(1, 500, 10)

	o, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{
		{ProductID: 1, Quantity: 1},
		{ProductID: 1, Quantity: 2},
	})
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, int64(1500), o.TotalCents)

	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 7, n)
}

func TestPlaceOrder_LaterItemFailureReleasesEarlierReservations(t *testing.T) {
	ctx := context.Background()
	e, ledger, store := newEngine()
	ledger.AddProduct(1, 1000, 5)
	ledger.AddProduct(2, 400, 0)

	_, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	})

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2), insufficient.ProductID)
	assert.Equal(t, 1, insufficient.Requested)
	assert.Equal(t, 0, insufficient.Available)

	// P1's reservation was taken and then released
	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 5, n)

	out, _ := store.ListOrders(ctx)
	assert.Empty(t, out)
}

// expiringLedger mirrors the Postgres ledger, whose BeginTx fails as soon
// as the caller's context is done. It cancels that context after the first
// successful reservation, like a request deadline firing mid-placement.
type expiringLedger struct {
	*stock.MemoryLedger
	cancel context.CancelFunc
}

func (l *expiringLedger) Reserve(ctx context.Context, productID int64, qty int) (stock.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return stock.Reservation{}, err
	}
	res, err := l.MemoryLedger.Reserve(ctx, productID, qty)
	if err == nil {
		l.cancel()
	}
	return res, err
}

func (l *expiringLedger) Release(ctx context.Context, res stock.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.MemoryLedger.Release(ctx, res)
}

func TestPlaceOrder_RequestExpiryMidPlacementStillReleases(t *testing.T) {
	mem := stock.NewMemoryLedger()
	mem.AddProduct(1, 1000, 5)
	mem.AddProduct(2, 400, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger := &expiringLedger{MemoryLedger: mem, cancel: cancel}
	store := NewMemoryStore(mem)
	e := &Engine{Ledger: ledger, Catalog: mem, Store: store, Log: zap.NewNop()}

	// P1 reserves, the deadline fires, P2's reserve fails on the dead
	// context. Compensation must still return P1's stock.
	_, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	})
	require.Error(t, err)

	n, _ := mem.StockOf(context.Background(), 1)
	assert.Equal(t, 5, n)

	out, _ := store.ListOrders(context.Background())
	assert.Empty(t, out)
}

type failingStore struct {
	Store
}

func (f *failingStore) CreateOrder(ctx context.Context, o *Order) error {
	return errors.New("connection reset")
}

func TestPlaceOrder_PersistenceFailureCompensates(t *testing.T) {
	ctx := context.Background()
	ledger := stock.NewMemoryLedger()
	ledger.AddProduct(1, 1000, 5)
	e := &Engine{
		Ledger:  ledger,
		Catalog: ledger,
		Store:   &failingStore{Store: NewMemoryStore(ledger)},
		Log:     zap.NewNop(),
	}

	_, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{{ProductID: 1, Quantity: 3}})

	var persistence *PersistenceError
	require.ErrorAs(t, err, &persistence)

	// reservations were released, nothing dangles
	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 5, n)
}

func TestPlaceOrder_TotalIsFixedAtOrderTime(t *testing.T) {
	ctx := context.Background()
	e, ledger, store := newEngine()
	ledger.AddProduct(1, 1000, 5)

	o, err := e.PlaceOrder(ctx, testEmail, []ItemRequest{{ProductID: 1, Quantity: 2}})
	require.NoError(t, err)

	ledger.SetPrice(1, 9999)

	stored, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), stored.TotalCents)
	assert.Equal(t, int64(1000), stored.Items[0].UnitPriceCents)
}

func TestPlaceOrder_ConcurrentContention_ExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	e, ledger, store := newEngine()
	ledger.AddProduct(1, 1000, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.PlaceOrder(ctx, testEmail, []ItemRequest{{ProductID: 1, Quantity: 3}})
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			var insufficient *stock.InsufficientStockError
			assert.ErrorAs(t, err, &insufficient)
		}
	}
	assert.Equal(t, 1, okCount)

	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 2, n)

	placed, _ := store.ListOrders(ctx)
	assert.Len(t, placed, 1)
}

func TestPlaceOrder_CommittedQuantitiesNeverExceedStock(t *testing.T) {
	ctx := context.Background()
	e, ledger, store := newEngine()
	const initial = 10
	ledger.AddProduct(1, 100, initial)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.PlaceOrder(ctx, testEmail, []ItemRequest{{ProductID: 1, Quantity: 1}})
		}()
	}
	wg.Wait()

	placed, _ := store.ListOrders(ctx)
	committed := 0
	for _, o := range placed {
		for _, it := range o.Items {
			committed += it.Quantity
		}
	}
	assert.Equal(t, initial, committed)

	n, _ := ledger.StockOf(ctx, 1)
	assert.Equal(t, 0, n)
}
