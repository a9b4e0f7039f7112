package checkout

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the real row-locking behaviour and need a Postgres
// with schema.sql applied. They skip when POSTGRES_DSN is not set.

type testEnv struct {
	db     *pgxpool.Pool
	ledger *Ledger
	store  *Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(db.Close)
	ledger := &Ledger{DB: db}
	return &testEnv{db: db, ledger: ledger, store: &Store{DB: db, Ledger: ledger}}
}

// seedVariant creates a tracked product with one variant at the given stock.
func (e *testEnv) seedVariant(t *testing.T, stock int) (productID, variantID string) {
	t.Helper()
	ctx := context.Background()
	productID = uuid.NewString()
	variantID = uuid.NewString()
	name := "test-" + productID[:8]
	_, err := e.db.Exec(ctx, `
		INSERT INTO products(id, name, slug, base_price_cents, has_variants, track_inventory, type, active)
		VALUES ($1,$2,$2,1000,true,true,'physical',true)`, productID, name)
	require.NoError(t, err)
	_, err = e.db.Exec(ctx, `
		INSERT INTO variants(id, product_id, name, inventory_quantity)
		VALUES ($1,$2,'default',$3)`, variantID, productID, stock)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = e.db.Exec(ctx, `DELETE FROM products WHERE id=$1`, productID)
	})
	return productID, variantID
}

func (e *testEnv) seedOrder(t *testing.T, productID, variantID string, qty int) *Order {
	t.Helper()
	o := &Order{
		ID:            uuid.NewString(),
		CheckoutID:    uuid.NewString(),
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items: []LineItem{{
			ProductID:      productID,
			VariantID:      &variantID,
			Name:           "test item",
			Kind:           KindPhysical,
			UnitPriceCents: 1000,
			Quantity:       qty,
		}},
		TotalCents: 1000 * qty,
	}
	require.NoError(t, e.store.CreateOrder(context.Background(), o))
	t.Cleanup(func() {
		_, _ = e.db.Exec(context.Background(), `DELETE FROM orders WHERE id=$1`, o.ID)
	})
	return o
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	env := setupTestEnv(t)
	const stock, requests = 3, 12
	_, variantID := env.seedVariant(t, stock)

	ctx := context.Background()
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.ledger.Reserve(ctx, variantID, uuid.NewString(), 1, time.Minute)
			if err == nil {
				granted.Add(1)
			} else {
				var serr *InsufficientStockError
				require.ErrorAs(t, err, &serr)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(stock), granted.Load())
	avail, err := env.ledger.Available(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
}

func TestLedger_ReleaseIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	_, variantID := env.seedVariant(t, 5)
	ctx := context.Background()

	checkoutID := uuid.NewString()
	require.NoError(t, env.ledger.Reserve(ctx, variantID, checkoutID, 2, time.Minute))

	require.NoError(t, env.ledger.Release(ctx, checkoutID))
	require.NoError(t, env.ledger.Release(ctx, checkoutID))

	avail, err := env.ledger.Available(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 5, avail, "double release must not double-free")
}

func TestLedger_ExpiredHoldsDoNotCount(t *testing.T) {
	env := setupTestEnv(t)
	_, variantID := env.seedVariant(t, 1)
	ctx := context.Background()

	require.NoError(t, env.ledger.Reserve(ctx, variantID, uuid.NewString(), 1, 50*time.Millisecond))

	// Held: a second checkout loses.
	err := env.ledger.Reserve(ctx, variantID, uuid.NewString(), 1, time.Minute)
	var serr *InsufficientStockError
	require.ErrorAs(t, err, &serr)

	time.Sleep(100 * time.Millisecond)

	// Expired but not yet swept: the unit is reservable again.
	require.NoError(t, env.ledger.Reserve(ctx, variantID, uuid.NewString(), 1, time.Minute))
}

func TestConfirmPayment_IssuesGiftCertificateExactlyOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	// A gift-certificate order for $100 to jane@example.com.
	productID := uuid.NewString()
	_, err := env.db.Exec(ctx, `
		INSERT INTO products(id, name, slug, base_price_cents, has_variants, track_inventory, type, active)
		VALUES ($1,$2,$2,10000,false,false,'gift_certificate',true)`, productID, "gift-"+productID[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = env.db.Exec(ctx, `DELETE FROM products WHERE id=$1`, productID) })

	o := &Order{
		ID:            uuid.NewString(),
		CheckoutID:    uuid.NewString(),
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items: []LineItem{{
			ProductID:      productID,
			Name:           "Gift Certificate",
			Kind:           KindGiftCertificate,
			UnitPriceCents: 10000,
			Quantity:       1,
			GiftRecipient:  &GiftRecipient{Name: "Jane", Email: "jane@example.com"},
		}},
		TotalCents: 10000,
	}
	require.NoError(t, env.store.CreateOrder(ctx, o))
	t.Cleanup(func() {
		_, _ = env.db.Exec(ctx, `DELETE FROM gift_certificates WHERE order_id=$1`, o.ID)
		_, _ = env.db.Exec(ctx, `DELETE FROM orders WHERE id=$1`, o.ID)
	})

	certs, err := env.store.ConfirmPayment(ctx, uuid.NewString(), o.ID)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, 10000, certs[0].RemainingCents)
	assert.Equal(t, "jane@example.com", certs[0].RecipientEmail)

	// A redelivery with a fresh event id is refused by the state table.
	_, err = env.store.ConfirmPayment(ctx, uuid.NewString(), o.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)

	var count int
	require.NoError(t, env.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM gift_certificates WHERE order_id=$1`, o.ID).Scan(&count))
	assert.Equal(t, 1, count)

	got, err := env.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFulfilled, got.Status)
	assert.NotNil(t, got.PaidAt)
}

func TestConfirmPayment_DuplicateEventID(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 5)
	o := env.seedOrder(t, productID, variantID, 2)

	eventID := uuid.NewString()
	_, err := env.store.ConfirmPayment(ctx, eventID, o.ID)
	require.NoError(t, err)

	_, err = env.store.ConfirmPayment(ctx, eventID, o.ID)
	require.ErrorIs(t, err, ErrDuplicateEvent)

	// Inventory was decremented exactly once.
	var onHand int
	require.NoError(t, env.db.QueryRow(ctx,
		`SELECT inventory_quantity FROM variants WHERE id=$1`, variantID).Scan(&onHand))
	assert.Equal(t, 3, onHand)
}

func TestSweeper_ExpiresOrderAndRestoresStock(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 1)
	o := env.seedOrder(t, productID, variantID, 1)

	require.NoError(t, env.ledger.Reserve(ctx, variantID, o.CheckoutID, 1, time.Second))

	avail, err := env.ledger.Available(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 0, avail)

	time.Sleep(1100 * time.Millisecond)

	sweeper := &Sweeper{DB: env.db, Store: env.store, Interval: time.Minute}
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	got, err := env.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	avail, err = env.ledger.Available(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 1, avail, "stock must return to its pre-checkout value")
}

func TestFailPayment_ReleasesHoldsAndCancels(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 2)
	o := env.seedOrder(t, productID, variantID, 2)

	require.NoError(t, env.ledger.Reserve(ctx, variantID, o.CheckoutID, 2, time.Minute))
	require.NoError(t, env.store.SetProviderRef(ctx, o.ID, "ps_"+o.ID))

	require.NoError(t, env.store.FailPayment(ctx, uuid.NewString(), o.ID))

	got, err := env.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	avail, err := env.ledger.Available(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 2, avail)

	// Stock never moved: holds were released, not committed.
	var onHand int
	require.NoError(t, env.db.QueryRow(ctx,
		`SELECT inventory_quantity FROM variants WHERE id=$1`, variantID).Scan(&onHand))
	assert.Equal(t, 2, onHand)
}

func TestSetProviderRef_OnlyOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 1)
	o := env.seedOrder(t, productID, variantID, 1)

	require.NoError(t, env.store.SetProviderRef(ctx, o.ID, fmt.Sprintf("ps_%s", o.ID)))
	err := env.store.SetProviderRef(ctx, o.ID, "ps_other")
	require.Error(t, err, "a second provider session must be refused")
}
