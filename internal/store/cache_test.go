package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pofinance/internal/backend"
	"github.com/example/pofinance/internal/ledger"
)

func newTestCache(t *testing.T) *POCache {
	t.Helper()
	cache, err := OpenPOCache(filepath.Join(t.TempDir(), "po-cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	original := po(1, vendorA, ledger.StatusCreated)
	require.NoError(t, cache.Put(ctx, &original))

	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Buyer, got.Buyer)
	assert.Equal(t, original.Vendor, got.Vendor)
	assert.True(t, original.Amount.Equal(got.Amount))
	assert.True(t, original.DeliveryDate.Equal(got.DeliveryDate))
	assert.Equal(t, original.GoodsCategory, got.GoodsCategory)
	assert.Equal(t, original.Status, got.Status)
}

func TestCacheGetMissing(t *testing.T) {
	cache := newTestCache(t)
	_, err := cache.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCacheUpdatesOnlyStatus(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	original := po(1, vendorA, ledger.StatusCreated)
	require.NoError(t, cache.Put(ctx, &original))

	// a second write with drifted immutable fields only lands the status
	drifted := original
	drifted.Vendor = vendorB
	drifted.Amount = decimal.NewFromInt(999)
	drifted.Status = ledger.StatusFinanced
	require.NoError(t, cache.Put(ctx, &drifted))

	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, vendorA, got.Vendor)
	assert.True(t, original.Amount.Equal(got.Amount))
	assert.Equal(t, ledger.StatusFinanced, got.Status)
}

func TestRefreshBackfillsFromCache(t *testing.T) {
	cache := newTestCache(t)
	fl := &fakeLedger{pos: []ledger.PurchaseOrder{
		po(1, vendorA, ledger.StatusCreated),
		po(2, vendorA, ledger.StatusCreated),
	}}
	st := newTestStore(fl, &fakeBackend{}, &fixedAccount{addr: vendorA}, cache)

	// a clean refresh populates the cache
	require.NoError(t, st.Refresh(context.Background()))
	require.Len(t, st.Snapshot().POs, 2)

	// one record becomes unreadable mid-scan; the cached copy stands in
	fl.mu.Lock()
	fl.readErr = map[uint64]error{1: ledger.ErrRPCUnavailable}
	fl.mu.Unlock()

	require.NoError(t, st.Refresh(context.Background()))
	snap := st.Snapshot()
	assert.Len(t, snap.POs, 2)
	assert.False(t, snap.LedgerStale)
	assert.NoError(t, st.LastError())
}

func TestRefreshFailsScanWhenCacheCannotCover(t *testing.T) {
	cache := newTestCache(t)
	fl := &fakeLedger{
		pos:     []ledger.PurchaseOrder{po(1, vendorA, ledger.StatusCreated)},
		readErr: map[uint64]error{1: ledger.ErrRPCUnavailable},
	}
	fb := &fakeBackend{loans: []backend.Loan{{ID: 1, POID: 1, Status: backend.LoanPending}}}
	st := newTestStore(fl, fb, &fixedAccount{addr: vendorA}, cache)

	// never-seen record, no cached copy: the ledger side of the refresh fails
	require.NoError(t, st.Refresh(context.Background()))

	snap := st.Snapshot()
	assert.True(t, snap.LedgerStale)
	assert.Empty(t, snap.POs)
	assert.Len(t, snap.Loans, 1, "backend side must still update")

	var partial *PartialSyncError
	require.ErrorAs(t, st.LastError(), &partial)
	assert.Equal(t, "ledger", partial.Source)
}

func TestCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "po-cache.db")
	ctx := context.Background()

	cache, err := OpenPOCache(path)
	require.NoError(t, err)
	record := ledger.PurchaseOrder{
		ID:            5,
		Buyer:         buyer,
		Vendor:        vendorA,
		Amount:        decimal.RequireFromString("1234.56"),
		DeliveryDate:  time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		GoodsCategory: "Construction",
		Status:        ledger.StatusCreated,
	}
	require.NoError(t, cache.Put(ctx, &record))
	require.NoError(t, cache.Close())

	reopened, err := OpenPOCache(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, record.Amount.Equal(got.Amount))
	assert.Equal(t, "Construction", got.GoodsCategory)
}
