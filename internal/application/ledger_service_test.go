package application

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(balance int64) (*LedgerService, *inMemoryLedgerStore, *recordingPublisher) {
	store := newLedgerStore(balance)
	events := &recordingPublisher{}
	clock := fixedClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	return NewLedgerService(store, events, clock, "device-a"), store, events
}

func TestLedgerEarnRoundsAndPublishes(t *testing.T) {
	t.Parallel()

	ledger, store, events := newTestLedger(0)

	snapshot, err := ledger.Earn(context.Background(), 2.6, map[string]string{domain.MetaReason: "productive"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), snapshot.Balance)

	txs := store.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionEarn, txs[0].Kind)
	assert.Equal(t, int64(3), txs[0].Amount)
	assert.NotEmpty(t, txs[0].SyncID)
	assert.Equal(t, "device-a", txs[0].Origin)

	updates := events.ofType(domain.EventWalletUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(3), updates[0].Wallet.Balance)
	assert.Equal(t, txs[0].SyncID, updates[0].Transaction.SyncID)
}

func TestLedgerEarnUsesSuppliedSyncID(t *testing.T) {
	t.Parallel()

	ledger, store, _ := newTestLedger(0)

	_, err := ledger.Earn(context.Background(), 1, map[string]string{domain.MetaSyncID: "fixed-id", "k": "v"})
	require.NoError(t, err)

	txs := store.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "fixed-id", txs[0].SyncID)
	assert.Equal(t, map[string]string{"k": "v"}, txs[0].Meta)

	_, err = ledger.Earn(context.Background(), 1, map[string]string{domain.MetaSyncID: "fixed-id"})
	require.ErrorIs(t, err, domain.ErrDuplicateSyncID)
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	t.Parallel()

	ledger, store, events := newTestLedger(10)

	for _, amount := range []float64{0, -1, 0.4, math.NaN(), math.Inf(1)} {
		_, err := ledger.Earn(context.Background(), amount, nil)
		require.ErrorIs(t, err, domain.ErrInvalidAmount, "earn %v", amount)
		_, err = ledger.Spend(context.Background(), amount, nil)
		require.ErrorIs(t, err, domain.ErrInvalidAmount, "spend %v", amount)
	}

	assert.Empty(t, store.transactions())
	assert.Empty(t, events.events)
}

func TestLedgerSpendInsufficientFundsLeavesBalance(t *testing.T) {
	t.Parallel()

	ledger, store, events := newTestLedger(5)

	_, err := ledger.Spend(context.Background(), 6, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	snapshot, err := ledger.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), snapshot.Balance)
	assert.Empty(t, store.transactions())
	assert.Empty(t, events.events)
}

func TestLedgerAdjustFloorsAtZero(t *testing.T) {
	t.Parallel()

	ledger, store, _ := newTestLedger(10)

	snapshot, err := ledger.Adjust(context.Background(), -15, map[string]string{domain.MetaReason: "emergency-debt"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), snapshot.Balance)

	txs := store.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-10), txs[0].Amount)
	assert.Equal(t, "-15", txs[0].Meta[domain.MetaRequested])

	snapshot, err = ledger.Adjust(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snapshot.Balance)
	assert.Len(t, store.transactions(), 1)
}

func TestLedgerBalanceNeverNegative(t *testing.T) {
	t.Parallel()

	ledger, _, _ := newTestLedger(0)
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		before, err := ledger.Balance(ctx)
		require.NoError(t, err)

		amount := float64(rng.Intn(20) + 1)
		switch rng.Intn(3) {
		case 0:
			_, err = ledger.Earn(ctx, amount, nil)
			require.NoError(t, err)
		case 1:
			_, err = ledger.Spend(ctx, amount, nil)
			if err != nil {
				require.ErrorIs(t, err, domain.ErrInsufficientFunds)
				after, balErr := ledger.Balance(ctx)
				require.NoError(t, balErr)
				assert.Equal(t, before, after)
			}
		default:
			_, err = ledger.Adjust(ctx, int64(rng.Intn(41)-20), nil)
			require.NoError(t, err)
		}

		after, err := ledger.Balance(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, after.Balance, int64(0))
	}
}

func TestLedgerApplyRemoteTransactionIsIdempotent(t *testing.T) {
	t.Parallel()

	ledger, _, events := newTestLedger(10)
	record := domain.RemoteTransaction{
		SyncID:    "remote-1",
		Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Kind:      domain.TransactionEarn,
		Amount:    7,
		Origin:    "device-b",
	}

	first, applied, err := ledger.ApplyRemoteTransaction(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(17), first.Balance)

	second, applied, err := ledger.ApplyRemoteTransaction(context.Background(), record)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first, second)
	assert.Len(t, events.ofType(domain.EventWalletUpdated), 1)
}

func TestLedgerApplyRemoteTransactionOrderIndependent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []domain.RemoteTransaction{
		{SyncID: "a", Timestamp: base, Kind: domain.TransactionEarn, Amount: 10},
		{SyncID: "b", Timestamp: base.Add(time.Minute), Kind: domain.TransactionSpend, Amount: 12},
		{SyncID: "c", Timestamp: base.Add(2 * time.Minute), Kind: domain.TransactionAdjust, Amount: -3},
		{SyncID: "d", Timestamp: base.Add(3 * time.Minute), Kind: domain.TransactionEarn, Amount: 8},
	}

	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	var balances []int64
	for _, order := range orders {
		ledger, _, _ := newTestLedger(5)
		for _, idx := range order {
			_, _, err := ledger.ApplyRemoteTransaction(context.Background(), records[idx])
			require.NoError(t, err)
		}
		snapshot, err := ledger.Balance(context.Background())
		require.NoError(t, err)
		balances = append(balances, snapshot.Balance)
	}

	for _, balance := range balances {
		assert.Equal(t, int64(8), balance)
	}
}

func TestLedgerApplyRemoteTransactionRejectsMalformed(t *testing.T) {
	t.Parallel()

	ledger, store, _ := newTestLedger(0)

	_, _, err := ledger.ApplyRemoteTransaction(context.Background(), domain.RemoteTransaction{Kind: domain.TransactionEarn, Amount: 1})
	require.ErrorIs(t, err, domain.ErrInvalidTransaction)

	_, _, err = ledger.ApplyRemoteTransaction(context.Background(), domain.RemoteTransaction{
		SyncID:    "x",
		Timestamp: time.Now(),
		Kind:      "gift",
		Amount:    1,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransaction)
	assert.Empty(t, store.transactions())
}
