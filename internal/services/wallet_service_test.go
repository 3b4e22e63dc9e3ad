package services

import (
	"context"
	"testing"

	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fundWallet credits staff with a collection of amount
func fundWallet(t *testing.T, f *fixture, amount string) {
	t.Helper()
	_, err := f.wallets.PostCollection(context.Background(), testStaffID, dec(amount), f.store.nextID(), "seed")
	require.NoError(t, err)
}

func TestWalletService_Withdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	fundWallet(t, f, "1000")

	movement, err := f.wallets.Withdraw(ctx, testStaffID, dec("500"), testAdminID, "")
	require.NoError(t, err)
	assert.True(t, movement.Wallet.CurrentBalance.Equal(dec("500")))
	assert.Equal(t, models.WalletTxWithdrawal, movement.Entry.TransactionType)
	assert.True(t, movement.Entry.Amount.Equal(dec("-500")))
	assert.True(t, movement.Entry.Balance.Equal(dec("500")))
	assert.Equal(t, "Cash withdrawal", movement.Entry.Description)
	require.NotNil(t, movement.Entry.CreatedBy)
	assert.Equal(t, testAdminID, *movement.Entry.CreatedBy)

	wallet := f.store.wallets[testStaffID]
	assert.True(t, wallet.CurrentBalance.Equal(dec("500")))
	assert.True(t, wallet.TotalCollected.Equal(dec("1000")))
	assert.True(t, wallet.TotalWithdrawn.Equal(dec("500")))
	assert.True(t, wallet.IsBalanced())
	assert.Len(t, f.store.audits, 1)
}

func TestWalletService_Withdraw_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	fundWallet(t, f, "500")

	_, err := f.wallets.Withdraw(ctx, testStaffID, dec("1500"), testAdminID, "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	wallet := f.store.wallets[testStaffID]
	assert.True(t, wallet.CurrentBalance.Equal(dec("500")))
	assert.True(t, wallet.TotalWithdrawn.IsZero())
	assert.Len(t, f.store.ledger, 1)
	assert.Empty(t, f.store.audits)
}

func TestWalletService_Withdraw_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.wallets.Withdraw(ctx, testStaffID, dec("0"), testAdminID, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.wallets.Withdraw(ctx, testStaffID, dec("-5"), testAdminID, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.wallets.Withdraw(ctx, 404, dec("5"), testAdminID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalletService_ClearBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.wallets.ClearBalance(ctx, testStaffID, testAdminID, "")
	assert.ErrorIs(t, err, ErrValidation, "nothing to clear")

	fundWallet(t, f, "730.25")
	movement, err := f.wallets.ClearBalance(ctx, testStaffID, testAdminID, "End of day handover")
	require.NoError(t, err)
	assert.True(t, movement.Wallet.CurrentBalance.IsZero())
	assert.True(t, movement.Entry.Amount.Equal(dec("-730.25")))
	assert.True(t, movement.Entry.Balance.IsZero())
	assert.Equal(t, "End of day handover", movement.Entry.Description)
	assert.True(t, f.store.wallets[testStaffID].TotalWithdrawn.Equal(dec("730.25")))

	_, err = f.wallets.ClearBalance(ctx, testStaffID, testAdminID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWalletService_Adjust(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	fundWallet(t, f, "100")

	up, err := f.wallets.Adjust(ctx, testStaffID, dec("20"), testAdminID, "Miscounted float")
	require.NoError(t, err)
	assert.Equal(t, models.WalletTxAdjustment, up.Entry.TransactionType)
	assert.True(t, up.Wallet.CurrentBalance.Equal(dec("120")))
	assert.True(t, up.Wallet.TotalCollected.Equal(dec("120")))

	down, err := f.wallets.Adjust(ctx, testStaffID, dec("-70"), testAdminID, "Counterfeit note")
	require.NoError(t, err)
	assert.True(t, down.Wallet.CurrentBalance.Equal(dec("50")))
	assert.True(t, down.Wallet.TotalWithdrawn.Equal(dec("70")))
	assert.True(t, down.Wallet.IsBalanced())

	_, err = f.wallets.Adjust(ctx, testStaffID, dec("-51"), testAdminID, "Too much")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.wallets.Adjust(ctx, testStaffID, dec("5"), testAdminID, " ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.wallets.Adjust(ctx, testStaffID, dec("0"), testAdminID, "noop")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWalletService_GetWallet_CreatesLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	wallet, err := f.wallets.GetWallet(ctx, testStaffID)
	require.NoError(t, err)
	assert.True(t, wallet.CurrentBalance.IsZero())
	assert.Contains(t, f.store.wallets, testStaffID)

	_, err = f.wallets.GetWallet(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, f.store.wallets, uint(404))
}

func TestWalletService_LedgerRunningBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	fundWallet(t, f, "300")
	fundWallet(t, f, "200")
	_, err := f.wallets.Withdraw(ctx, testStaffID, dec("150"), testAdminID, "")
	require.NoError(t, err)
	_, err = f.wallets.Adjust(ctx, testStaffID, dec("-50"), testAdminID, "Short")
	require.NoError(t, err)

	entries, total, err := f.wallets.Ledger(ctx, testStaffID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.True(t, entries[0].Balance.Equal(dec("300")), "newest first")
	assert.True(t, entries[0].Balance.Equal(f.store.wallets[testStaffID].CurrentBalance))

	report, err := f.wallets.Reconcile(ctx, testStaffID)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.True(t, report.TotalsConsistent)
	assert.Equal(t, 4, report.EntryCount)
	assert.True(t, report.LedgerBalance.Equal(dec("300")))
	assert.True(t, report.LedgerCollected.Equal(dec("500")))
	assert.True(t, report.LedgerWithdrawn.Equal(dec("200")))
	assert.Empty(t, report.Discrepancies)
}

func TestWalletService_Reconcile_ReportsDiscrepancies(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	fundWallet(t, f, "100")
	fundWallet(t, f, "50")

	// corrupt the second row's snapshot
	f.store.ledger[1].Balance = dec("160")

	report, err := f.wallets.Reconcile(ctx, testStaffID)
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, f.store.ledger[1].ID, report.Discrepancies[0].EntryID)
	assert.True(t, report.Discrepancies[0].Expected.Equal(dec("150")))
	assert.True(t, report.Discrepancies[0].Recorded.Equal(dec("160")))

	// and a wallet drifting from its ledger
	f.store.ledger[1].Balance = dec("150")
	wallet := f.store.wallets[testStaffID]
	wallet.CurrentBalance = dec("140")
	f.store.wallets[testStaffID] = wallet

	report, err = f.wallets.Reconcile(ctx, testStaffID)
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.False(t, report.TotalsConsistent)
	assert.Empty(t, report.Discrepancies)
}

func TestWalletService_Statistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.store.staff[8] = models.Staff{ID: 8, FullName: "Second", IsActive: true}
	fundWallet(t, f, "100")
	_, err := f.wallets.PostCollection(ctx, 8, dec("40"), f.store.nextID(), "seed")
	require.NoError(t, err)
	_, err = f.wallets.Withdraw(ctx, 8, dec("40"), testAdminID, "")
	require.NoError(t, err)

	stats, err := f.wallets.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.WalletCount)
	assert.Equal(t, int64(1), stats.WalletsWithBalance)
	assert.True(t, stats.TotalBalance.Equal(dec("100")))
	assert.True(t, stats.TotalCollected.Equal(dec("140")))
	assert.True(t, stats.TotalWithdrawn.Equal(dec("40")))
}
