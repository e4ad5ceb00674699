package reports

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
	"github.com/sandoghapp/sandogh/internal/modules/ledger"
	"github.com/sandoghapp/sandogh/pkg/jalali"
)

type fixture struct {
	reports  *Service
	ledger   *ledger.Service
	accounts *accounts.Repository
	cache    *SnapshotCache
	account  *accounts.Account
}

func setupFixture(t *testing.T, withCache bool) *fixture {
	dir := t.TempDir()
	log := zerolog.Nop()

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, ledgerDB.Migrate())
	t.Cleanup(func() { ledgerDB.Close() })

	accountsRepo := accounts.NewRepository(ledgerDB.Conn(), log)
	ledgerService := ledger.NewService(ledgerDB, ledger.NewTransactionRepository(ledgerDB.Conn(), log), accountsRepo, nil, log)

	var cache *SnapshotCache
	if withCache {
		cacheDB, err := database.New(database.Config{
			Path:    filepath.Join(dir, "cache.db"),
			Profile: database.ProfileCache,
			Name:    "cache",
		})
		require.NoError(t, err)
		require.NoError(t, cacheDB.Migrate())
		t.Cleanup(func() { cacheDB.Close() })

		cache = NewSnapshotCache(cacheDB, nil, log)
	}

	account, err := accountsRepo.Create(accounts.Account{
		Name:           "Till",
		Type:           accounts.TypeCash,
		OpeningBalance: 1000000,
	})
	require.NoError(t, err)

	return &fixture{
		reports:  NewService(ledgerService, cache, log),
		ledger:   ledgerService,
		accounts: accountsRepo,
		cache:    cache,
		account:  account,
	}
}

func (f *fixture) record(t *testing.T, kind ledger.Kind, year, month, day int, amount int64) *ledger.Transaction {
	occurredAt, err := jalali.Date{Year: year, Month: month, Day: day}.ToGregorian()
	require.NoError(t, err)

	tx := ledger.Transaction{OccurredAt: occurredAt, Kind: kind, Amount: amount}
	switch kind {
	case ledger.KindReceipt:
		tx.ToAccountID = &f.account.ID
	case ledger.KindPayment:
		tx.FromAccountID = &f.account.ID
	}

	created, err := f.ledger.Create(tx)
	require.NoError(t, err)
	return created
}

func TestMonthlySummaryFarvardin(t *testing.T) {
	f := setupFixture(t, false)
	f.record(t, ledger.KindReceipt, 1403, 1, 10, 500000)

	summary, err := f.reports.MonthlySummary(1403, 1)
	require.NoError(t, err)

	assert.Equal(t, "1403/01", summary.Period)
	assert.Equal(t, int64(500000), summary.TotalIncome)
	assert.Equal(t, int64(0), summary.TotalExpense)
	assert.Equal(t, int64(500000), summary.Net)

	receipt := summary.ByKind["receipt"]
	assert.Equal(t, 1, receipt.Count)
	assert.Equal(t, int64(500000), receipt.TotalAmount)
}

func TestMonthlySummaryExcludesNeighbors(t *testing.T) {
	f := setupFixture(t, false)
	f.record(t, ledger.KindReceipt, 1402, 12, 29, 111)  // Last day of the prior year
	f.record(t, ledger.KindReceipt, 1403, 1, 1, 500000) // First day of Farvardin
	f.record(t, ledger.KindReceipt, 1403, 1, 31, 70000) // Last day of Farvardin
	f.record(t, ledger.KindReceipt, 1403, 2, 1, 222)    // First day of Ordibehesht

	summary, err := f.reports.MonthlySummary(1403, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(570000), summary.TotalIncome)
	assert.Equal(t, 2, summary.ByKind["receipt"].Count)
}

func TestDailySummary(t *testing.T) {
	f := setupFixture(t, false)
	f.record(t, ledger.KindReceipt, 1403, 1, 10, 500000)
	f.record(t, ledger.KindPayment, 1403, 1, 10, 120000)
	f.record(t, ledger.KindReceipt, 1403, 1, 11, 999)

	summary, err := f.reports.DailySummary(jalali.Date{Year: 1403, Month: 1, Day: 10})
	require.NoError(t, err)

	assert.Equal(t, "1403/01/10", summary.Period)
	assert.Equal(t, int64(500000), summary.TotalIncome)
	assert.Equal(t, int64(120000), summary.TotalExpense)
	assert.Equal(t, int64(380000), summary.Net)
}

func TestSummaryIgnoresTransfers(t *testing.T) {
	f := setupFixture(t, false)
	bank, err := f.accounts.Create(accounts.Account{Name: "Bank", Type: accounts.TypeChecking})
	require.NoError(t, err)

	occurredAt, err := jalali.Date{Year: 1403, Month: 1, Day: 10}.ToGregorian()
	require.NoError(t, err)
	_, err = f.ledger.Create(ledger.Transaction{
		OccurredAt:    occurredAt,
		Kind:          ledger.KindTransfer,
		FromAccountID: &f.account.ID,
		ToAccountID:   &bank.ID,
		Amount:        300000,
	})
	require.NoError(t, err)

	summary, err := f.reports.DailySummary(jalali.Date{Year: 1403, Month: 1, Day: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.TotalIncome)
	assert.Equal(t, int64(0), summary.TotalExpense)
	assert.Equal(t, 1, summary.ByKind["transfer"].Count)
	assert.Equal(t, int64(300000), summary.ByKind["transfer"].TotalAmount)
}

func TestCashFlowRunningBalance(t *testing.T) {
	f := setupFixture(t, false)
	f.record(t, ledger.KindReceipt, 1403, 1, 1, 1000)
	f.record(t, ledger.KindPayment, 1403, 1, 2, 400)
	f.record(t, ledger.KindReceipt, 1403, 1, 4, 250)

	start := time.Date(2024, time.March, 21, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)

	report, err := f.reports.CashFlow(start, end)
	require.NoError(t, err)
	require.Len(t, report.Days, 4)

	assert.Equal(t, int64(1000), report.Days[0].NetFlow)
	assert.Equal(t, int64(1000), report.Days[0].RunningBalance)
	assert.Equal(t, "1403/01/01", report.Days[0].JalaliDate)

	assert.Equal(t, int64(-400), report.Days[1].NetFlow)
	assert.Equal(t, int64(600), report.Days[1].RunningBalance)

	// A quiet day keeps the running balance flat
	assert.Equal(t, int64(0), report.Days[2].NetFlow)
	assert.Equal(t, int64(600), report.Days[2].RunningBalance)

	assert.Equal(t, int64(850), report.Days[3].RunningBalance)
}

func TestCashFlowDeterminism(t *testing.T) {
	f := setupFixture(t, false)
	f.record(t, ledger.KindReceipt, 1403, 1, 1, 1000)
	f.record(t, ledger.KindPayment, 1403, 1, 5, 300)
	f.record(t, ledger.KindReceipt, 1403, 1, 12, 750)

	start := time.Date(2024, time.March, 21, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)

	first, err := f.reports.CashFlow(start, end)
	require.NoError(t, err)
	second, err := f.reports.CashFlow(start, end)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.Trend, len(first.Days))
	assert.Equal(t, trendPeriod, first.Period)
}

func TestCashFlowRejectsEmptyRange(t *testing.T) {
	f := setupFixture(t, false)

	start := time.Date(2024, time.March, 21, 0, 0, 0, 0, time.UTC)
	_, err := f.reports.CashFlow(start, start)
	require.Error(t, err)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	f := setupFixture(t, true)
	f.record(t, ledger.KindReceipt, 1403, 1, 10, 500000)

	first, err := f.reports.MonthlySummary(1403, 1)
	require.NoError(t, err)

	// Served from the snapshot now
	second, err := f.reports.MonthlySummary(1403, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// After invalidation the report reflects new data
	f.record(t, ledger.KindReceipt, 1403, 1, 11, 100)
	require.NoError(t, f.cache.InvalidateAll())

	third, err := f.reports.MonthlySummary(1403, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500100), third.TotalIncome)
}
