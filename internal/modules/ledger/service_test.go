package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandoghapp/sandogh/internal/apperr"
	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
	"github.com/sandoghapp/sandogh/pkg/jalali"
)

// setupService creates a ledger service over a fresh temp-file database with
// the real schema applied
func setupService(t *testing.T) (*Service, *accounts.Repository) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db.Conn(), log)
	transactionsRepo := NewTransactionRepository(db.Conn(), log)
	service := NewService(db, transactionsRepo, accountsRepo, nil, log)

	return service, accountsRepo
}

func createTestAccount(t *testing.T, repo *accounts.Repository, name string, accType accounts.AccountType, opening int64) *accounts.Account {
	account, err := repo.Create(accounts.Account{
		Name:           name,
		Type:           accType,
		OpeningBalance: opening,
	})
	require.NoError(t, err)
	return account
}

func jalaliTime(t *testing.T, year, month, day int) time.Time {
	ts, err := jalali.Date{Year: year, Month: month, Day: day}.ToGregorian()
	require.NoError(t, err)
	return ts
}

func TestCreateReceipt(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 100000)

	created, err := service.Create(Transaction{
		OccurredAt:  jalaliTime(t, 1403, 1, 10),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      500000,
		Description: "Phone screen repair",
		CreatedBy:   "hassan",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, created.Status)
	assert.Equal(t, time.Date(2024, time.March, 30, 0, 0, 0, 0, time.UTC), created.OccurredAt)

	updated, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(600000), updated.CurrentBalance)
}

func TestCreatePayment_InsufficientFunds(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 1000)

	_, err := service.Create(Transaction{
		OccurredAt:    time.Now(),
		Kind:          KindPayment,
		FromAccountID: &cash.ID,
		Amount:        5000,
		Description:   "Parts order",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrValidation, apperr.CodeOf(err))

	// The failed attempt must leave no trace
	after, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), after.CurrentBalance)

	list, err := service.List(ListFilters{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreatePayment_CreditAllowsOverdraft(t *testing.T) {
	service, accountsRepo := setupService(t)
	credit := createTestAccount(t, accountsRepo, "Supplier credit", accounts.TypeCredit, 0)

	_, err := service.Create(Transaction{
		OccurredAt:    time.Now(),
		Kind:          KindPayment,
		FromAccountID: &credit.ID,
		Amount:        250000,
		Description:   "Parts on credit",
	})
	require.NoError(t, err)

	after, err := accountsRepo.Get(credit.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(-250000), after.CurrentBalance)
}

func TestCreateTransfer(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 900000)
	bank := createTestAccount(t, accountsRepo, "Melli checking", accounts.TypeChecking, 100000)

	_, err := service.Create(Transaction{
		OccurredAt:    time.Now(),
		Kind:          KindTransfer,
		FromAccountID: &cash.ID,
		ToAccountID:   &bank.ID,
		Amount:        600000,
		Description:   "Evening deposit",
	})
	require.NoError(t, err)

	cashAfter, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	bankAfter, err := accountsRepo.Get(bank.ID, false)
	require.NoError(t, err)

	assert.Equal(t, int64(300000), cashAfter.CurrentBalance)
	assert.Equal(t, int64(700000), bankAfter.CurrentBalance)
	// A transfer moves money, it never creates or destroys it
	assert.Equal(t, int64(1000000), cashAfter.CurrentBalance+bankAfter.CurrentBalance)
}

func TestCreateValidation(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 100000)

	tests := []struct {
		name string
		tx   Transaction
	}{
		{"zero amount", Transaction{OccurredAt: time.Now(), Kind: KindReceipt, ToAccountID: &cash.ID, Amount: 0}},
		{"negative amount", Transaction{OccurredAt: time.Now(), Kind: KindReceipt, ToAccountID: &cash.ID, Amount: -100}},
		{"missing date", Transaction{Kind: KindReceipt, ToAccountID: &cash.ID, Amount: 100}},
		{"unknown kind", Transaction{OccurredAt: time.Now(), Kind: "loan", ToAccountID: &cash.ID, Amount: 100}},
		{"receipt with from side", Transaction{OccurredAt: time.Now(), Kind: KindReceipt, FromAccountID: &cash.ID, ToAccountID: &cash.ID, Amount: 100}},
		{"payment with to side", Transaction{OccurredAt: time.Now(), Kind: KindPayment, FromAccountID: &cash.ID, ToAccountID: &cash.ID, Amount: 100}},
		{"transfer to itself", Transaction{OccurredAt: time.Now(), Kind: KindTransfer, FromAccountID: &cash.ID, ToAccountID: &cash.ID, Amount: 100}},
		{"transfer missing side", Transaction{OccurredAt: time.Now(), Kind: KindTransfer, FromAccountID: &cash.ID, Amount: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(tt.tx)
			require.Error(t, err)
			assert.Equal(t, apperr.ErrValidation, apperr.CodeOf(err))
		})
	}
}

func TestCreateRejectsInactiveAccount(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Old till", accounts.TypeCash, 0)
	require.NoError(t, accountsRepo.Deactivate(cash.ID))

	_, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      1000,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrValidation, apperr.CodeOf(err))
}

func TestCreateRejectsUnknownAccount(t *testing.T) {
	service, _ := setupService(t)
	missing := int64(999)

	_, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &missing,
		Amount:      1000,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotFound, apperr.CodeOf(err))
}

func TestUpdateAmount(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 0)

	created, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      500000,
	})
	require.NoError(t, err)

	newAmount := int64(450000)
	updated, err := service.Update(created.ID, UpdateParams{Amount: &newAmount})
	require.NoError(t, err)
	assert.Equal(t, int64(450000), updated.Amount)

	after, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(450000), after.CurrentBalance)
}

func TestUpdateMovesAccountSide(t *testing.T) {
	service, accountsRepo := setupService(t)
	till := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 0)
	bank := createTestAccount(t, accountsRepo, "Bank", accounts.TypeChecking, 0)

	created, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &till.ID,
		Amount:      200000,
	})
	require.NoError(t, err)

	// The receipt actually went into the bank account
	_, err = service.Update(created.ID, UpdateParams{ToAccountID: &bank.ID})
	require.NoError(t, err)

	tillAfter, err := accountsRepo.Get(till.ID, false)
	require.NoError(t, err)
	bankAfter, err := accountsRepo.Get(bank.ID, false)
	require.NoError(t, err)

	assert.Equal(t, int64(0), tillAfter.CurrentBalance)
	assert.Equal(t, int64(200000), bankAfter.CurrentBalance)
}

func TestUpdateRejectsOverdraft(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 10000)

	created, err := service.Create(Transaction{
		OccurredAt:    time.Now(),
		Kind:          KindPayment,
		FromAccountID: &cash.ID,
		Amount:        5000,
	})
	require.NoError(t, err)

	tooMuch := int64(50000)
	_, err = service.Update(created.ID, UpdateParams{Amount: &tooMuch})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrValidation, apperr.CodeOf(err))

	// Rolled back, the original payment still stands
	after, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), after.CurrentBalance)
}

func TestUpdateReversedTransaction(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 0)

	created, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      1000,
	})
	require.NoError(t, err)

	_, err = service.Reverse(created.ID, "wrong customer", "hassan")
	require.NoError(t, err)

	newAmount := int64(2000)
	_, err = service.Update(created.ID, UpdateParams{Amount: &newAmount})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrAlreadyReversed, apperr.CodeOf(err))
}

func TestReverseReceipt(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 100000)

	created, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      500000,
		Description: "Phone screen repair",
	})
	require.NoError(t, err)

	reversal, err := service.Reverse(created.ID, "customer refund", "hassan")
	require.NoError(t, err)

	// The compensating entry is a payment from the same account
	assert.Equal(t, KindPayment, reversal.Kind)
	require.NotNil(t, reversal.FromAccountID)
	assert.Equal(t, cash.ID, *reversal.FromAccountID)
	assert.Nil(t, reversal.ToAccountID)
	assert.Equal(t, created.Amount, reversal.Amount)
	assert.Equal(t, Reference{Type: "transaction", ID: created.ID}, reversal.Reference)

	// Balance is back where it started, with both rows still on record
	after, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), after.CurrentBalance)

	original, err := service.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, original.Status)

	link, err := service.GetReversalLink(created.ID)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, created.ID, link.OriginalID)
	assert.Equal(t, reversal.ID, link.ReversalID)
	assert.Equal(t, "customer refund", link.Reason)

	list, err := service.List(ListFilters{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReverseTransfer(t *testing.T) {
	service, accountsRepo := setupService(t)
	till := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 500000)
	bank := createTestAccount(t, accountsRepo, "Bank", accounts.TypeChecking, 0)

	created, err := service.Create(Transaction{
		OccurredAt:    time.Now(),
		Kind:          KindTransfer,
		FromAccountID: &till.ID,
		ToAccountID:   &bank.ID,
		Amount:        300000,
	})
	require.NoError(t, err)

	reversal, err := service.Reverse(created.ID, "fat fingered", "hassan")
	require.NoError(t, err)

	assert.Equal(t, KindTransfer, reversal.Kind)
	assert.Equal(t, bank.ID, *reversal.FromAccountID)
	assert.Equal(t, till.ID, *reversal.ToAccountID)

	tillAfter, err := accountsRepo.Get(till.ID, false)
	require.NoError(t, err)
	bankAfter, err := accountsRepo.Get(bank.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), tillAfter.CurrentBalance)
	assert.Equal(t, int64(0), bankAfter.CurrentBalance)
}

func TestReverseTwice(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 0)

	created, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      1000,
	})
	require.NoError(t, err)

	_, err = service.Reverse(created.ID, "first", "hassan")
	require.NoError(t, err)

	_, err = service.Reverse(created.ID, "second", "hassan")
	require.Error(t, err)
	assert.Equal(t, apperr.ErrAlreadyReversed, apperr.CodeOf(err))

	// The double attempt must not touch the balance again
	after, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.CurrentBalance)
}

func TestReverseIgnoresOverdraftPolicy(t *testing.T) {
	service, accountsRepo := setupService(t)
	cash := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 0)

	receipt, err := service.Create(Transaction{
		OccurredAt:  time.Now(),
		Kind:        KindReceipt,
		ToAccountID: &cash.ID,
		Amount:      100,
	})
	require.NoError(t, err)

	_, err = service.Create(Transaction{
		OccurredAt:    time.Now(),
		Kind:          KindPayment,
		FromAccountID: &cash.ID,
		Amount:        50,
	})
	require.NoError(t, err)

	// Undoing the receipt leaves the till at -50. Reversals always succeed.
	_, err = service.Reverse(receipt.ID, "bounced", "hassan")
	require.NoError(t, err)

	after, err := accountsRepo.Get(cash.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(-50), after.CurrentBalance)
}

func TestReverseUnknownTransaction(t *testing.T) {
	service, _ := setupService(t)

	_, err := service.Reverse(12345, "nothing there", "hassan")
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotFound, apperr.CodeOf(err))
}

func TestListFilters(t *testing.T) {
	service, accountsRepo := setupService(t)
	till := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 1000000)
	bank := createTestAccount(t, accountsRepo, "Bank", accounts.TypeChecking, 0)

	mustCreate := func(tx Transaction) *Transaction {
		created, err := service.Create(tx)
		require.NoError(t, err)
		return created
	}

	mustCreate(Transaction{OccurredAt: jalaliTime(t, 1403, 1, 5), Kind: KindReceipt, ToAccountID: &till.ID, Amount: 100})
	mustCreate(Transaction{OccurredAt: jalaliTime(t, 1403, 1, 20), Kind: KindPayment, FromAccountID: &till.ID, Amount: 200})
	mustCreate(Transaction{OccurredAt: jalaliTime(t, 1403, 2, 3), Kind: KindTransfer, FromAccountID: &till.ID, ToAccountID: &bank.ID, Amount: 300})

	t.Run("by month", func(t *testing.T) {
		start, end, err := jalali.MonthRange(1403, 1)
		require.NoError(t, err)
		list, err := service.List(ListFilters{From: &start, To: &end})
		require.NoError(t, err)
		require.Len(t, list, 2)
		// Newest first
		assert.Equal(t, KindPayment, list[0].Kind)
		assert.Equal(t, KindReceipt, list[1].Kind)
	})

	t.Run("by account either side", func(t *testing.T) {
		list, err := service.List(ListFilters{AccountID: &bank.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, KindTransfer, list[0].Kind)
	})

	t.Run("by kind", func(t *testing.T) {
		kind := KindPayment
		list, err := service.List(ListFilters{Kind: &kind})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(200), list[0].Amount)
	})

	t.Run("by amount range", func(t *testing.T) {
		min, max := int64(150), int64(250)
		list, err := service.List(ListFilters{MinAmount: &min, MaxAmount: &max})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(200), list[0].Amount)
	})

	t.Run("limit and offset", func(t *testing.T) {
		list, err := service.List(ListFilters{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, KindPayment, list[0].Kind)
	})
}

func TestRecomputeBalance(t *testing.T) {
	service, accountsRepo := setupService(t)
	till := createTestAccount(t, accountsRepo, "Till", accounts.TypeCash, 100000)
	bank := createTestAccount(t, accountsRepo, "Bank", accounts.TypeChecking, 0)

	receipt, err := service.Create(Transaction{OccurredAt: time.Now(), Kind: KindReceipt, ToAccountID: &till.ID, Amount: 500000})
	require.NoError(t, err)
	_, err = service.Create(Transaction{OccurredAt: time.Now(), Kind: KindPayment, FromAccountID: &till.ID, Amount: 120000})
	require.NoError(t, err)
	_, err = service.Create(Transaction{OccurredAt: time.Now(), Kind: KindTransfer, FromAccountID: &till.ID, ToAccountID: &bank.ID, Amount: 200000})
	require.NoError(t, err)
	_, err = service.Reverse(receipt.ID, "refund", "hassan")
	require.NoError(t, err)

	for _, account := range []*accounts.Account{till, bank} {
		computed, err := service.RecomputeBalance(account.ID)
		require.NoError(t, err)

		stored, err := accountsRepo.Get(account.ID, false)
		require.NoError(t, err)
		assert.Equal(t, stored.CurrentBalance, computed, "account %s", account.Name)
	}
}
