package accounts

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandoghapp/sandogh/internal/apperr"
)

// setupTestDB creates an in-memory SQLite database with the accounts table
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			bank TEXT NOT NULL DEFAULT '',
			opening_balance INTEGER NOT NULL DEFAULT 0,
			current_balance INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	return db
}

func TestCreateAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	created, err := repo.Create(Account{
		Name:           "Melli checking",
		Type:           TypeChecking,
		Bank:           "Bank Melli",
		OpeningBalance: 2500000,
	})
	require.NoError(t, err)

	assert.Equal(t, "Melli checking", created.Name)
	assert.Equal(t, TypeChecking, created.Type)
	assert.Equal(t, int64(2500000), created.OpeningBalance)
	assert.Equal(t, int64(2500000), created.CurrentBalance)
	assert.True(t, created.Active)

	got, err := repo.Get(created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateValidation(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Create(Account{Name: "  ", Type: TypeCash})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrValidation, apperr.CodeOf(err))

	_, err = repo.Create(Account{Name: "Till", Type: "bitcoin"})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrValidation, apperr.CodeOf(err))
}

func TestGetNotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Get(42, true)
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotFound, apperr.CodeOf(err))
}

func TestListOrdering(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for _, name := range []string{"Till", "Credit line", "Melli checking"} {
		accType := TypeCash
		if name == "Credit line" {
			accType = TypeCredit
		}
		_, err := repo.Create(Account{Name: name, Type: accType})
		require.NoError(t, err)
	}

	list, err := repo.List(false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Credit line", list[0].Name)
	assert.Equal(t, "Melli checking", list[1].Name)
	assert.Equal(t, "Till", list[2].Name)
}

func TestDeactivateHidesFromActiveList(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	account, err := repo.Create(Account{Name: "Old till", Type: TypeCash})
	require.NoError(t, err)

	require.NoError(t, repo.Deactivate(account.ID))

	list, err := repo.List(true)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Still reachable with includeInactive for history views
	got, err := repo.Get(account.ID, true)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = repo.Get(account.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotFound, apperr.CodeOf(err))
}

func TestUpdateDescriptiveFields(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	account, err := repo.Create(Account{Name: "Till", Type: TypeCash, OpeningBalance: 5000})
	require.NoError(t, err)

	updated, err := repo.Update(account.ID, "Front till", "", "the one by the door")
	require.NoError(t, err)

	assert.Equal(t, "Front till", updated.Name)
	assert.Equal(t, "the one by the door", updated.Description)
	// Balances are untouched by the admin flow
	assert.Equal(t, int64(5000), updated.CurrentBalance)
}

func TestAdjustBalanceTx(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	account, err := repo.Create(Account{Name: "Till", Type: TypeCash, OpeningBalance: 1000})
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)

	balance, err := repo.AdjustBalanceTx(tx, account.ID, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), balance)

	balance, err = repo.AdjustBalanceTx(tx, account.ID, -2000)
	require.NoError(t, err)
	assert.Equal(t, int64(-750), balance)

	_, err = repo.AdjustBalanceTx(tx, 999, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.ErrNotFound, apperr.CodeOf(err))

	require.NoError(t, tx.Rollback())

	// Rolled back, the stored balance is untouched
	got, err := repo.Get(account.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.CurrentBalance)
}
