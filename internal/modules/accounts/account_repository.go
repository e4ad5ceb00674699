package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/apperr"
)

// accountsColumns is the list of columns for the accounts table.
// Used to avoid SELECT * which can break when the schema changes; column
// order must match the scan functions below.
const accountsColumns = `id, name, type, bank, opening_balance, current_balance, active, description, created_at, updated_at`

// Repository handles account persistence in ledger.db
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "accounts").Logger(),
	}
}

// Create inserts a new account. The current balance starts at the opening
// balance; every later change flows through the ledger.
func (r *Repository) Create(account Account) (*Account, error) {
	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	now := time.Now().Unix()

	result, err := r.ledgerDB.Exec(`
		INSERT INTO accounts
		(name, type, bank, opening_balance, current_balance, active, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
	`,
		account.Name,
		string(account.Type),
		account.Bank,
		account.OpeningBalance,
		account.OpeningBalance,
		account.Description,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get created account id: %w", err)
	}

	r.log.Info().
		Int64("account_id", id).
		Str("name", account.Name).
		Str("type", string(account.Type)).
		Msg("Account created")

	return r.Get(id, true)
}

// Get retrieves an account by id. Inactive accounts are only returned when
// includeInactive is set.
func (r *Repository) Get(id int64, includeInactive bool) (*Account, error) {
	query := "SELECT " + accountsColumns + " FROM accounts WHERE id = ?"
	if !includeInactive {
		query += " AND active = 1"
	}

	account, err := scanAccount(r.ledgerDB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrNotFound, "account %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}

	return account, nil
}

// GetTx retrieves an account inside an open ledger transaction, so the
// balance read is consistent with the mutation about to happen.
func (r *Repository) GetTx(tx *sql.Tx, id int64) (*Account, error) {
	query := "SELECT " + accountsColumns + " FROM accounts WHERE id = ?"

	account, err := scanAccount(tx.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrNotFound, "account %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}

	return account, nil
}

// List returns accounts ordered by name. With activeOnly set, deactivated
// accounts are filtered out.
func (r *Repository) List(activeOnly bool) ([]Account, error) {
	query := "SELECT " + accountsColumns + " FROM accounts"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name"

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var result []Account
	for rows.Next() {
		account, err := scanAccountFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		result = append(result, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return result, nil
}

// Update changes the descriptive fields of an account. Balances are not
// touched here; that is the ledger's job.
func (r *Repository) Update(id int64, name, bank, description string) (*Account, error) {
	if _, err := r.Get(id, true); err != nil {
		return nil, err
	}

	_, err := r.ledgerDB.Exec(`
		UPDATE accounts SET name = ?, bank = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, name, bank, description, time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update account %d: %w", id, err)
	}

	return r.Get(id, true)
}

// Deactivate soft-deletes an account via the active flag. Account rows are
// never physically deleted; history keeps referring to them.
func (r *Repository) Deactivate(id int64) error {
	if _, err := r.Get(id, true); err != nil {
		return err
	}

	_, err := r.ledgerDB.Exec(
		"UPDATE accounts SET active = 0, updated_at = ? WHERE id = ?",
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate account %d: %w", id, err)
	}

	r.log.Info().Int64("account_id", id).Msg("Account deactivated")
	return nil
}

// AdjustBalanceTx applies a signed delta to the account balance inside an
// open ledger transaction and returns the new balance. This is the only
// balance mutation path; it must never be reachable from the HTTP surface
// outside a ledger operation.
func (r *Repository) AdjustBalanceTx(tx *sql.Tx, id int64, delta int64) (int64, error) {
	result, err := tx.Exec(`
		UPDATE accounts SET current_balance = current_balance + ?, updated_at = ?
		WHERE id = ?
	`, delta, time.Now().Unix(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust balance of account %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return 0, apperr.Newf(apperr.ErrNotFound, "account %d not found", id)
	}

	var newBalance int64
	if err := tx.QueryRow("SELECT current_balance FROM accounts WHERE id = ?", id).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("failed to read balance of account %d: %w", id, err)
	}

	return newBalance, nil
}

// scanAccount scans an account from a single row query
func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var accType string
	var active int
	var createdAt, updatedAt int64

	err := row.Scan(&a.ID, &a.Name, &accType, &a.Bank, &a.OpeningBalance,
		&a.CurrentBalance, &active, &a.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = AccountType(accType)
	a.Active = active != 0
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}

// scanAccountFromRows scans an account from a multi-row result set
func scanAccountFromRows(rows *sql.Rows) (*Account, error) {
	var a Account
	var accType string
	var active int
	var createdAt, updatedAt int64

	err := rows.Scan(&a.ID, &a.Name, &accType, &a.Bank, &a.OpeningBalance,
		&a.CurrentBalance, &active, &a.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = AccountType(accType)
	a.Active = active != 0
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}
