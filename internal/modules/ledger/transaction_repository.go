package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/apperr"
)

// transactionsColumns is the list of columns for the transactions table.
// Column order must match the scan functions below.
const transactionsColumns = `id, occurred_at, kind, from_account_id, to_account_id, amount, description, reference_type, reference_id, status, created_by, created_at, updated_at`

// TransactionRepository handles transaction and reversal-link persistence in
// ledger.db. All mutating methods take an open *sql.Tx: the service layer
// owns atomicity, the repository owns SQL.
type TransactionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "transactions").Logger(),
	}
}

// InsertTx inserts a transaction row inside an open ledger transaction and
// returns its id.
func (r *TransactionRepository) InsertTx(tx *sql.Tx, t Transaction) (int64, error) {
	now := time.Now().Unix()

	result, err := tx.Exec(`
		INSERT INTO transactions
		(occurred_at, kind, from_account_id, to_account_id, amount, description,
		 reference_type, reference_id, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.OccurredAt.Unix(),
		string(t.Kind),
		nullInt64Ptr(t.FromAccountID),
		nullInt64Ptr(t.ToAccountID),
		t.Amount,
		t.Description,
		t.Reference.Type,
		t.Reference.ID,
		string(t.Status),
		t.CreatedBy,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted transaction id: %w", err)
	}

	return id, nil
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(id int64) (*Transaction, error) {
	query := "SELECT " + transactionsColumns + " FROM transactions WHERE id = ?"

	t, err := scanTransaction(r.ledgerDB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrNotFound, "transaction %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}

	return t, nil
}

// GetByIDTx retrieves a transaction inside an open ledger transaction
func (r *TransactionRepository) GetByIDTx(tx *sql.Tx, id int64) (*Transaction, error) {
	query := "SELECT " + transactionsColumns + " FROM transactions WHERE id = ?"

	t, err := scanTransaction(tx.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrNotFound, "transaction %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}

	return t, nil
}

// UpdateFieldsTx rewrites the mutable fields of a still-completed
// transaction inside an open ledger transaction.
func (r *TransactionRepository) UpdateFieldsTx(tx *sql.Tx, t Transaction) error {
	_, err := tx.Exec(`
		UPDATE transactions
		SET occurred_at = ?, from_account_id = ?, to_account_id = ?, amount = ?,
		    description = ?, reference_type = ?, reference_id = ?, updated_at = ?
		WHERE id = ?
	`,
		t.OccurredAt.Unix(),
		nullInt64Ptr(t.FromAccountID),
		nullInt64Ptr(t.ToAccountID),
		t.Amount,
		t.Description,
		t.Reference.Type,
		t.Reference.ID,
		time.Now().Unix(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", t.ID, err)
	}

	return nil
}

// MarkReversedTx flips a transaction to reversed inside an open ledger
// transaction. The row itself stays; reversal never deletes history.
func (r *TransactionRepository) MarkReversedTx(tx *sql.Tx, id int64) error {
	_, err := tx.Exec(
		"UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?",
		string(StatusReversed), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %d reversed: %w", id, err)
	}

	return nil
}

// InsertReversalLinkTx records the original/reversal pairing inside an open
// ledger transaction.
func (r *TransactionRepository) InsertReversalLinkTx(tx *sql.Tx, link ReversalLink) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO reversal_links (original_id, reversal_id, reason, created_at)
		VALUES (?, ?, ?, ?)
	`, link.OriginalID, link.ReversalID, link.Reason, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert reversal link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted reversal link id: %w", err)
	}

	return id, nil
}

// GetReversalLink retrieves the reversal link for an original transaction,
// or nil when the transaction has not been reversed.
func (r *TransactionRepository) GetReversalLink(originalID int64) (*ReversalLink, error) {
	var link ReversalLink
	var createdAt int64

	err := r.ledgerDB.QueryRow(`
		SELECT id, original_id, reversal_id, reason, created_at
		FROM reversal_links WHERE original_id = ?
	`, originalID).Scan(&link.ID, &link.OriginalID, &link.ReversalID, &link.Reason, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reversal link for %d: %w", originalID, err)
	}

	link.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &link, nil
}

// List retrieves transactions matching the filters, ordered by date
// descending with ties broken by id descending, so the ordering is stable
// and deterministic.
func (r *TransactionRepository) List(filters ListFilters) ([]Transaction, error) {
	var conditions []string
	var args []interface{}

	if filters.From != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filters.From.Unix())
	}
	if filters.To != nil {
		conditions = append(conditions, "occurred_at < ?")
		args = append(args, filters.To.Unix())
	}
	if filters.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(*filters.Kind))
	}
	if filters.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filters.Status))
	}
	if filters.AccountID != nil {
		conditions = append(conditions, "(from_account_id = ? OR to_account_id = ?)")
		args = append(args, *filters.AccountID, *filters.AccountID)
	}
	if filters.MinAmount != nil {
		conditions = append(conditions, "amount >= ?")
		args = append(args, *filters.MinAmount)
	}
	if filters.MaxAmount != nil {
		conditions = append(conditions, "amount <= ?")
		args = append(args, *filters.MaxAmount)
	}

	query := "SELECT " + transactionsColumns + " FROM transactions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		t, err := scanTransactionFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return result, nil
}

// SumSignedByAccount recomputes the signed sum of all transactions touching
// an account: credits where it is the to-account, debits where it is the
// from-account. Every stored row had its delta applied when it was created,
// a reversed original included; its mirror carries the cancelling delta.
// Used by the balance reconciliation check.
func (r *TransactionRepository) SumSignedByAccount(accountID int64) (int64, error) {
	var sum int64
	err := r.ledgerDB.QueryRow(`
		SELECT COALESCE(SUM(
			CASE WHEN to_account_id = ? THEN amount ELSE 0 END -
			CASE WHEN from_account_id = ? THEN amount ELSE 0 END
		), 0)
		FROM transactions
		WHERE to_account_id = ? OR from_account_id = ?
	`, accountID, accountID, accountID, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions for account %d: %w", accountID, err)
	}

	return sum, nil
}

func nullInt64Ptr(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func scanTransaction(row *sql.Row) (*Transaction, error) {
	var t Transaction
	var occurredAt, createdAt, updatedAt int64
	var kind, status string
	var fromID, toID sql.NullInt64

	err := row.Scan(&t.ID, &occurredAt, &kind, &fromID, &toID, &t.Amount,
		&t.Description, &t.Reference.Type, &t.Reference.ID, &status,
		&t.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	applyScanned(&t, occurredAt, kind, status, fromID, toID, createdAt, updatedAt)
	return &t, nil
}

func scanTransactionFromRows(rows *sql.Rows) (*Transaction, error) {
	var t Transaction
	var occurredAt, createdAt, updatedAt int64
	var kind, status string
	var fromID, toID sql.NullInt64

	err := rows.Scan(&t.ID, &occurredAt, &kind, &fromID, &toID, &t.Amount,
		&t.Description, &t.Reference.Type, &t.Reference.ID, &status,
		&t.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	applyScanned(&t, occurredAt, kind, status, fromID, toID, createdAt, updatedAt)
	return &t, nil
}

func applyScanned(t *Transaction, occurredAt int64, kind, status string, fromID, toID sql.NullInt64, createdAt, updatedAt int64) {
	t.OccurredAt = time.Unix(occurredAt, 0).UTC()
	t.Kind = Kind(kind)
	t.Status = Status(status)
	if fromID.Valid {
		v := fromID.Int64
		t.FromAccountID = &v
	}
	if toID.Valid {
		v := toID.Int64
		t.ToAccountID = &v
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
}
