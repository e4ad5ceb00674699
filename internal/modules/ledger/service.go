package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/apperr"
	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/events"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
)

// Service is the transaction engine. Every mutation runs inside one SQLite
// transaction on ledger.db, guarded by a process-wide mutex so the row write
// and the balance adjustments commit or roll back together.
type Service struct {
	db           *database.DB
	transactions *TransactionRepository
	accounts     *accounts.Repository
	eventManager *events.Manager
	log          zerolog.Logger

	// mu serializes ledger mutations. A single writer keeps the
	// check-then-adjust overdraft logic free of races without row locks.
	mu sync.Mutex
}

// UpdateParams carries the mutable fields of a correction. Nil pointers mean
// "leave unchanged". The kind of a transaction can never change; record a
// reversal and a new transaction instead.
type UpdateParams struct {
	OccurredAt    *time.Time
	Amount        *int64
	Description   *string
	Reference     *Reference
	FromAccountID *int64
	ToAccountID   *int64
}

// NewService creates a new ledger service
func NewService(db *database.DB, transactions *TransactionRepository, accountsRepo *accounts.Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		db:           db,
		transactions: transactions,
		accounts:     accountsRepo,
		eventManager: eventManager,
		log:          log.With().Str("service", "ledger").Logger(),
	}
}

// Create validates and records a transaction, adjusting the affected account
// balances atomically. Validation failures leave no trace in the database.
func (s *Service) Create(t Transaction) (*Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Status = StatusCompleted

	s.mu.Lock()
	defer s.mu.Unlock()

	var created *Transaction
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if err := s.checkAccounts(tx, &t, false); err != nil {
			return err
		}

		id, err := s.transactions.InsertTx(tx, t)
		if err != nil {
			return err
		}

		if err := s.applyDeltas(tx, t.BalanceDeltas(), false); err != nil {
			return err
		}

		created, err = s.transactions.GetByIDTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("id", created.ID).
		Str("kind", string(created.Kind)).
		Int64("amount", created.Amount).
		Msg("Transaction recorded")

	s.emitTransaction(events.TransactionCreated, created)
	return created, nil
}

// Update corrects a still-completed transaction in place. Balances are
// adjusted by the net difference between the old and new balance effects, so
// an unchanged side of the transaction is untouched. Reversed transactions
// cannot be edited.
func (s *Service) Update(id int64, params UpdateParams) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Transaction
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		original, err := s.transactions.GetByIDTx(tx, id)
		if err != nil {
			return err
		}
		if original.Status == StatusReversed {
			return apperr.Newf(apperr.ErrAlreadyReversed, "transaction %d is reversed and cannot be edited", id)
		}

		modified := *original
		if params.OccurredAt != nil {
			modified.OccurredAt = *params.OccurredAt
		}
		if params.Amount != nil {
			modified.Amount = *params.Amount
		}
		if params.Description != nil {
			modified.Description = *params.Description
		}
		if params.Reference != nil {
			modified.Reference = *params.Reference
		}
		if params.FromAccountID != nil {
			modified.FromAccountID = params.FromAccountID
		}
		if params.ToAccountID != nil {
			modified.ToAccountID = params.ToAccountID
		}

		if err := modified.Validate(); err != nil {
			return err
		}
		if err := s.checkAccounts(tx, &modified, false); err != nil {
			return err
		}

		if err := s.transactions.UpdateFieldsTx(tx, modified); err != nil {
			return err
		}

		deltas := diffDeltas(original.BalanceDeltas(), modified.BalanceDeltas())
		if err := s.applyDeltas(tx, deltas, false); err != nil {
			return err
		}

		updated, err = s.transactions.GetByIDTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("id", id).Msg("Transaction corrected")
	s.emitTransaction(events.TransactionUpdated, updated)
	return updated, nil
}

// Reverse compensates a transaction without deleting it: a mirrored
// transaction is recorded, a reversal link ties the pair together, and the
// original is marked reversed. A transaction can be reversed at most once.
// The mirrored entry is exempt from the overdraft check.
func (s *Service) Reverse(id int64, reason, createdBy string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reversal *Transaction
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		original, err := s.transactions.GetByIDTx(tx, id)
		if err != nil {
			return err
		}
		if original.Status == StatusReversed {
			return apperr.Newf(apperr.ErrAlreadyReversed, "transaction %d is already reversed", id)
		}

		mirror := original.Mirror()
		mirror.OccurredAt = time.Now().UTC()
		mirror.Description = fmt.Sprintf("Reversal of transaction %d: %s", id, original.Description)
		mirror.Reference = Reference{Type: "transaction", ID: id}
		mirror.CreatedBy = createdBy

		reversalID, err := s.transactions.InsertTx(tx, mirror)
		if err != nil {
			return err
		}

		if err := s.applyDeltas(tx, mirror.BalanceDeltas(), true); err != nil {
			return err
		}

		if _, err := s.transactions.InsertReversalLinkTx(tx, ReversalLink{
			OriginalID: id,
			ReversalID: reversalID,
			Reason:     reason,
		}); err != nil {
			return err
		}

		if err := s.transactions.MarkReversedTx(tx, id); err != nil {
			return err
		}

		reversal, err = s.transactions.GetByIDTx(tx, reversalID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("original_id", id).
		Int64("reversal_id", reversal.ID).
		Str("reason", reason).
		Msg("Transaction reversed")

	s.emitTransaction(events.TransactionReversed, reversal)
	return reversal, nil
}

// GetByID retrieves a transaction by id
func (s *Service) GetByID(id int64) (*Transaction, error) {
	return s.transactions.GetByID(id)
}

// GetReversalLink retrieves the reversal link for an original transaction,
// or nil when none exists.
func (s *Service) GetReversalLink(originalID int64) (*ReversalLink, error) {
	return s.transactions.GetReversalLink(originalID)
}

// List retrieves transactions matching the filters, newest first
func (s *Service) List(filters ListFilters) ([]Transaction, error) {
	return s.transactions.List(filters)
}

// RecomputeBalance derives an account balance from first principles: opening
// balance plus the signed sum over the full transaction history. Reversed
// originals stay in the sum; their mirrors cancel them. The reconciliation
// job compares this against the stored balance.
func (s *Service) RecomputeBalance(accountID int64) (int64, error) {
	account, err := s.accounts.Get(accountID, true)
	if err != nil {
		return 0, err
	}

	sum, err := s.transactions.SumSignedByAccount(accountID)
	if err != nil {
		return 0, err
	}

	return account.OpeningBalance + sum, nil
}

// checkAccounts verifies that every referenced account exists and accepts
// new transactions. Inactive accounts reject writes but keep their history.
func (s *Service) checkAccounts(tx *sql.Tx, t *Transaction, allowInactive bool) error {
	for _, id := range []*int64{t.FromAccountID, t.ToAccountID} {
		if id == nil {
			continue
		}
		account, err := s.accounts.GetTx(tx, *id)
		if err != nil {
			return err
		}
		if !account.Active && !allowInactive {
			return apperr.Newf(apperr.ErrValidation, "account %q is inactive", account.Name)
		}
	}
	return nil
}

// applyDeltas adjusts the stored balances and enforces the overdraft policy:
// an account whose type does not allow overdraft must not end up negative.
// skipOverdraftCheck exempts reversals.
func (s *Service) applyDeltas(tx *sql.Tx, deltas map[int64]int64, skipOverdraftCheck bool) error {
	for accountID, delta := range deltas {
		if delta == 0 {
			continue
		}

		account, err := s.accounts.GetTx(tx, accountID)
		if err != nil {
			return err
		}

		newBalance, err := s.accounts.AdjustBalanceTx(tx, accountID, delta)
		if err != nil {
			return err
		}

		if newBalance < 0 && !skipOverdraftCheck && !account.Type.AllowsOverdraft() {
			return apperr.New(apperr.ErrValidation,
				fmt.Sprintf("insufficient funds in account %q", account.Name),
				map[string]interface{}{
					"account_id": accountID,
					"balance":    newBalance - delta,
					"amount":     -delta,
				})
		}
	}
	return nil
}

func (s *Service) emitTransaction(eventType events.EventType, t *Transaction) {
	if s.eventManager == nil {
		return
	}
	s.eventManager.EmitTyped(eventType, "ledger", &events.TransactionEventData{
		TransactionID: t.ID,
		Kind:          string(t.Kind),
		Amount:        t.Amount,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Status:        string(t.Status),
	})
}

// diffDeltas computes after minus before per account, the net balance
// adjustment needed when a transaction is corrected in place.
func diffDeltas(before, after map[int64]int64) map[int64]int64 {
	result := make(map[int64]int64, len(before)+len(after))
	for id, delta := range after {
		result[id] += delta
	}
	for id, delta := range before {
		result[id] -= delta
	}
	return result
}
