// Package ledger implements the transactional core: recording receipts,
// payments and transfers, keeping account balances consistent, and reversing
// transactions without destroying history.
package ledger

import (
	"time"

	"github.com/sandoghapp/sandogh/internal/apperr"
)

// Kind classifies the direction of money movement
type Kind string

const (
	KindReceipt  Kind = "receipt"  // Money in: credits the to-account
	KindPayment  Kind = "payment"  // Money out: debits the from-account
	KindTransfer Kind = "transfer" // Between own accounts: debit from, credit to
)

// Valid reports whether the kind is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case KindReceipt, KindPayment, KindTransfer:
		return true
	}
	return false
}

// Status is the transaction lifecycle state.
// Completed -> Reversed is the only transition, and it is terminal.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusReversed  Status = "reversed"
)

// Reference links a transaction to an external entity, e.g. an invoice.
// The zero value means "no reference".
type Reference struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// IsZero reports whether the reference is unset
func (r Reference) IsZero() bool {
	return r.Type == "" && r.ID == 0
}

// Transaction is a single ledger entry. OccurredAt is the canonical
// Gregorian date. Amount is in the minor currency unit and always positive;
// direction comes from the kind and the account sides.
type Transaction struct {
	ID            int64     `json:"id"`
	OccurredAt    time.Time `json:"occurred_at"`
	Kind          Kind      `json:"kind"`
	FromAccountID *int64    `json:"from_account_id,omitempty"`
	ToAccountID   *int64    `json:"to_account_id,omitempty"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	Reference     Reference `json:"reference,omitempty"`
	Status        Status    `json:"status"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate enforces the structural invariants of a transaction
func (t *Transaction) Validate() error {
	if !t.Kind.Valid() {
		return apperr.Newf(apperr.ErrValidation, "unknown transaction kind %q", t.Kind)
	}
	if t.Amount <= 0 {
		return apperr.New(apperr.ErrValidation, "amount must be positive", map[string]interface{}{"amount": t.Amount})
	}
	if t.OccurredAt.IsZero() {
		return apperr.New(apperr.ErrValidation, "transaction date is required", nil)
	}

	switch t.Kind {
	case KindReceipt:
		if t.ToAccountID == nil {
			return apperr.New(apperr.ErrValidation, "receipt requires a to-account", nil)
		}
		if t.FromAccountID != nil {
			return apperr.New(apperr.ErrValidation, "receipt must not have a from-account", nil)
		}
	case KindPayment:
		if t.FromAccountID == nil {
			return apperr.New(apperr.ErrValidation, "payment requires a from-account", nil)
		}
		if t.ToAccountID != nil {
			return apperr.New(apperr.ErrValidation, "payment must not have a to-account", nil)
		}
	case KindTransfer:
		if t.FromAccountID == nil || t.ToAccountID == nil {
			return apperr.New(apperr.ErrValidation, "transfer requires both accounts", nil)
		}
		if *t.FromAccountID == *t.ToAccountID {
			return apperr.New(apperr.ErrValidation, "transfer accounts must differ", nil)
		}
	}

	return nil
}

// BalanceDeltas returns the signed balance effect per account id:
// the from-account is debited, the to-account is credited.
func (t *Transaction) BalanceDeltas() map[int64]int64 {
	deltas := make(map[int64]int64, 2)
	if t.FromAccountID != nil {
		deltas[*t.FromAccountID] -= t.Amount
	}
	if t.ToAccountID != nil {
		deltas[*t.ToAccountID] += t.Amount
	}
	return deltas
}

// Mirror builds the compensating transaction for a reversal: the account
// sides swap, so a receipt mirrors to a payment, a payment to a receipt, and
// a transfer to the opposite transfer. Amount is unchanged and the net
// balance effect exactly cancels the original.
func (t *Transaction) Mirror() Transaction {
	mirrored := Transaction{
		OccurredAt:  t.OccurredAt,
		Amount:      t.Amount,
		Description: t.Description,
		Status:      StatusCompleted,
	}

	switch t.Kind {
	case KindReceipt:
		mirrored.Kind = KindPayment
		mirrored.FromAccountID = t.ToAccountID
	case KindPayment:
		mirrored.Kind = KindReceipt
		mirrored.ToAccountID = t.FromAccountID
	case KindTransfer:
		mirrored.Kind = KindTransfer
		mirrored.FromAccountID = t.ToAccountID
		mirrored.ToAccountID = t.FromAccountID
	}

	return mirrored
}

// ReversalLink records which transaction compensates which. Created exactly
// once per reversal, immutable afterwards.
type ReversalLink struct {
	ID         int64     `json:"id"`
	OriginalID int64     `json:"original_id"`
	ReversalID int64     `json:"reversal_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilters narrows List queries. Nil fields are ignored.
type ListFilters struct {
	From      *time.Time // Inclusive lower bound on OccurredAt
	To        *time.Time // Exclusive upper bound on OccurredAt
	Kind      *Kind
	Status    *Status
	AccountID *int64 // Matches either side of the transaction
	MinAmount *int64
	MaxAmount *int64
	Limit     int // 0 = no limit
	Offset    int
}
