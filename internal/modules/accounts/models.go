// Package accounts provides the account records and balance storage for the
// ledger. Balances live in the minor currency unit and are mutated only from
// inside a ledger transaction, never directly by the HTTP surface.
package accounts

import (
	"strings"
	"time"

	"github.com/sandoghapp/sandogh/internal/apperr"
)

// AccountType classifies an account
type AccountType string

const (
	TypeCash     AccountType = "cash"
	TypeChecking AccountType = "checking"
	TypeSavings  AccountType = "savings"
	TypeCredit   AccountType = "credit"
)

// Valid reports whether the account type is one of the known types
func (t AccountType) Valid() bool {
	switch t {
	case TypeCash, TypeChecking, TypeSavings, TypeCredit:
		return true
	}
	return false
}

// AllowsOverdraft reports whether the account may go below zero.
// Only credit accounts may.
func (t AccountType) AllowsOverdraft() bool {
	return t == TypeCredit
}

// Account is a money container: a till, a bank account, or a credit line.
// OpeningBalance and CurrentBalance are minor currency units.
type Account struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	Bank           string      `json:"bank"`
	OpeningBalance int64       `json:"opening_balance"`
	CurrentBalance int64       `json:"current_balance"`
	Active         bool        `json:"active"`
	Description    string      `json:"description"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Validate checks the fields set by the admin flow before persistence
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return apperr.New(apperr.ErrValidation, "account name is required", nil)
	}
	if !a.Type.Valid() {
		return apperr.Newf(apperr.ErrValidation, "unknown account type %q", a.Type)
	}
	return nil
}
