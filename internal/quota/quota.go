// Package quota gates billable diagnostic requests by account balance.
package quota

import (
	"errors"
	"fmt"

	"github.com/faultlinehq/faultline/internal/database"
)

// ErrQuotaExceeded means the account's remaining-query balance is exhausted.
// It is fatal to the request and leaves no side effects.
var ErrQuotaExceeded = errors.New("query quota exceeded")

// ErrUnknownAccount means the caller's account does not exist.
var ErrUnknownAccount = errors.New("unknown account")

// Gate is the admission control for the diagnosis pipeline. Admission is
// checked before any external call is issued; the balance is only spent on
// success via Settle.
type Gate struct {
	db *database.DB
}

// NewGate creates a quota gate backed by the account store.
func NewGate(db *database.DB) *Gate {
	return &Gate{db: db}
}

// Admit checks that the account may start a billable request. Admin accounts
// have unlimited quota; the role is resolved here, once, and nowhere else.
func (g *Gate) Admit(accountID int64) error {
	account, err := g.db.GetAccount(accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("%w: %d", ErrUnknownAccount, accountID)
	}
	if account.Role == "admin" {
		return nil
	}
	if account.Balance <= 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// Settle spends exactly one query from the balance after a successful
// request. The decrement is a single compare-and-decrement statement, so two
// racing requests against a balance of one settle exactly once. Admin
// accounts settle for free.
func (g *Gate) Settle(accountID int64) error {
	account, err := g.db.GetAccount(accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("%w: %d", ErrUnknownAccount, accountID)
	}
	if account.Role == "admin" {
		return nil
	}

	ok, err := g.db.DecrementBalance(accountID)
	if err != nil {
		return fmt.Errorf("settling quota: %w", err)
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}
