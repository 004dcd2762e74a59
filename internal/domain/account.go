// Package domain provides definitions of the ledger entities and their invariants.
package domain

import (
	"fmt"
	"time"

	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
)

// Account holds the current balance of one owner. Its balance is never negative.
type Account struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Balance   moneypkg.Money `json:"balance"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewAccount returns a fresh account with a new id and zero balance.
func NewAccount(ownerID string) (Account, error) {
	if ownerID == "" {
		return Account{}, ErrInvalidOwner
	}

	return Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   moneypkg.Zero,
		CreatedAt: Now(),
	}, nil
}

// Credit adds amount to the balance. A credit that would push the balance past
// moneypkg.MaxIntegerDigits fails with ErrInvalidAmount and leaves the balance untouched.
func (a *Account) Credit(amount moneypkg.Money) error {
	if err := amount.ValidateAmount(); err != nil {
		return err
	}

	result := a.Balance.Add(amount)
	if err := result.ValidateBalance(); err != nil {
		return fmt.Errorf("credit %s to %s: balance out of range: %w", amount, a.ID, ErrInvalidAmount)
	}

	a.Balance = result

	return nil
}

// Debit subtracts amount from the balance. The balance is left untouched on error.
func (a *Account) Debit(amount moneypkg.Money) error {
	if err := amount.ValidateAmount(); err != nil {
		return err
	}

	result := a.Balance.Sub(amount)
	if result.IsNegative() {
		return &InsufficientFundsError{
			AccountID: a.ID,
			Balance:   a.Balance,
			Requested: amount,
		}
	}

	a.Balance = result

	return nil
}

// AccountRef identifies an account either by its id or by its owner.
type AccountRef struct {
	ID      uuid.UUID
	OwnerID string
}

// RefByID references the account with the given id.
func RefByID(id uuid.UUID) AccountRef {
	return AccountRef{ID: id}
}

// RefByOwner references the account of the given owner.
func RefByOwner(ownerID string) AccountRef {
	return AccountRef{OwnerID: ownerID}
}

// ByOwner reports whether the reference resolves through the owner id.
func (r AccountRef) ByOwner() bool {
	return r.ID == uuid.Nil
}

func (r AccountRef) String() string {
	if r.ByOwner() {
		return "owner:" + r.OwnerID
	}

	return r.ID.String()
}

// Now returns the current UTC time truncated to the precision the stores keep.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
