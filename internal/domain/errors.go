package domain

import (
	"errors"
	"fmt"

	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountAlreadyExists indicates that the owner already has an account.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrInvalidOwner indicates an empty owner id.
	ErrInvalidOwner = errors.New("invalid owner")
	// ErrInvalidAmount indicates an amount that is not positive or has more than two decimals.
	ErrInvalidAmount = moneypkg.ErrInvalidAmount
	// ErrInsufficientFunds indicates that a debit would drive the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOperationNotAllowed indicates a transfer whose source and destination are the same account.
	ErrOperationNotAllowed = errors.New("operation not allowed")
	// ErrBusy indicates that a row lock was not acquired within the store's bound.
	ErrBusy = errors.New("account busy")
	// ErrStorageFailure indicates that a store or log was unreachable or rejected the write.
	ErrStorageFailure = errors.New("storage failure")
)

// AccountNotFoundError names the account that could not be found.
type AccountNotFoundError struct {
	Ref AccountRef
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account not found: %s", e.Ref)
}

func (e *AccountNotFoundError) Unwrap() error {
	return ErrAccountNotFound
}

// InsufficientFundsError carries the balance that could not cover the requested debit.
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Balance   moneypkg.Money
	Requested moneypkg.Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: balance %s, requested %s",
		e.AccountID, e.Balance, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsClientError reports whether err was caused by the caller's input rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrOperationNotAllowed) ||
		errors.Is(err, ErrAccountAlreadyExists) ||
		errors.Is(err, ErrInvalidOwner)
}
