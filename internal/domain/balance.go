package domain

import (
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
)

// Balance is a balance snapshot of one account.
type Balance struct {
	AccountID uuid.UUID      `json:"account_id"`
	Balance   moneypkg.Money `json:"balance"`
}

// FoldBalance sums the contributions of entries to accountID's balance starting from zero.
//
// The sum is commutative, so the order of entries does not affect the result.
func FoldBalance(accountID uuid.UUID, entries []Entry) moneypkg.Money {
	sum := moneypkg.Zero

	for _, e := range entries {
		sum = sum.Add(e.Contribution(accountID))
	}

	return sum
}
