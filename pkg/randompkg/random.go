// Package randompkg provides functionality gor generating random applications common items.
package randompkg

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// Intn is a shortcut for generating a random integer between 0 and max using crypto/rand.
func Intn(max int) int64 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(err)
	}

	return nBig.Int64()
}

// IntBetween generates a random integer between min and max inclusive.
func IntBetween(min, max int) int64 {
	return int64(min) + Intn(max-min+1)
}

// String generates a random string of length n.
func String(n int) string {
	var sb strings.Builder

	k := len(alphabet)

	for i := 0; i < n; i++ {
		c := alphabet[Intn(k)]

		_ = sb.WriteByte(c) // The returned err is always nil.
	}

	return sb.String()
}

// Owner generates a random owner id.
func Owner() string {
	return "owner_" + String(10)
}

// MoneyAmountBetween generates a random amount of money between min and max with two
// decimal places, e.g. "12.34".
func MoneyAmountBetween(min, max int) string {
	cents := IntBetween(min*100, max*100)
	return decimal.New(cents, -2).StringFixed(2)
}
