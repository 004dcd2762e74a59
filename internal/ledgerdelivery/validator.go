package ledgerdelivery

import (
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/go-playground/validator/v10"
)

// ValidMoney validates whether the field is a positive amount with at most two decimals.
var ValidMoney validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := moneypkg.ParseAmount(s)
		return err == nil
	}

	return false
}
