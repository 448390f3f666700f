package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrEmptyExpense        = errors.New("expense has no amount in any category")
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownAssetClass   = errors.New("unknown asset class")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrUnknownDestination  = errors.New("unknown transfer destination")
	ErrBalanceOverflow     = errors.New("balance out of range")
	ErrInvalidRate         = errors.New("invalid return rate")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSettledAdvance      = errors.New("advance already settled")
	ErrNotAdvance          = errors.New("entry is not an advance")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrMalformedSnapshot   = errors.New("malformed snapshot")
	ErrInconsistentLog     = errors.New("log does not reproduce balances")
)

// ShortfallError reports a balance that would go, or went, below zero.
// It matches ErrInsufficientBalance with errors.Is.
type ShortfallError struct {
	Account   string
	Available Amount
	Required  Amount
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient balance in %s: have %s, need %s",
		e.Account, Format(e.Available), Format(e.Required))
}

func (e *ShortfallError) Is(target error) bool { return target == ErrInsufficientBalance }
