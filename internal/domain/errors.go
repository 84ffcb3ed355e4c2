package domain

import (
	"errors"
	"fmt"
)

// Business outcomes of ledger and exchange operations. These are expected,
// user-facing results, not faults; callers match them with errors.Is/As and
// map them to stable API codes.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrOutOfStock      = errors.New("offer out of stock")
	ErrVoucherNotFound = errors.New("voucher not found")
)

// InsufficientBalanceError reports a rejected exchange together with the
// amounts needed for client display.
type InsufficientBalanceError struct {
	Need int64
	Have int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %d diamonds, have %d", e.Need, e.Have)
}

// IsInsufficientBalance extracts an InsufficientBalanceError from err.
func IsInsufficientBalance(err error) (*InsufficientBalanceError, bool) {
	var ibe *InsufficientBalanceError
	if errors.As(err, &ibe) {
		return ibe, true
	}
	return nil, false
}
