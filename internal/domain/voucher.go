package domain

import (
	"database/sql"
	"time"
)

// VoucherStatus is the one-way redemption state of an issued voucher.
type VoucherStatus string

const (
	VoucherActive VoucherStatus = "active"
	VoucherUsed   VoucherStatus = "used"
)

// Voucher is a single-use credential minted by a successful exchange. The
// token is the capability secret embedded in the redemption link; the code is
// the human-readable label shown to the player and staff. A voucher row is
// never deleted, it is the audit trail of the exchange.
type Voucher struct {
	ID         int64
	Identity   Identity
	OfferID    int64
	OfferTitle string
	Token      string
	Code       string
	Status     VoucherStatus
	CreatedAt  time.Time
	UsedAt     sql.NullTime
}

// Used reports whether the voucher has been consumed.
func (v Voucher) Used() bool {
	return v.Status == VoucherUsed
}
