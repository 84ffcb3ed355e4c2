package domain

import "time"

// Offer is one redeemable catalog entry. Stock only ever moves down, one
// unit per successful exchange.
type Offer struct {
	ID        int64
	Title     string
	Cost      int64
	Active    bool
	Stock     int64
	CreatedAt time.Time
}

// Redeemable reports whether the offer can currently be exchanged.
func (o Offer) Redeemable() bool {
	return o.Active && o.Stock > 0
}
