package domain

import "time"

// Account represents one player ledger row: identity, best score and the
// spendable diamond balance. Accounts are created on first registration and
// never deleted.
type Account struct {
	Identity     Identity
	TelegramID   int64
	IsGuest      bool
	Username     string
	AvatarID     int
	BestScore    int64
	Diamonds     int64
	CreatedAt    time.Time
	LastPlayedAt time.Time
}

// LeaderboardEntry is the read model for the public top-N listing.
type LeaderboardEntry struct {
	Nickname     string
	AvatarID     int
	AvatarURL    string
	Score        int64
	IsGuest      bool
	TelegramID   int64
	LastPlayedAt time.Time
}
