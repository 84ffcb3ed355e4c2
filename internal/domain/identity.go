package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// IdentityKind distinguishes the two supported account origins.
type IdentityKind string

const (
	IdentityTelegram IdentityKind = "telegram"
	IdentityGuest    IdentityKind = "guest"
)

const (
	telegramKeyPrefix = "tg_"
	guestKeyPrefix    = "guest_"
)

// ErrInvalidIdentity indicates an identity key that matches neither known form.
var ErrInvalidIdentity = errors.New("invalid identity key")

// Identity is the stable key of one player account. It is either linked to a
// Telegram user or locally generated for a guest, and serializes
// deterministically to the column the stores index on.
type Identity struct {
	kind       IdentityKind
	telegramID int64
	guestID    string
}

// TelegramIdentity builds an identity for a Telegram-linked account.
func TelegramIdentity(telegramID int64) Identity {
	return Identity{kind: IdentityTelegram, telegramID: telegramID}
}

// GuestIdentity builds an identity for a locally generated guest account.
func GuestIdentity(guestID string) Identity {
	guestID = strings.TrimPrefix(strings.TrimSpace(guestID), guestKeyPrefix)
	return Identity{kind: IdentityGuest, guestID: guestID}
}

// ParseIdentity parses a stored key ("tg_<id>" or "guest_<id>") back into a
// tagged identity value.
func ParseIdentity(key string) (Identity, error) {
	key = strings.TrimSpace(key)

	switch {
	case strings.HasPrefix(key, telegramKeyPrefix):
		raw := strings.TrimPrefix(key, telegramKeyPrefix)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, key)
		}
		return TelegramIdentity(id), nil

	case strings.HasPrefix(key, guestKeyPrefix):
		raw := strings.TrimPrefix(key, guestKeyPrefix)
		if raw == "" {
			return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, key)
		}
		return GuestIdentity(raw), nil
	}

	return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, key)
}

// Kind reports whether the identity is Telegram-linked or a guest.
func (i Identity) Kind() IdentityKind {
	return i.kind
}

// IsZero reports whether the identity carries no value.
func (i Identity) IsZero() bool {
	return i.kind == ""
}

// TelegramID returns the linked Telegram user id when the identity is
// Telegram-backed.
func (i Identity) TelegramID() (int64, bool) {
	if i.kind != IdentityTelegram {
		return 0, false
	}
	return i.telegramID, true
}

// Key returns the stored form of the identity, e.g. "tg_12345" or
// "guest_a1b2c3". This is the unique column value in the accounts table.
func (i Identity) Key() string {
	switch i.kind {
	case IdentityTelegram:
		return telegramKeyPrefix + strconv.FormatInt(i.telegramID, 10)
	case IdentityGuest:
		return guestKeyPrefix + i.guestID
	}
	return ""
}

// String implements fmt.Stringer using the stored key form.
func (i Identity) String() string {
	return i.Key()
}
