package leaderboard

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
)

// AvatarResolver maps a Telegram user id to a public profile photo URL.
// An empty URL with nil error means the user has no resolvable photo.
type AvatarResolver interface {
	ResolveAvatar(telegramID int64) (string, error)
}

// TelegramAvatarResolver fetches profile photos through the Bot API. Calls
// go through a circuit breaker so a Telegram outage cannot stall leaderboard
// reads.
type TelegramAvatarResolver struct {
	bot     *telebot.Bot
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

// NewTelegramAvatarResolver wraps an initialized telebot client.
func NewTelegramAvatarResolver(bot *telebot.Bot, log *slog.Logger) *TelegramAvatarResolver {
	if log == nil {
		log = slog.Default()
	}

	return &TelegramAvatarResolver{
		bot:     bot,
		breaker: apperrors.NewCircuitBreaker(),
		log:     log,
	}
}

// ResolveAvatar returns the download URL of the user's first profile photo.
func (r *TelegramAvatarResolver) ResolveAvatar(telegramID int64) (string, error) {
	if r == nil || r.bot == nil || telegramID <= 0 {
		return "", nil
	}

	var url string
	err := r.breaker.Call(func() error {
		photos, err := r.bot.ProfilePhotosOf(&telebot.User{ID: telegramID})
		if err != nil {
			return err
		}
		if len(photos) == 0 {
			return nil
		}

		file, err := r.bot.FileByID(photos[0].FileID)
		if err != nil {
			return err
		}

		url = fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", r.bot.Token, file.FilePath)
		return nil
	})
	if err != nil {
		return "", apperrors.NewExternalAPIError("telegram", err)
	}

	return url, nil
}
