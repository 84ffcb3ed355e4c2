package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/botirjon13/oyin-backent/internal/domain"
)

const maxBodyBytes = 1 << 20

// identityRef is the client-side reference to an account: either the full
// identity key, or the raw telegram/guest identifier it was built from.
type identityRef struct {
	Identity   string `json:"identity"`
	TelegramID int64  `json:"telegram_id"`
	GuestID    string `json:"guest_id"`
}

func (ref identityRef) resolve() (domain.Identity, error) {
	switch {
	case ref.Identity != "":
		return domain.ParseIdentity(ref.Identity)
	case ref.TelegramID > 0:
		return domain.TelegramIdentity(ref.TelegramID), nil
	case ref.GuestID != "":
		return domain.GuestIdentity(ref.GuestID), nil
	}

	return domain.Identity{}, domain.ErrInvalidIdentity
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}

	return nil
}

type accountPayload struct {
	Identity     string    `json:"identity"`
	TelegramID   int64     `json:"telegram_id,omitempty"`
	IsGuest      bool      `json:"is_guest"`
	Username     string    `json:"username"`
	AvatarID     int       `json:"avatar_id"`
	BestScore    int64     `json:"best_score"`
	Diamonds     int64     `json:"diamonds"`
	LastPlayedAt time.Time `json:"last_played_at"`
}

func accountView(acc *domain.Account) accountPayload {
	return accountPayload{
		Identity:     acc.Identity.Key(),
		TelegramID:   acc.TelegramID,
		IsGuest:      acc.IsGuest,
		Username:     acc.Username,
		AvatarID:     acc.AvatarID,
		BestScore:    acc.BestScore,
		Diamonds:     acc.Diamonds,
		LastPlayedAt: acc.LastPlayedAt,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramID int64  `json:"telegram_id"`
		GuestID    string `json:"guest_id"`
		Username   string `json:"username"`
		AvatarID   int    `json:"avatar_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeBadRequest(w, r, "")
		return
	}

	var (
		acc *domain.Account
		err error
	)
	switch {
	case req.TelegramID > 0:
		acc, err = s.ledger.RegisterTelegram(r.Context(), req.TelegramID, req.Username, req.AvatarID)
	case req.GuestID != "":
		acc, err = s.ledger.RegisterGuest(r.Context(), req.GuestID, req.Username, req.AvatarID)
	default:
		s.writeBadRequest(w, r, "telegram_id or guest_id is required")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, accountView(acc))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseIdentity(r.URL.Query().Get("identity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	acc, err := s.ledger.Account(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, accountView(acc))
}

func (s *Server) handleSaveScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		identityRef
		Score int64 `json:"score"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeBadRequest(w, r, "")
		return
	}

	id, err := req.resolve()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.ledger.SaveScore(r.Context(), id, req.Score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		HighScore       int64 `json:"high_score"`
		DiamondsAwarded int64 `json:"diamonds_awarded"`
		Diamonds        int64 `json:"diamonds"`
	}{
		HighScore:       result.HighScore,
		DiamondsAwarded: result.DiamondsAwarded,
		Diamonds:        result.Diamonds,
	})
}

func (s *Server) handleEarnDiamonds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		identityRef
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeBadRequest(w, r, "")
		return
	}

	id, err := req.resolve()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	balance, err := s.ledger.EarnDiamonds(r.Context(), id, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Diamonds int64 `json:"diamonds"`
	}{Diamonds: balance})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.leaderboard.Top(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type entryPayload struct {
		Nickname  string `json:"nickname"`
		AvatarID  int    `json:"avatar_id"`
		AvatarURL string `json:"avatar_url"`
		Score     int64  `json:"score"`
		IsGuest   bool   `json:"is_guest"`
	}

	payload := make([]entryPayload, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, entryPayload{
			Nickname:  e.Nickname,
			AvatarID:  e.AvatarID,
			AvatarURL: e.AvatarURL,
			Score:     e.Score,
			IsGuest:   e.IsGuest,
		})
	}

	writeJSON(w, http.StatusOK, struct {
		Leaderboard []entryPayload `json:"leaderboard"`
	}{Leaderboard: payload})
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.catalog.ActiveOffers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type offerPayload struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Cost  int64  `json:"cost"`
		Stock int64  `json:"stock"`
	}

	payload := make([]offerPayload, 0, len(offers))
	for _, o := range offers {
		payload = append(payload, offerPayload{
			ID:    o.ID,
			Title: o.Title,
			Cost:  o.Cost,
			Stock: o.Stock,
		})
	}

	writeJSON(w, http.StatusOK, struct {
		Offers []offerPayload `json:"offers"`
	}{Offers: payload})
}
