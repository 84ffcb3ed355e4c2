package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/botirjon13/oyin-backent/internal/domain"
	"github.com/botirjon13/oyin-backent/internal/idempotency"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	qrImageSize           = 256
)

type voucherPayload struct {
	Code       string     `json:"code"`
	OfferTitle string     `json:"offer_title"`
	Status     string     `json:"status"`
	Token      string     `json:"token,omitempty"`
	RedeemURL  string     `json:"redeem_url,omitempty"`
	QRURL      string     `json:"qr_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

// voucherView renders a voucher for its owner, including the secret token
// and the links built from it.
func (s *Server) voucherView(v domain.Voucher) voucherPayload {
	payload := voucherPayload{
		Code:       v.Code,
		OfferTitle: v.OfferTitle,
		Status:     string(v.Status),
		Token:      v.Token,
		RedeemURL:  s.redeemURL(v.Token),
		QRURL:      s.qrURL(v.Token),
		CreatedAt:  v.CreatedAt,
	}
	if v.UsedAt.Valid {
		usedAt := v.UsedAt.Time
		payload.UsedAt = &usedAt
	}

	return payload
}

func (s *Server) redeemURL(token string) string {
	return fmt.Sprintf("%s/v/%s", s.config().Server.BaseURL, token)
}

func (s *Server) qrURL(token string) string {
	return fmt.Sprintf("%s/v/%s/qr.png", s.config().Server.BaseURL, token)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		identityRef
		OfferID int64 `json:"offer_id"`
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

	if req.OfferID <= 0 {
		s.writeBadRequest(w, r, "offer_id must be positive")
		return
	}

	run := func() ([]byte, error) {
		receipt, err := s.exchange.Exchange(r.Context(), id, req.OfferID)
		if err != nil {
			return nil, err
		}

		return json.Marshal(struct {
			Voucher      voucherPayload `json:"voucher"`
			DiamondsLeft int64          `json:"diamonds_left"`
		}{
			Voucher:      s.voucherView(receipt.Voucher),
			DiamondsLeft: receipt.DiamondsLeft,
		})
	}

	clientKey := r.Header.Get("Idempotency-Key")
	if clientKey == "" || s.idem == nil {
		body, err := run()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeRawJSON(w, http.StatusOK, body)
		return
	}

	ttl := s.config().Idempotency.TTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	key := idempotency.RequestKey(r.Method, r.URL.Path, clientKey)
	result, err := s.idem.Execute(r.Context(), key, ttl, func(ctx context.Context) ([]byte, error) {
		return run()
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if result.FromCache {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	writeRawJSON(w, http.StatusOK, result.Response)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) handleVoucherHistory(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseIdentity(r.URL.Query().Get("identity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	vouchers, err := s.redemption.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := make([]voucherPayload, 0, len(vouchers))
	for _, v := range vouchers {
		payload = append(payload, s.voucherView(v))
	}

	writeJSON(w, http.StatusOK, struct {
		Vouchers []voucherPayload `json:"vouchers"`
	}{Vouchers: payload})
}

// handleVoucherLookup shows voucher state without consuming it. Viewing or
// scanning a voucher must never burn it.
func (s *Server) handleVoucherLookup(w http.ResponseWriter, r *http.Request) {
	voucher, err := s.redemption.Lookup(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := s.voucherView(*voucher)
	// the caller already holds the token; no need to echo links
	payload.Token = ""
	payload.RedeemURL = ""
	payload.QRURL = ""

	writeJSON(w, http.StatusOK, payload)
}

// handleVoucherConsume fires the one-way active -> used transition. Repeat
// calls succeed and report already_used instead of failing.
func (s *Server) handleVoucherConsume(w http.ResponseWriter, r *http.Request) {
	result, err := s.redemption.Consume(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tr := s.translator(r)
	messageKey := "vouchers.consumed"
	if result.AlreadyUsed {
		messageKey = "vouchers.already_used"
	}

	writeJSON(w, http.StatusOK, struct {
		Code        string `json:"code"`
		OfferTitle  string `json:"offer_title"`
		AlreadyUsed bool   `json:"already_used"`
		Message     string `json:"message"`
	}{
		Code:        result.VoucherCode,
		OfferTitle:  result.OfferTitle,
		AlreadyUsed: result.AlreadyUsed,
		Message:     tr.T(messageKey),
	})
}

// handleVoucherQR renders the redemption URL as a PNG QR image. Unknown
// tokens 404 before any image work.
func (s *Server) handleVoucherQR(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	if _, err := s.redemption.Lookup(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}

	png, err := qrcode.Encode(s.redeemURL(token), qrcode.Medium, qrImageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(png)
}
