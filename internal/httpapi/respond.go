package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/i18n"
	"github.com/botirjon13/oyin-backent/internal/idempotency"
)

// errorBody is the stable error envelope. No stack traces or SQL detail
// cross this boundary.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Need    int64  `json:"need,omitempty"`
	Have    int64  `json:"have,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if payload == nil {
		return
	}

	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps business outcomes and application faults to HTTP statuses
// and localized messages. Business outcomes (not-found, out-of-stock,
// insufficient balance) are mapped directly; everything else goes through
// the error handler for logging, severity classification and Sentry.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	tr := s.translator(r)

	var insufficient *domain.InsufficientBalanceError

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: errorBody{
			Code:    "account_not_found",
			Message: tr.T("errors.account_not_found"),
		}})
	case errors.Is(err, domain.ErrOfferNotFound):
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: errorBody{
			Code:    "offer_not_found",
			Message: tr.T("errors.offer_not_found"),
		}})
	case errors.Is(err, domain.ErrOutOfStock):
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Code:    "out_of_stock",
			Message: tr.T("errors.out_of_stock"),
		}})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Code:    "insufficient_balance",
			Message: tr.T("errors.insufficient_balance"),
			Need:    insufficient.Need,
			Have:    insufficient.Have,
		}})
	case errors.Is(err, domain.ErrVoucherNotFound):
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: errorBody{
			Code:    "voucher_not_found",
			Message: tr.T("errors.voucher_not_found"),
		}})
	case errors.Is(err, domain.ErrInvalidIdentity):
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
			Code:    "bad_request",
			Message: tr.T("errors.bad_request"),
		}})
	case errors.Is(err, idempotency.ErrRequestInProgress):
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Code:    "request_in_progress",
			Message: tr.T("errors.temporarily_unavailable"),
		}})
	default:
		s.writeFault(w, r, tr, err)
	}
}

func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, tr i18n.Translator, err error) {
	messageKey, retryable := s.errs.Handle(r.Context(), err)

	status := http.StatusInternalServerError
	code := "internal"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "E100":
			status = http.StatusBadRequest
			code = "bad_request"
		case "E500":
			status = http.StatusTooManyRequests
			code = "rate_limited"
		default:
			if retryable {
				status = http.StatusServiceUnavailable
				code = "temporarily_unavailable"
			}
		}
	} else if retryable {
		status = http.StatusServiceUnavailable
		code = "temporarily_unavailable"
	}

	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: tr.T(messageKey),
	}})
}

const retryAfterSeconds = 1

func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	tr := s.translator(r)

	message := tr.T("errors.bad_request")
	if msg != "" {
		message = msg
	}

	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Code:    "bad_request",
		Message: message,
	}})
}

// translator picks the response language from Accept-Language. Only the
// primary tag matters; unknown languages fall back to the default.
func (s *Server) translator(r *http.Request) i18n.Translator {
	lang := r.Header.Get("Accept-Language")
	if idx := strings.IndexAny(lang, ",;"); idx >= 0 {
		lang = lang[:idx]
	}
	if idx := strings.Index(lang, "-"); idx >= 0 {
		lang = lang[:idx]
	}

	return s.translations.Translator(strings.TrimSpace(lang))
}
