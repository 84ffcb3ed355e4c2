package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError is the application-level fault wrapper: it classifies an error for
// logging, metrics, Sentry forwarding and the retry helper. Business outcomes
// (not-found, out-of-stock, insufficient balance) never become AppErrors --
// those are typed results in the domain package.
type AppError struct {
	Code       string
	Message    string
	MessageKey string // i18n key for the user-facing message
	Severity   Severity
	Retryable  bool
	cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewValidationError marks malformed client input.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:       "E100",
		Message:    msg,
		MessageKey: "errors.bad_request",
		Severity:   SeverityLow,
		Retryable:  false,
		cause:      nil,
	}
}

// NewStoreError wraps a datastore fault (connectivity, lock timeout,
// serialization). The exchange and redemption transactions guarantee no
// partial effects survive, so these are safe for the caller to retry whole.
func NewStoreError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:       "E200",
		Message:    fmt.Sprintf("store error: %s", underlyingMsg),
		MessageKey: "errors.temporarily_unavailable",
		Severity:   SeverityHigh,
		Retryable:  true,
		cause:      cause,
	}
}

// NewExternalAPIError wraps a failure of an outside service such as the
// Telegram Bot API.
func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:       "E300",
		Message:    fmt.Sprintf("external API error: %s", apiName),
		MessageKey: "errors.temporarily_unavailable",
		Severity:   SeverityMedium,
		Retryable:  true,
		cause:      cause,
	}
}

// NewCredentialError marks repeated credential collisions during voucher
// minting. Operationally near-impossible, but retryable by contract.
func NewCredentialError(cause error) *AppError {
	return &AppError{
		Code:       "E400",
		Message:    "credential generation collided with existing voucher",
		MessageKey: "errors.temporarily_unavailable",
		Severity:   SeverityMedium,
		Retryable:  true,
		cause:      cause,
	}
}

// NewRateLimitError reports a rejected request with a retry hint.
func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:       "E500",
		Message:    fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		MessageKey: "errors.rate_limited",
		Severity:   SeverityLow,
		Retryable:  false,
		cause:      nil,
	}
}
