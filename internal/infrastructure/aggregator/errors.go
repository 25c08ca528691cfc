package aggregator

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error codes the sync engine reacts to. Everything else propagates as-is.
const (
	ErrorCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrorCodeLoginRequired = "ITEM_LOGIN_REQUIRED"
	ErrorCodeInvalidToken  = "INVALID_ACCESS_TOKEN"
)

// APIError is a structured error returned by the aggregator API.
type APIError struct {
	StatusCode int
	ErrorType  string `json:"error_type"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"error_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error (status %d): %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// IsRateLimited reports whether err is a throttling signal from the aggregator.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.ErrorCode == ErrorCodeRateLimit
	}
	return false
}

// IsReconnectRequired reports whether err means the stored credential is
// invalid or expired and the user must re-link the institution. These errors
// are never retried.
func IsReconnectRequired(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized ||
			apiErr.ErrorCode == ErrorCodeLoginRequired ||
			apiErr.ErrorCode == ErrorCodeInvalidToken
	}
	return false
}

// IsTransient reports whether err looks like a short-lived network or
// upstream failure worth a gentle retry: timeouts, connection resets, and
// 5xx gateway responses.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused")
}
