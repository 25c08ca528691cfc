package aggregator

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rateLimited bool
		reconnect   bool
		transient   bool
	}{
		{
			name:        "429 status",
			err:         &APIError{StatusCode: 429},
			rateLimited: true,
		},
		{
			name:        "rate limit code on 200-family status",
			err:         &APIError{StatusCode: 400, ErrorCode: ErrorCodeRateLimit},
			rateLimited: true,
		},
		{
			name:      "401 status",
			err:       &APIError{StatusCode: 401},
			reconnect: true,
		},
		{
			name:      "login required code",
			err:       &APIError{StatusCode: 400, ErrorCode: ErrorCodeLoginRequired},
			reconnect: true,
		},
		{
			name:      "invalid token code",
			err:       &APIError{StatusCode: 400, ErrorCode: ErrorCodeInvalidToken},
			reconnect: true,
		},
		{
			name:      "502 gateway",
			err:       &APIError{StatusCode: 502},
			transient: true,
		},
		{
			name:      "503 unavailable",
			err:       &APIError{StatusCode: 503},
			transient: true,
		},
		{
			name:      "504 timeout",
			err:       &APIError{StatusCode: 504},
			transient: true,
		},
		{
			name: "500 is not transient",
			err:  &APIError{StatusCode: 500},
		},
		{
			name: "plain 400",
			err:  &APIError{StatusCode: 400, ErrorCode: "INVALID_REQUEST"},
		},
		{
			name:      "connection reset",
			err:       errors.New("read tcp 10.0.0.1:443: connection reset by peer"),
			transient: true,
		},
		{
			name:      "connection refused",
			err:       errors.New("dial tcp 10.0.0.1:443: connection refused"),
			transient: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("something else entirely"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.rateLimited {
				t.Errorf("IsRateLimited = %v, want %v", got, tt.rateLimited)
			}
			if got := IsReconnectRequired(tt.err); got != tt.reconnect {
				t.Errorf("IsReconnectRequired = %v, want %v", got, tt.reconnect)
			}
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient = %v, want %v", got, tt.transient)
			}
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	base := &APIError{StatusCode: 429, ErrorCode: ErrorCodeRateLimit}
	wrapped := fmt.Errorf("fetching transactions: %w", fmt.Errorf("page 3: %w", base))

	if !IsRateLimited(wrapped) {
		t.Error("wrapped rate limit error must still classify as rate limited")
	}
	if IsReconnectRequired(wrapped) {
		t.Error("rate limit error must not classify as reconnect required")
	}
}
