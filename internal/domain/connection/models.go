// Package connection models a linked institution credential and its lifecycle.
package connection

import (
	"time"
)

// Lifecycle statuses for a connection.
const (
	StatusActive  = "active"
	StatusError   = "error"
	StatusExpired = "expired"
)

// IsValidStatus reports whether s is a known connection status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusError, StatusExpired:
		return true
	}
	return false
}

// Connection represents one linked institution credential. AccessToken holds
// the encrypted aggregator access token; it is decrypted only at the point of
// use. Connections are never deleted by a sync; removal is an explicit user
// action handled elsewhere.
type Connection struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"userId"`
	ItemID           string     `json:"itemId"`
	InstitutionID    string     `json:"institutionId"`
	InstitutionName  string     `json:"institutionName"`
	AccessToken      string     `json:"-"`
	Status           string     `json:"status"`
	LastSyncedAt     *time.Time `json:"lastSyncedAt"`
	LastErrorCode    *string    `json:"lastErrorCode"`
	LastErrorMessage *string    `json:"lastErrorMessage"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// CreateParams holds the fields needed to register a new connection after a
// successful credential exchange.
type CreateParams struct {
	UserID          int64
	ItemID          string
	InstitutionID   string
	InstitutionName string
	AccessToken     string // already encrypted
}
