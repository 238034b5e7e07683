package domain

import "time"

// Event types emitted by the federation coordinator.
const (
	EventIdentityResolved   = "identity_resolved"
	EventIdentityNotFound   = "identity_not_found"
	EventCredentialAccepted = "credential_accepted"
	EventCredentialRejected = "credential_rejected"
	EventConfigInvalidated  = "config_invalidated"
)

// Rejection reasons for EventCredentialRejected.
const (
	ReasonNotActivated  = "not_activated"
	ReasonLocked        = "locked"
	ReasonExpired       = "expired"
	ReasonBadHash       = "unrecognized_hash"
	ReasonWrongPassword = "wrong_password"
)

// AuthEvent is one authentication or lookup outcome. It never carries the
// candidate secret or the stored hash.
type AuthEvent struct {
	EventType  string
	IdentityID int64 // 0 when no identity was resolved
	Login      string
	Reason     string // rejection reason, empty on success
	ConfigKey  string
	CreatedAt  time.Time
}
