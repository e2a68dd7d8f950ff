// Package audit records security-relevant events for compliance review.
//
// Events carry identifiers and outcomes only: no plaintext PII, no
// verification codes, and no key material may appear in an event. Retention
// of the resulting trail is handled by the compliance package.
package audit

import (
	"context"
	"time"

	"github.com/gaelgael5/mycoach-sub001/account"
)

// Event represents a structured security event record.
type Event struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`       // e.g. "phone.verification.confirmed"
	ActorID   string       `json:"actor_id"`   // The account performing the action
	SubjectID string       `json:"subject_id"` // The affected account or resource
	Status    string       `json:"status"`     // "success", "failure", "blocked"
	Message   string       `json:"message"`
	Metadata  account.JSON `json:"metadata"`
	CreatedAt time.Time    `json:"created_at"`
}

// Store defines the interface for persisting and querying audit events.
type Store interface {
	// SaveEvent persists an audit event.
	SaveEvent(ctx context.Context, event *Event) error

	// Query returns events matching the filter.
	Query(ctx context.Context, filter Filter) ([]Event, error)

	// Purge deletes events older than the specified time.
	// Returns the number of events deleted.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// Filter for querying audit events.
type Filter struct {
	ActorID   string
	SubjectID string
	Types     []string
	Statuses  []string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Predefined event types.
const (
	EventVerificationRequested = "phone.verification.requested"
	EventVerificationConfirmed = "phone.verification.confirmed"
	EventVerificationFailed    = "phone.verification.failed"
	EventVerificationLocked    = "phone.verification.locked"

	EventOAuthConnected    = "oauth.connection.created"
	EventOAuthRefreshed    = "oauth.connection.refreshed"
	EventOAuthDisconnected = "oauth.connection.deleted"

	EventUserCreated = "account.user.created"
	EventUserDeleted = "account.user.deleted"
	EventUserErased  = "account.user.erased"
)
