// Package domain defines the storage contracts the MyCoach backend is built
// against. The mgorm package provides the GORM-based implementation; tests
// use in-memory substitutes.
package domain

import (
	"context"
	"time"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/audit"
	"github.com/gaelgael5/mycoach-sub001/otp"
)

// Storage is the composite interface a full backend deployment needs.
type Storage interface {
	UserStorage
	MeasurementStorage
	OAuthConnectionStorage
	otp.VerificationStore
	audit.Store
	RetentionStore
}

// UserStorage persists user accounts. Implementations are responsible for
// encrypting the marked fields at the persistence boundary.
type UserStorage interface {
	CreateUser(ctx context.Context, u *account.User) error
	GetUser(ctx context.Context, id string) (*account.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*account.User, error)
	UpdateUser(ctx context.Context, u *account.User) error
	DeleteUser(ctx context.Context, id string) error
	SetPhoneVerified(ctx context.Context, userID, phone string, at time.Time) error
}

// MeasurementStorage persists body measurements (values encrypted at rest).
type MeasurementStorage interface {
	CreateMeasurement(ctx context.Context, m *account.Measurement) error
	ListMeasurements(ctx context.Context, userID string, page, limit int) ([]account.Measurement, error)
	DeleteMeasurement(ctx context.Context, id string) error
}

// OAuthConnectionStorage persists provider connections (tokens encrypted
// under the token key domain).
type OAuthConnectionStorage interface {
	SaveConnection(ctx context.Context, c *account.OAuthConnection) error
	GetConnection(ctx context.Context, userID, provider string) (*account.OAuthConnection, error)
	DeleteConnection(ctx context.Context, userID, provider string) error
}

// RetentionStore exposes the purge operations the compliance retention
// manager runs.
type RetentionStore interface {
	// PurgeAuditEvents deletes audit events older than the given date.
	PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error)

	// PurgeExpiredVerifications deletes finished or expired verification
	// cycles older than the given date.
	PurgeExpiredVerifications(ctx context.Context, olderThan time.Time) (int64, error)

	// PurgeDeletedUsers permanently removes soft-deleted users.
	PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error)
}
