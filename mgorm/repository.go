// Package mgorm provides the GORM-based persistence layer for the MyCoach
// backend. It is the only package that handles ciphertext: every marked
// column passes through the privacy cipher in the model converters, so
// business logic reads and writes plaintext while the database stores
// envelopes.
package mgorm

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/audit"
	"github.com/gaelgael5/mycoach-sub001/otp"
	"github.com/gaelgael5/mycoach-sub001/privacy"
)

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

// Repository implements domain.Storage over a gorm.DB.
type Repository struct {
	db     *gorm.DB
	cipher *privacy.Cipher
}

// NewRepository wraps an open gorm.DB with the cipher used at the
// persistence boundary.
func NewRepository(db *gorm.DB, cipher *privacy.Cipher) *Repository {
	return &Repository{db: db, cipher: cipher}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate creates or updates the schema for all models.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&gormUser{},
		&gormMeasurement{},
		&gormOAuthConnection{},
		&gormPhoneVerification{},
		&gormAuditEvent{},
	)
}

// ---- Users ----

func (r *Repository) CreateUser(ctx context.Context, u *account.User) error {
	gu, err := fromAccountUser(r.cipher, u)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(gu).Error
}

func (r *Repository) GetUser(ctx context.Context, id string) (*account.User, error) {
	var gu gormUser
	if err := r.db.WithContext(ctx).First(&gu, "id = ? AND deleted_at IS NULL", id).Error; err != nil {
		return nil, err
	}
	return toAccountUser(r.cipher, &gu)
}

func (r *Repository) GetUserByPhone(ctx context.Context, phone string) (*account.User, error) {
	var gu gormUser
	if err := r.db.WithContext(ctx).First(&gu, "phone = ? AND deleted_at IS NULL", phone).Error; err != nil {
		return nil, err
	}
	return toAccountUser(r.cipher, &gu)
}

func (r *Repository) UpdateUser(ctx context.Context, u *account.User) error {
	gu, err := fromAccountUser(r.cipher, u)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(gu).Error
}

// DeleteUser soft-deletes the account; permanent removal happens via the
// retention purge after the grace period.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&gormUser{}).
		Where("id = ?", id).
		Update("deleted_at", now).Error
}

func (r *Repository) SetPhoneVerified(ctx context.Context, userID, phone string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&gormUser{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"phone":             phone,
			"phone_verified":    true,
			"phone_verified_at": at,
		}).Error
}

// ---- Measurements ----

func (r *Repository) CreateMeasurement(ctx context.Context, m *account.Measurement) error {
	gm, err := fromAccountMeasurement(r.cipher, m)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(gm).Error
}

func (r *Repository) ListMeasurements(ctx context.Context, userID string, page, limit int) ([]account.Measurement, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var rows []gormMeasurement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("taken_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]account.Measurement, 0, len(rows))
	for i := range rows {
		m, err := toAccountMeasurement(r.cipher, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (r *Repository) DeleteMeasurement(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&gormMeasurement{}, "id = ?", id).Error
}

// ---- OAuth Connections ----

func (r *Repository) SaveConnection(ctx context.Context, c *account.OAuthConnection) error {
	gc, err := fromAccountConnection(r.cipher, c)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(gc).Error
}

func (r *Repository) GetConnection(ctx context.Context, userID, provider string) (*account.OAuthConnection, error) {
	var gc gormOAuthConnection
	if err := r.db.WithContext(ctx).First(&gc, "user_id = ? AND provider = ?", userID, provider).Error; err != nil {
		return nil, err
	}
	return toAccountConnection(r.cipher, &gc)
}

func (r *Repository) DeleteConnection(ctx context.Context, userID, provider string) error {
	return r.db.WithContext(ctx).
		Delete(&gormOAuthConnection{}, "user_id = ? AND provider = ?", userID, provider).Error
}

// ---- Phone Verifications (otp.VerificationStore) ----

// WithinTransaction runs fn against a transactional repository. The
// read-check-write sequences of the otp manager rely on this being a single
// atomic scope: an aborted request observes no state change.
func (r *Repository) WithinTransaction(ctx context.Context, fn func(tx otp.VerificationStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, cipher: r.cipher})
	})
}

func (r *Repository) Create(ctx context.Context, v *otp.PhoneVerification) error {
	return r.db.WithContext(ctx).Create(fromOTPVerification(v)).Error
}

func (r *Repository) Update(ctx context.Context, v *otp.PhoneVerification) error {
	return r.db.WithContext(ctx).Save(fromOTPVerification(v)).Error
}

func (r *Repository) ActiveByUser(ctx context.Context, userID string) (*otp.PhoneVerification, error) {
	var gv gormPhoneVerification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND verified_at IS NULL", userID).
		Order("created_at DESC").
		First(&gv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toOTPVerification(&gv), nil
}

func (r *Repository) CountRecentByPhone(ctx context.Context, phone string, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&gormPhoneVerification{}).
		Where("phone = ? AND created_at >= ?", phone, since).
		Count(&count).Error
	return int(count), err
}

func (r *Repository) ExpireActive(ctx context.Context, userID string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&gormPhoneVerification{}).
		Where("user_id = ? AND verified_at IS NULL AND expires_at > ?", userID, now).
		Update("expires_at", now).Error
}

// ---- Audit (audit.Store) ----

func (r *Repository) SaveEvent(ctx context.Context, event *audit.Event) error {
	return r.db.WithContext(ctx).Create(fromAuditEvent(event)).Error
}

func (r *Repository) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	q := r.db.WithContext(ctx).Model(&gormAuditEvent{})

	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.SubjectID != "" {
		q = q.Where("subject_id = ?", filter.SubjectID)
	}
	if len(filter.Types) > 0 {
		q = q.Where("type IN ?", filter.Types)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if !filter.StartTime.IsZero() {
		q = q.Where("created_at >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		q = q.Where("created_at <= ?", filter.EndTime)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []gormAuditEvent
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]audit.Event, 0, len(rows))
	for i := range rows {
		out = append(out, toAuditEvent(&rows[i]))
	}
	return out, nil
}

func (r *Repository) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Delete(&gormAuditEvent{}, "created_at < ?", olderThan)
	return res.RowsAffected, res.Error
}

// ---- Retention (domain.RetentionStore) ----

func (r *Repository) PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	return r.Purge(ctx, olderThan)
}

func (r *Repository) PurgeExpiredVerifications(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Delete(&gormPhoneVerification{},
			"(verified_at IS NOT NULL OR expires_at < ?) AND created_at < ?",
			time.Now(), olderThan)
	return res.RowsAffected, res.Error
}

func (r *Repository) PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Delete(&gormUser{}, "deleted_at IS NOT NULL AND deleted_at < ?", deletedBefore)
	return res.RowsAffected, res.Error
}
