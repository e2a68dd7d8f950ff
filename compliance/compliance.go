// Package compliance implements RGPD bookkeeping for the MyCoach backend.
//
// The RetentionManager purges data whose retention period has elapsed:
// audit events, finished or expired phone-verification cycles, and
// soft-deleted user accounts past their grace period.
//
//	policy := compliance.DefaultRetentionPolicy()
//	manager := compliance.NewRetentionManager(store, policy)
//	report, _ := manager.RunCleanup(ctx) // periodic job
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/gaelgael5/mycoach-sub001/domain"
)

// RetentionPolicy defines how long each data category is kept, in days.
// A zero value disables cleanup for that category.
type RetentionPolicy struct {
	// AuditEventDays is how long to keep audit events.
	AuditEventDays int

	// VerificationDays is how long finished or expired phone-verification
	// cycles are kept before garbage collection.
	VerificationDays int

	// DeletedUserDays is the grace period before soft-deleted accounts are
	// permanently removed.
	DeletedUserDays int
}

// DefaultRetentionPolicy returns the defaults used in production.
func DefaultRetentionPolicy() *RetentionPolicy {
	return &RetentionPolicy{
		AuditEventDays:   365,
		VerificationDays: 30,
		DeletedUserDays:  30,
	}
}

// RetentionHooks provides callbacks around purge operations.
type RetentionHooks struct {
	// AfterPurge is called after a purge operation completes.
	AfterPurge func(ctx context.Context, dataType string, count int64, err error)
}

// RetentionManager handles data retention and cleanup.
type RetentionManager struct {
	store  domain.RetentionStore
	policy *RetentionPolicy
	hooks  RetentionHooks
}

// NewRetentionManager creates a new retention manager.
func NewRetentionManager(store domain.RetentionStore, policy *RetentionPolicy) *RetentionManager {
	if policy == nil {
		policy = DefaultRetentionPolicy()
	}
	return &RetentionManager{store: store, policy: policy}
}

// SetHooks sets retention hooks.
func (m *RetentionManager) SetHooks(hooks RetentionHooks) {
	m.hooks = hooks
}

// CleanupReport summarizes a cleanup operation.
type CleanupReport struct {
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	AuditEventsDeleted   int64     `json:"audit_events_deleted"`
	VerificationsDeleted int64     `json:"verifications_deleted"`
	DeletedUsersRemoved  int64     `json:"deleted_users_removed"`
	Errors               []string  `json:"errors,omitempty"`
}

// RunCleanup executes all retention cleanup operations.
func (m *RetentionManager) RunCleanup(ctx context.Context) (*CleanupReport, error) {
	now := time.Now()
	report := &CleanupReport{StartTime: now}

	if m.policy.AuditEventDays > 0 {
		cutoff := now.AddDate(0, 0, -m.policy.AuditEventDays)
		count, err := m.purge(ctx, "audit_events", func() (int64, error) {
			return m.store.PurgeAuditEvents(ctx, cutoff)
		})
		report.AuditEventsDeleted = count
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("audit_events: %v", err))
		}
	}

	if m.policy.VerificationDays > 0 {
		cutoff := now.AddDate(0, 0, -m.policy.VerificationDays)
		count, err := m.purge(ctx, "verifications", func() (int64, error) {
			return m.store.PurgeExpiredVerifications(ctx, cutoff)
		})
		report.VerificationsDeleted = count
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("verifications: %v", err))
		}
	}

	if m.policy.DeletedUserDays > 0 {
		cutoff := now.AddDate(0, 0, -m.policy.DeletedUserDays)
		count, err := m.purge(ctx, "deleted_users", func() (int64, error) {
			return m.store.PurgeDeletedUsers(ctx, cutoff)
		})
		report.DeletedUsersRemoved = count
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("deleted_users: %v", err))
		}
	}

	report.EndTime = time.Now()
	return report, nil
}

func (m *RetentionManager) purge(ctx context.Context, dataType string, purgeFunc func() (int64, error)) (int64, error) {
	count, err := purgeFunc()
	if m.hooks.AfterPurge != nil {
		m.hooks.AfterPurge(ctx, dataType, count, err)
	}
	return count, err
}
