package otp

import (
	"context"
	"sync"
	"time"
)

// VerificationStore persists verification cycles. Implementations must make
// WithinTransaction atomic: if the callback fails or the request is aborted
// mid-flight, no state change is observable.
type VerificationStore interface {
	// WithinTransaction runs fn against a transactional view of the store.
	WithinTransaction(ctx context.Context, fn func(tx VerificationStore) error) error

	// Create persists a new verification cycle.
	Create(ctx context.Context, v *PhoneVerification) error

	// Update persists mutations to an existing cycle.
	Update(ctx context.Context, v *PhoneVerification) error

	// ActiveByUser returns the user's most recent unverified, unexpired-or-
	// locked-relevant cycle, or nil when none exists.
	ActiveByUser(ctx context.Context, userID string) (*PhoneVerification, error)

	// CountRecentByPhone counts cycles created for the phone since the
	// given instant. Backs the trailing-window request limit.
	CountRecentByPhone(ctx context.Context, phone string, since time.Time) (int, error)

	// ExpireActive invalidates any still-pending cycle for the user so a
	// newly issued code becomes the only actionable one.
	ExpireActive(ctx context.Context, userID string, now time.Time) error
}

// ---- Memory Implementation ----

// MemoryVerificationStore is an in-memory VerificationStore. For tests and
// single-process deployments; production uses the GORM implementation.
type MemoryVerificationStore struct {
	mu    sync.Mutex
	items map[string]*PhoneVerification
}

func NewMemoryVerificationStore() *MemoryVerificationStore {
	return &MemoryVerificationStore{items: make(map[string]*PhoneVerification)}
}

// WithinTransaction serializes all access under one lock, which gives the
// same observable atomicity as a database transaction for a single process.
func (s *MemoryVerificationStore) WithinTransaction(ctx context.Context, fn func(tx VerificationStore) error) error {
	return fn(s)
}

func (s *MemoryVerificationStore) Create(ctx context.Context, v *PhoneVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.items[v.ID] = &cp
	return nil
}

func (s *MemoryVerificationStore) Update(ctx context.Context, v *PhoneVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.items[v.ID] = &cp
	return nil
}

func (s *MemoryVerificationStore) ActiveByUser(ctx context.Context, userID string) (*PhoneVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *PhoneVerification
	for _, v := range s.items {
		if v.UserID != userID || v.VerifiedAt != nil {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryVerificationStore) CountRecentByPhone(ctx context.Context, phone string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, v := range s.items {
		if v.Phone == phone && !v.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryVerificationStore) ExpireActive(ctx context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.items {
		if v.UserID == userID && v.VerifiedAt == nil && v.ExpiresAt.After(now) {
			v.ExpiresAt = now
		}
	}
	return nil
}
