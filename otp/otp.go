// Package otp implements phone-number ownership verification with one-time
// codes sent over SMS.
//
// A verification cycle moves through a small state machine:
//
//	none -> pending -> verified (terminal)
//	                -> expired  (terminal, time-based)
//	                -> locked   (terminal, attempts exhausted)
//
// Only the SHA-256 hash of a code is ever stored. Codes are 6 symbols drawn
// from a 36-symbol alphabet with a cryptographically secure source; the
// modest entropy is complemented by the attempt cap and the 10 minute
// expiry. Submitted codes are compared in constant time.
//
// Every failure is a distinct named condition so the HTTP adapter can map it
// to an appropriate client-facing response; nothing is retried internally.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/audit"
	"github.com/gaelgael5/mycoach-sub001/sms"
)

const (
	// CodeLength is the number of symbols in a verification code.
	CodeLength = 6

	codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// DefaultTTL is how long a code stays confirmable.
	DefaultTTL = 10 * time.Minute

	// DefaultMaxAttempts is the confirm cap before an attempt locks.
	DefaultMaxAttempts = 3

	// DefaultRequestLimit and DefaultRequestWindow bound how many codes may
	// be requested for one phone number in a trailing window.
	DefaultRequestLimit  = 3
	DefaultRequestWindow = time.Hour
)

// Named failure conditions. All are recoverable by the user via a new
// request cycle where applicable; none are fatal to the process.
var (
	ErrPhoneAlreadyVerified = fmt.Errorf("otp: phone is already verified")
	ErrNoActiveVerification = fmt.Errorf("otp: no active verification for user")
	ErrCodeExpired          = fmt.Errorf("otp: code expired")
	ErrInvalidCode          = fmt.Errorf("otp: invalid code")
	ErrMaxAttempts          = fmt.Errorf("otp: maximum attempts reached")
)

// State describes where a verification attempt is in its lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateVerified State = "verified"
	StateExpired  State = "expired"
	StateLocked   State = "locked"
)

// PhoneVerification is one verification cycle for a user. The raw code is
// never stored, only its hash.
type PhoneVerification struct {
	ID         string
	UserID     string
	Phone      string
	CodeHash   []byte
	ExpiresAt  time.Time
	Attempts   int
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// State derives the lifecycle state at the given instant. maxAttempts is the
// configured confirm cap.
func (v *PhoneVerification) State(now time.Time, maxAttempts int) State {
	switch {
	case v.VerifiedAt != nil:
		return StateVerified
	case v.Attempts >= maxAttempts:
		return StateLocked
	case now.After(v.ExpiresAt):
		return StateExpired
	default:
		return StatePending
	}
}

// UserStore is the slice of user persistence the manager needs: flipping the
// durable phone-verified flag on confirm success.
type UserStore interface {
	SetPhoneVerified(ctx context.Context, userID, phone string, at time.Time) error
}

// Config tunes the verification manager. Zero values fall back to the
// package defaults.
type Config struct {
	TTL           time.Duration
	MaxAttempts   int
	RequestLimit  int
	RequestWindow time.Duration

	// AppHash is appended to the SMS body so mobile clients can auto-read
	// the code.
	AppHash string

	// Limiter, when set, adds an extra throttle in front of Request (for
	// example per-IP via Redis). The 3-per-hour-per-phone invariant is
	// always enforced from the store regardless.
	Limiter    RateLimiter
	LimiterKey func(ctx context.Context, user *account.User) string
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RequestLimit <= 0 {
		c.RequestLimit = DefaultRequestLimit
	}
	if c.RequestWindow <= 0 {
		c.RequestWindow = DefaultRequestWindow
	}
	return c
}

// Manager drives the verification state machine. It owns no locking of its
// own: the read-check-write sequences for Request and Confirm run inside a
// single store transaction, so correctness under concurrent calls for the
// same user rests on the store's transaction semantics.
type Manager struct {
	store      VerificationStore
	users      UserStore
	sender     sms.Sender
	auditStore audit.Store
	config     Config
	now        func() time.Time
}

// NewManager creates a verification manager. auditStore may be nil.
func NewManager(store VerificationStore, users UserStore, sender sms.Sender, auditStore audit.Store, config Config) *Manager {
	return &Manager{
		store:      store,
		users:      users,
		sender:     sender,
		auditStore: auditStore,
		config:     config.withDefaults(),
		now:        time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Request starts a new verification cycle for the user's phone number and
// dispatches the code over SMS. A new request supersedes any still-pending
// prior code for the user. Fails with ErrPhoneAlreadyVerified or
// *RateLimitError.
func (m *Manager) Request(ctx context.Context, user *account.User) error {
	if user.PhoneVerified {
		return ErrPhoneAlreadyVerified
	}

	now := m.now()

	if m.config.Limiter != nil {
		key := user.Phone
		if m.config.LimiterKey != nil {
			key = m.config.LimiterKey(ctx, user)
		}
		allowed, _, err := m.config.Limiter.Allow(ctx, key, m.config.RequestLimit, m.config.RequestWindow)
		if err != nil {
			return fmt.Errorf("otp: rate limit check failed: %w", err)
		}
		if !allowed {
			return &RateLimitError{RetryAfter: m.config.RequestWindow}
		}
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("otp: code generation failed: %w", err)
	}

	err = m.store.WithinTransaction(ctx, func(tx VerificationStore) error {
		count, err := tx.CountRecentByPhone(ctx, user.Phone, now.Add(-m.config.RequestWindow))
		if err != nil {
			return err
		}
		if count >= m.config.RequestLimit {
			return &RateLimitError{RetryAfter: m.config.RequestWindow}
		}

		// A new request invalidates any still-pending prior code.
		if err := tx.ExpireActive(ctx, user.ID, now); err != nil {
			return err
		}

		return tx.Create(ctx, &PhoneVerification{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			Phone:     user.Phone,
			CodeHash:  HashCode(code),
			ExpiresAt: now.Add(m.config.TTL),
			Attempts:  0,
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	m.audit(ctx, audit.EventVerificationRequested, user.ID, "success")

	body := sms.VerificationMessage(code, m.config.AppHash)
	if _, err := m.sender.Send(ctx, user.Phone, body); err != nil {
		return fmt.Errorf("otp: sms dispatch failed: %w", err)
	}
	return nil
}

// Confirm checks a submitted code against the user's active verification.
// On success it finalizes the attempt and marks the user's phone verified;
// this is the only path that mutates durable phone-verified state.
func (m *Manager) Confirm(ctx context.Context, user *account.User, code string) error {
	if user.PhoneVerified {
		return ErrPhoneAlreadyVerified
	}

	now := m.now()
	submitted := HashCode(code)

	err := m.store.WithinTransaction(ctx, func(tx VerificationStore) error {
		v, err := tx.ActiveByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNoActiveVerification
		}

		// Lockout is terminal regardless of code correctness.
		if v.Attempts >= m.config.MaxAttempts {
			return ErrMaxAttempts
		}
		// Expiry does not consume an attempt.
		if now.After(v.ExpiresAt) {
			return ErrCodeExpired
		}

		v.Attempts++
		if err := tx.Update(ctx, v); err != nil {
			return err
		}

		if subtle.ConstantTimeCompare(submitted, v.CodeHash) != 1 {
			if v.Attempts >= m.config.MaxAttempts {
				return ErrMaxAttempts
			}
			return ErrInvalidCode
		}

		v.VerifiedAt = &now
		if err := tx.Update(ctx, v); err != nil {
			return err
		}
		return m.users.SetPhoneVerified(ctx, user.ID, v.Phone, now)
	})
	if err != nil {
		switch err {
		case ErrInvalidCode:
			m.audit(ctx, audit.EventVerificationFailed, user.ID, "failure")
		case ErrMaxAttempts:
			m.audit(ctx, audit.EventVerificationLocked, user.ID, "blocked")
		}
		return err
	}

	user.PhoneVerified = true
	user.PhoneVerifiedAt = &now

	m.audit(ctx, audit.EventVerificationConfirmed, user.ID, "success")
	return nil
}

func (m *Manager) audit(ctx context.Context, eventType, subjectID, status string) {
	if m.auditStore == nil {
		return
	}
	m.auditStore.SaveEvent(ctx, &audit.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SubjectID: subjectID,
		Status:    status,
		CreatedAt: m.now(),
	})
}

// HashCode returns the one-way hash under which codes are stored and
// compared.
func HashCode(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

// generateCode draws CodeLength symbols from the 36-symbol alphabet using
// crypto/rand. Rejection sampling keeps the distribution uniform.
func generateCode() (string, error) {
	const limit = byte(252) // largest multiple of 36 below 256

	out := make([]byte, 0, CodeLength)
	buf := make([]byte, 16)
	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
