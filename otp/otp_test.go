package otp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/audit"
	"github.com/gaelgael5/mycoach-sub001/sms"
)

type memoryUserStore struct {
	verified map[string]time.Time
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{verified: make(map[string]time.Time)}
}

func (s *memoryUserStore) SetPhoneVerified(ctx context.Context, userID, phone string, at time.Time) error {
	s.verified[userID] = at
	return nil
}

type fixture struct {
	manager *Manager
	store   *MemoryVerificationStore
	users   *memoryUserStore
	sender  *sms.MemorySender
	trail   *audit.MemoryStore
	clock   time.Time
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryVerificationStore(),
		users:  newMemoryUserStore(),
		sender: sms.NewMemorySender(),
		trail:  audit.NewMemoryStore(),
		clock:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.manager = NewManager(f.store, f.users, f.sender, f.trail, config)
	f.manager.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// lastCode extracts the code from the most recent captured SMS body.
func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	msgs := f.sender.Messages()
	if len(msgs) == 0 {
		t.Fatal("no SMS was dispatched")
	}
	body := msgs[len(msgs)-1].Body
	fields := strings.Fields(body)
	if len(fields) == 0 || len(fields[0]) != CodeLength {
		t.Fatalf("cannot extract code from body %q", body)
	}
	return fields[0]
}

func testUser() *account.User {
	return &account.User{
		ID:    "user-1",
		Role:  account.RoleClient,
		Phone: "+33612345678",
	}
}

func TestRequestAndConfirm(t *testing.T) {
	f := newFixture(t, Config{AppHash: "AbCdEfGh"})
	user := testUser()
	ctx := context.Background()

	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatalf("Request: %v", err)
	}

	msgs := f.sender.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(msgs))
	}
	if msgs[0].To != user.Phone {
		t.Errorf("SMS sent to %q, want %q", msgs[0].To, user.Phone)
	}
	if !strings.Contains(msgs[0].Body, "AbCdEfGh") {
		t.Errorf("SMS body missing app hash: %q", msgs[0].Body)
	}

	code := f.lastCode(t)
	if err := f.manager.Confirm(ctx, user, code); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if !user.PhoneVerified {
		t.Error("user not marked verified in memory")
	}
	if user.PhoneVerifiedAt == nil || !user.PhoneVerifiedAt.Equal(f.clock) {
		t.Errorf("PhoneVerifiedAt = %v, want %v", user.PhoneVerifiedAt, f.clock)
	}
	if _, ok := f.users.verified[user.ID]; !ok {
		t.Error("durable phone-verified flag was not set")
	}

	// Both transitions are audited.
	events, err := f.trail.Query(ctx, audit.Filter{SubjectID: user.ID})
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []string{audit.EventVerificationRequested, audit.EventVerificationConfirmed}
	if len(types) != len(want) {
		t.Fatalf("audit events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("audit event %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestRequestAlreadyVerified(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()
	user.PhoneVerified = true

	if err := f.manager.Request(context.Background(), user); !errors.Is(err, ErrPhoneAlreadyVerified) {
		t.Fatalf("Request = %v, want ErrPhoneAlreadyVerified", err)
	}
	if len(f.sender.Messages()) != 0 {
		t.Error("no SMS should be sent for a verified phone")
	}
}

func TestConfirmNoActiveVerification(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()

	if err := f.manager.Confirm(context.Background(), user, "abc123"); !errors.Is(err, ErrNoActiveVerification) {
		t.Fatalf("Confirm = %v, want ErrNoActiveVerification", err)
	}
}

func TestConfirmWrongCode(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()
	ctx := context.Background()

	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatal(err)
	}

	if err := f.manager.Confirm(ctx, user, "zzzzzz"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("Confirm = %v, want ErrInvalidCode", err)
	}
	if user.PhoneVerified {
		t.Error("user must not be verified after a wrong code")
	}

	// The correct code still works while attempts remain.
	if err := f.manager.Confirm(ctx, user, f.lastCode(t)); err != nil {
		t.Fatalf("Confirm after one wrong attempt: %v", err)
	}
}

func TestConfirmLockout(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()
	ctx := context.Background()

	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatal(err)
	}
	code := f.lastCode(t)

	// Two wrong attempts leave the cycle pending.
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		if err := f.manager.Confirm(ctx, user, "zzzzzz"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: got %v, want ErrInvalidCode", i+1, err)
		}
	}

	// The third wrong attempt hits the cap.
	if err := f.manager.Confirm(ctx, user, "zzzzzz"); !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("attempt %d: got %v, want ErrMaxAttempts", DefaultMaxAttempts, err)
	}

	// Lockout is terminal: even the correct code is rejected.
	if err := f.manager.Confirm(ctx, user, code); !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("correct code after lockout: got %v, want ErrMaxAttempts", err)
	}
	if user.PhoneVerified {
		t.Error("user must not be verified after lockout")
	}

	events, _ := f.trail.Query(ctx, audit.Filter{Types: []string{audit.EventVerificationLocked}})
	if len(events) == 0 {
		t.Error("lockout was not audited")
	}
}

func TestConfirmExpiredDoesNotConsumeAttempt(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()
	ctx := context.Background()

	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatal(err)
	}
	code := f.lastCode(t)

	f.advance(DefaultTTL + time.Second)

	if err := f.manager.Confirm(ctx, user, code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("Confirm = %v, want ErrCodeExpired", err)
	}

	v, err := f.store.ActiveByUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Attempts != 0 {
		t.Errorf("Attempts = %d after expired confirm, want 0", v.Attempts)
	}
}

func TestRequestRateLimit(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()
	ctx := context.Background()

	for i := 0; i < DefaultRequestLimit; i++ {
		if err := f.manager.Request(ctx, user); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		f.advance(time.Minute)
	}

	err := f.manager.Request(ctx, user)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("request %d = %v, want *RateLimitError", DefaultRequestLimit+1, err)
	}
	if rle.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", rle.RetryAfter)
	}
	if got := len(f.sender.Messages()); got != DefaultRequestLimit {
		t.Errorf("dispatched %d SMS, want %d", got, DefaultRequestLimit)
	}

	// Once the window has cleared the phone can request again.
	f.advance(DefaultRequestWindow)
	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatalf("request after window: %v", err)
	}
}

func TestRequestSupersedesPriorCode(t *testing.T) {
	f := newFixture(t, Config{})
	user := testUser()
	ctx := context.Background()

	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatal(err)
	}
	first := f.lastCode(t)

	f.advance(time.Minute)
	if err := f.manager.Request(ctx, user); err != nil {
		t.Fatal(err)
	}
	second := f.lastCode(t)

	// The first cycle is no longer actionable: only the latest record is
	// active, so the old code is just a wrong code against it.
	if err := f.manager.Confirm(ctx, user, first); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("superseded code: got %v, want ErrInvalidCode", err)
	}
	if err := f.manager.Confirm(ctx, user, second); err != nil {
		t.Fatalf("latest code: %v", err)
	}
}

func TestRequestExternalLimiter(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	f := newFixture(t, Config{Limiter: limiter})
	user := testUser()
	ctx := context.Background()

	for i := 0; i < DefaultRequestLimit; i++ {
		if err := f.manager.Request(ctx, user); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := f.manager.Request(ctx, user); !IsRateLimitError(err) {
		t.Fatalf("request %d = %v, want rate limit error", DefaultRequestLimit+1, err)
	}

	// The external limiter is holding the key: no SMS went out for the
	// rejected request.
	if got := len(f.sender.Messages()); got != DefaultRequestLimit {
		t.Errorf("dispatched %d SMS, want %d", got, DefaultRequestLimit)
	}
}

func TestStateDerivation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	verified := now.Add(-time.Minute)

	tests := []struct {
		name string
		v    PhoneVerification
		want State
	}{
		{"pending", PhoneVerification{ExpiresAt: now.Add(time.Minute)}, StatePending},
		{"expired", PhoneVerification{ExpiresAt: now.Add(-time.Second)}, StateExpired},
		{"locked", PhoneVerification{ExpiresAt: now.Add(time.Minute), Attempts: 3}, StateLocked},
		{"locked wins over expired", PhoneVerification{ExpiresAt: now.Add(-time.Second), Attempts: 3}, StateLocked},
		{"verified", PhoneVerification{VerifiedAt: &verified}, StateVerified},
		{"verified wins over all", PhoneVerification{VerifiedAt: &verified, Attempts: 3, ExpiresAt: now.Add(-time.Second)}, StateVerified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.State(now, DefaultMaxAttempts); got != tt.want {
				t.Errorf("State = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != CodeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), CodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Errorf("only %d distinct codes out of 100", len(seen))
	}
}

func TestHashCodeStable(t *testing.T) {
	a := HashCode("x7k2m9")
	b := HashCode("x7k2m9")
	if !bytes.Equal(a, b) {
		t.Error("same code must hash identically")
	}
	if bytes.Equal(a, HashCode("x7k2m8")) {
		t.Error("different codes must not collide")
	}
	if len(a) != 32 {
		t.Errorf("hash length = %d, want 32", len(a))
	}
}
