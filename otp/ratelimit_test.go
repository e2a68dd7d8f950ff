package otp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRateLimiterAllow(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, "phone:+33612345678", 3, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if want := 3 - (i + 1); remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, remaining, want)
		}
	}

	allowed, remaining, err := limiter.Allow(ctx, "phone:+33612345678", 3, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Error("request over the limit should be denied")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestMemoryRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "a", 1, time.Minute); !allowed {
		t.Fatal("first request for key a should be allowed")
	}
	if allowed, _, _ := limiter.Allow(ctx, "a", 1, time.Minute); allowed {
		t.Fatal("second request for key a should be denied")
	}
	if allowed, _, _ := limiter.Allow(ctx, "b", 1, time.Minute); !allowed {
		t.Fatal("key b must not be affected by key a")
	}
}

func TestMemoryRateLimiterWindowSlides(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "k", 1, 10*time.Millisecond); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := limiter.Allow(ctx, "k", 1, 10*time.Millisecond); allowed {
		t.Fatal("immediate second request should be denied")
	}

	time.Sleep(15 * time.Millisecond)

	if allowed, _, _ := limiter.Allow(ctx, "k", 1, 10*time.Millisecond); !allowed {
		t.Fatal("request after the window should be allowed")
	}
}

func TestMemoryRateLimiterReset(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Hour); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Hour); allowed {
		t.Fatal("second request should be denied")
	}

	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Hour); !allowed {
		t.Fatal("request after reset should be allowed")
	}
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{RetryAfter: 30 * time.Minute}
	if !IsRateLimitError(err) {
		t.Error("IsRateLimitError should match *RateLimitError")
	}
	if IsRateLimitError(errors.New("other")) {
		t.Error("IsRateLimitError should not match arbitrary errors")
	}

	var target *RateLimitError
	if !errors.As(err, &target) {
		t.Error("errors.As should match *RateLimitError")
	}

	withMessage := &RateLimitError{Message: "too many requests"}
	if withMessage.Error() != "too many requests" {
		t.Errorf("Error() = %q", withMessage.Error())
	}
}
