package tautan

import (
	"testing"
	"time"
)

func TestDefaultRetryPolicyShouldRetry(t *testing.T) {
	policy := NewDefaultRetryPolicy(time.Second, 30*time.Second)

	tests := []struct {
		kind     ErrorKind
		expected bool
	}{
		{KindNetwork, true},
		{KindTimeout, true},
		{KindServer, true},
		{KindRateLimit, true},
		{KindValidation, false},
		{KindAuthentication, false},
		{KindAuthorization, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := policy.ShouldRetry(&APIError{Kind: tt.kind}); got != tt.expected {
				t.Errorf("ShouldRetry(%s) = %v, want %v", tt.kind, got, tt.expected)
			}
		})
	}

	if policy.ShouldRetry(nil) {
		t.Error("Expected nil error not to be retried")
	}
}

func TestDefaultRetryPolicyFixedDelay(t *testing.T) {
	policy := NewDefaultRetryPolicy(time.Second, 30*time.Second)
	serverErr := &APIError{Kind: KindServer}

	for attempt := 0; attempt < 5; attempt++ {
		if d := policy.NextDelay(attempt, serverErr); d != time.Second {
			t.Errorf("Attempt %d: expected fixed 1s delay, got %v", attempt, d)
		}
	}
}

func TestDefaultRetryPolicyRateLimitBackoff(t *testing.T) {
	policy := NewDefaultRetryPolicy(time.Second, 30*time.Second)
	rateErr := &APIError{Kind: KindRateLimit}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	var previous time.Duration
	for attempt, want := range expected {
		got := policy.NextDelay(attempt, rateErr)
		if got != want {
			t.Errorf("Attempt %d: expected %v, got %v", attempt, want, got)
		}
		if got < previous {
			t.Errorf("Attempt %d: delay decreased from %v to %v", attempt, previous, got)
		}
		if got > 30*time.Second {
			t.Errorf("Attempt %d: delay %v exceeds ceiling", attempt, got)
		}
		previous = got
	}
}

func TestDefaultRetryPolicyRetryAfter(t *testing.T) {
	policy := NewDefaultRetryPolicy(time.Second, 30*time.Second)

	hinted := &APIError{Kind: KindRateLimit, RetryAfter: 5 * time.Second}
	if d := policy.NextDelay(0, hinted); d != 5*time.Second {
		t.Errorf("Expected Retry-After to win, got %v", d)
	}

	smaller := &APIError{Kind: KindRateLimit, RetryAfter: time.Second}
	if d := policy.NextDelay(3, smaller); d != 8*time.Second {
		t.Errorf("Expected computed delay to win over smaller hint, got %v", d)
	}

	huge := &APIError{Kind: KindServer, RetryAfter: time.Hour}
	if d := policy.NextDelay(0, huge); d != 30*time.Second {
		t.Errorf("Expected Retry-After to be clamped to ceiling, got %v", d)
	}
}

func TestDefaultRetryPolicyJitter(t *testing.T) {
	policy := NewDefaultRetryPolicy(time.Second, 30*time.Second).WithJitter(0.5)
	serverErr := &APIError{Kind: KindServer}

	for i := 0; i < 50; i++ {
		d := policy.NextDelay(0, serverErr)
		if d < time.Second || d > 1500*time.Millisecond {
			t.Fatalf("Expected jittered delay within [1s, 1.5s], got %v", d)
		}
	}
}

func TestDefaultRetryPolicyRateLimitCeilingIgnoresLargeMaxDelay(t *testing.T) {
	client := New(WithMaxRetryDelay(5 * time.Minute))
	if !client.IsValid() {
		t.Fatalf("Expected valid client, got %v", client.ValidationError())
	}
	rateErr := &APIError{Kind: KindRateLimit}

	for attempt := 0; attempt < 12; attempt++ {
		if d := client.retryPolicy.NextDelay(attempt, rateErr); d > MaxRateLimitDelay {
			t.Errorf("Attempt %d: expected at most %v, got %v", attempt, MaxRateLimitDelay, d)
		}
	}
	if d := client.retryPolicy.NextDelay(9, rateErr); d != MaxRateLimitDelay {
		t.Errorf("Expected backoff to settle at %v, got %v", MaxRateLimitDelay, d)
	}

	hinted := &APIError{Kind: KindRateLimit, RetryAfter: 4 * time.Minute}
	if d := client.retryPolicy.NextDelay(0, hinted); d != MaxRateLimitDelay {
		t.Errorf("Expected Retry-After clamped to %v, got %v", MaxRateLimitDelay, d)
	}

	serverErr := &APIError{Kind: KindServer}
	if d := client.retryPolicy.NextDelay(4, serverErr); d != time.Second {
		t.Errorf("Expected fixed 1s delay for ordinary kinds, got %v", d)
	}
}

func TestDefaultRetryPolicyLowerCeilingWins(t *testing.T) {
	policy := NewDefaultRetryPolicy(time.Second, 5*time.Second)

	if d := policy.NextDelay(6, &APIError{Kind: KindRateLimit}); d != 5*time.Second {
		t.Errorf("Expected 5s ceiling, got %v", d)
	}
	if d := policy.NextDelay(0, &APIError{Kind: KindServer, RetryAfter: time.Minute}); d != 5*time.Second {
		t.Errorf("Expected Retry-After clamped to 5s, got %v", d)
	}
}
