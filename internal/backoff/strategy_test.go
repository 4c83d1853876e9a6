package backoff

import (
	"testing"
	"time"
)

func TestFixedStrategy(t *testing.T) {
	s := FixedStrategy{}

	for attempt := 0; attempt < 5; attempt++ {
		got := s.Calculate(attempt, time.Second, 30*time.Second, 2, 0)
		if got != time.Second {
			t.Errorf("Calculate(%d) = %v, want 1s", attempt, got)
		}
	}
}

func TestFixedStrategyClampsToCeiling(t *testing.T) {
	got := FixedStrategy{}.Calculate(0, 5*time.Second, 2*time.Second, 1, 0)
	if got != 2*time.Second {
		t.Errorf("Calculate() = %v, want 2s", got)
	}
}

func TestExponentialStrategy(t *testing.T) {
	s := ExponentialStrategy{}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		got := s.Calculate(tt.attempt, time.Second, 30*time.Second, 2, 0)
		if got != tt.expected {
			t.Errorf("Calculate(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestExponentialStrategyNegativeAttempt(t *testing.T) {
	got := ExponentialStrategy{}.Calculate(-3, 100*time.Millisecond, time.Second, 2, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Calculate(-3) = %v, want 100ms", got)
	}
}

func TestExponentialStrategyLargeAttemptDoesNotOverflow(t *testing.T) {
	got := ExponentialStrategy{}.Calculate(1000, time.Second, 30*time.Second, 2, 0)
	if got != 30*time.Second {
		t.Errorf("Calculate(1000) = %v, want 30s", got)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	s := ExponentialStrategy{}

	for i := 0; i < 100; i++ {
		got := s.Calculate(1, 100*time.Millisecond, time.Second, 2, 0.5)
		if got < 200*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("Calculate() with jitter = %v, want within [200ms, 300ms]", got)
		}
	}
}

func TestClampJitter(t *testing.T) {
	if clampJitter(-1) != 0 {
		t.Error("Expected negative jitter to clamp to 0")
	}
	if clampJitter(2) != 1 {
		t.Error("Expected jitter above 1 to clamp to 1")
	}
	if clampJitter(0.3) != 0.3 {
		t.Error("Expected jitter within range to be unchanged")
	}
}
