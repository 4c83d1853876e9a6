package backoff

import (
	"testing"
	"time"
)

func TestCalculator(t *testing.T) {
	calc := Exponential(100*time.Millisecond, 5*time.Second)

	result := calc.Calculate(1)
	expected := 200 * time.Millisecond
	if result != expected {
		t.Errorf("Calculate(1) = %v, want %v", result, expected)
	}

	if calc.Ceiling() != 5*time.Second {
		t.Errorf("Ceiling() = %v, want 5s", calc.Ceiling())
	}

	if _, ok := calc.Strategy().(ExponentialStrategy); !ok {
		t.Errorf("Strategy() returned wrong type: %T", calc.Strategy())
	}
}

func TestFixedCalculator(t *testing.T) {
	calc := Fixed(time.Second, 30*time.Second)

	for attempt := 0; attempt < 4; attempt++ {
		if got := calc.Calculate(attempt); got != time.Second {
			t.Errorf("Calculate(%d) = %v, want 1s", attempt, got)
		}
	}
}

func TestCalculatorWithJitterCopies(t *testing.T) {
	calc := Fixed(time.Second, 30*time.Second)
	jittered := calc.WithJitter(0.5)

	if calc.jitter != 0 {
		t.Errorf("Expected original calculator jitter to stay 0, got %v", calc.jitter)
	}
	if jittered.jitter != 0.5 {
		t.Errorf("Expected jittered calculator jitter 0.5, got %v", jittered.jitter)
	}
}

func BenchmarkCalculatorExponential(b *testing.B) {
	calc := Exponential(100*time.Millisecond, 5*time.Second)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		calc.Calculate(i % 10)
	}
}
