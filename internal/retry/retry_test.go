package retry

import "testing"
import "time"

func TestBackoff_GrowsExponentiallyWithRetries(t *testing.T) {
	tests := []struct {
		retries int
		initial time.Duration
		max     time.Duration
		factor  float64
		want    time.Duration
	}{
		{1, 100 * time.Millisecond, 10 * time.Second, 2.0, 100 * time.Millisecond},
		{2, 100 * time.Millisecond, 10 * time.Second, 2.0, 200 * time.Millisecond},
		{3, 100 * time.Millisecond, 10 * time.Second, 2.0, 400 * time.Millisecond},
		{10, 100 * time.Millisecond, 1 * time.Second, 2.0, 1 * time.Second}, // capped at max
	}

	for _, tt := range tests {
		got := Backoff(tt.retries, tt.initial, tt.max, tt.factor)
		if got != tt.want {
			t.Errorf("Backoff(%d, %v, %v, %v) = %v, want %v",
				tt.retries, tt.initial, tt.max, tt.factor, got, tt.want)
		}
	}
}

func TestBackoff_FlatDelayWhenFactorIsOne(t *testing.T) {
	for retries := 1; retries <= 5; retries++ {
		got := Backoff(retries, 50*time.Millisecond, time.Second, 1)
		if got != 50*time.Millisecond {
			t.Errorf("Backoff(%d, ...) with factor 1 = %v, want flat 50ms", retries, got)
		}
	}
}

func TestBackoff_NonPositiveInputsFallBackToDefaults(t *testing.T) {
	got := Backoff(0, 0, 0, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Backoff with all zero inputs = %v, want the 100ms default", got)
	}
}

func TestBackoffWithJitter_StaysWithinExpectedRange(t *testing.T) {
	base := Backoff(3, 100*time.Millisecond, 10*time.Second, 2.0)
	low := time.Duration(float64(base) * 0.5)
	high := time.Duration(float64(base) * 1.5)

	for i := 0; i < 50; i++ {
		got := BackoffWithJitter(3, 100*time.Millisecond, 10*time.Second, 2.0)
		if got < low || got > high {
			t.Fatalf("BackoffWithJitter = %v, want within [%v, %v]", got, low, high)
		}
	}
}

func TestBackoffWithJitter_VariesAcrossCalls(t *testing.T) {
	seen := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		seen[BackoffWithJitter(2, 10*time.Millisecond, time.Second, 2.0)] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected jittered backoff to produce more than one distinct value across calls")
	}
}
