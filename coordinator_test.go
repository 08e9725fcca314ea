package fluent

import (
	"testing"
	"time"
)

func TestCoordinatorAggregation(t *testing.T) {
	serverCfg := NewServerErrorRetryConfig(3, 10*time.Millisecond, time.Second)
	rateCfg := NewRateLimitRetryConfig(2).WithFallback(500 * time.Millisecond)
	coord := NewRetryCoordinator(serverCfg, rateCfg)

	t.Run("MaxRetriesIsMaximum", func(t *testing.T) {
		if got := coord.MaxRetries(); got != 3 {
			t.Errorf("MaxRetries = %d, want 3", got)
		}
	})

	t.Run("ShouldRetryIsUnion", func(t *testing.T) {
		tests := []struct {
			status  int
			timeout bool
			want    bool
		}{
			{429, false, true},
			{503, false, true},
			{500, false, true},
			{404, false, false},
			{200, false, false},
			{0, true, true},
		}
		for _, tt := range tests {
			if got := coord.ShouldRetry(tt.status, tt.timeout); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.status, tt.timeout, got, tt.want)
			}
		}
	})

	t.Run("DelayUsesMatchingPolicy", func(t *testing.T) {
		// 429 matches only the rate limit policy.
		if got := coord.Delay(1, 429, false); got != 500*time.Millisecond {
			t.Errorf("Delay(1, 429) = %v, want the 429 policy's 500ms", got)
		}
		// 503 matches only the server error policy.
		if got := coord.Delay(1, 503, false); got != 10*time.Millisecond {
			t.Errorf("Delay(1, 503) = %v, want the 5xx policy's 10ms", got)
		}
	})

	t.Run("DelayTakesMaximumWhenBothMatch", func(t *testing.T) {
		// A policy that also covers 429 with a longer delay must win.
		both := NewRetryCoordinator(
			NewRateLimitRetryConfig(2).WithFallback(100*time.Millisecond),
			NewRateLimitRetryConfig(2).WithFallback(300*time.Millisecond),
		)
		if got := both.Delay(1, 429, false); got != 300*time.Millisecond {
			t.Errorf("Delay = %v, want the conservative 300ms", got)
		}
	})
}

func TestCoordinatorRetryAfterReplacesFallback(t *testing.T) {
	coord := NewRetryCoordinator(
		NewRateLimitRetryConfig(2).WithFallback(4 * time.Second),
	)

	// The header value drives the delay even when shorter than the fallback.
	if got := coord.DelayWithRetryAfter(1, 429, false, time.Second); got != time.Second {
		t.Errorf("DelayWithRetryAfter = %v, want the header's 1s", got)
	}
	// Without a header the fallback stands.
	if got := coord.DelayWithRetryAfter(1, 429, false, 0); got != 4*time.Second {
		t.Errorf("DelayWithRetryAfter = %v, want the 4s fallback", got)
	}
}

func TestCoordinatorNoMatchingPolicyZeroDelay(t *testing.T) {
	coord := NewRetryCoordinator(NewServerErrorRetryConfig(2, 10*time.Millisecond, time.Second))
	if got := coord.Delay(1, 404, false); got != 0 {
		t.Errorf("Delay for non-matching status = %v, want 0", got)
	}
}

func TestRetryBudget(t *testing.T) {
	budget := NewRetryBudget(2, time.Hour)
	coord := NewRetryCoordinator(NewServerErrorRetryConfig(10, time.Millisecond, time.Second)).WithBudget(budget)

	allowed := 0
	for i := 0; i < 5; i++ {
		if coord.allowRetry() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("budget allowed %d retries, want 2", allowed)
	}

	current, max, _ := budget.Stats()
	if current != 2 || max != 2 {
		t.Errorf("Stats = %d/%d, want 2/2", current, max)
	}
}

func TestCoordinatorWithoutBudgetAlwaysAllows(t *testing.T) {
	coord := NewRetryCoordinator(NewServerErrorRetryConfig(3, time.Millisecond, time.Second))
	for i := 0; i < 10; i++ {
		if !coord.allowRetry() {
			t.Fatal("unbudgeted coordinator denied a retry")
		}
	}
}
