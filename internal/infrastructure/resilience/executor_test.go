package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func TestExecutorRetriesRetryableErrors(t *testing.T) {
	exec := NewExecutor(testConfig())
	attempts := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error) Outcome { return Outcome{Retryable: true, RecordFailure: true} })

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestExecutorStopsOnNonRetryable(t *testing.T) {
	exec := NewExecutor(testConfig())
	attempts := 0
	permanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return permanent
	}, func(error) Outcome { return Outcome{Retryable: false, RecordFailure: true} })

	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestExecutorExhaustsAttempts(t *testing.T) {
	exec := NewExecutor(testConfig())
	attempts := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errors.New("still failing")
	}, func(error) Outcome { return Outcome{Retryable: true, RecordFailure: true} })

	if err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestExecutorBreakerOpensAfterFailures(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 3
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	exec := NewExecutor(cfg)

	fail := func(context.Context) error { return errors.New("down") }
	classify := func(error) Outcome { return Outcome{Retryable: false, RecordFailure: true} }

	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "op", fail, classify)
	}
	err := exec.Execute(context.Background(), "op", fail, classify)
	if !IsCircuitOpen(err) {
		t.Fatalf("breaker should be open, got %v", err)
	}
}

func TestExecutorHonorsContextCancellation(t *testing.T) {
	exec := NewExecutor(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("callback must not run after cancellation")
	}
}
