package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ricesearch/cisi-search/internal/config"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	attempts := 0
	errTemp := errors.New("connection reset")
	err := exec.Execute(context.Background(), "es.search", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryNotFound(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "es.get", func(context.Context) error {
		attempts++
		return apperrors.NotFoundError("Document")
	}, nil)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "es.search", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("callback should not run with a cancelled context")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	errDown := errors.New("backend down")
	fail := func(context.Context) error { return errDown }

	for i := 0; i < 2; i++ {
		if err := exec.Execute(context.Background(), "es.search", fail, nil); !errors.Is(err, errDown) {
			t.Fatalf("attempt %d: expected backend error, got %v", i, err)
		}
	}

	calls := 0
	err := exec.Execute(context.Background(), "es.search", func(context.Context) error {
		calls++
		return nil
	}, nil)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if appErr, ok := apperrors.As(err); !ok || appErr.Code != apperrors.CodeUnavailable {
		t.Errorf("expected unavailable AppError, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("callback should not run while the circuit is open")
	}

	// breakers are per operation
	if err := exec.Execute(context.Background(), "es.get", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("other operation should be unaffected, got %v", err)
	}
}

func TestExecuteNilCallback(t *testing.T) {
	if err := NewExecutor(DefaultConfig(), nil).Execute(context.Background(), "op", nil, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"nil", nil, ErrorClassification{}},
		{"canceled", context.Canceled, ErrorClassification{}},
		{"deadline", context.DeadlineExceeded, ErrorClassification{}},
		{"not found", apperrors.NotFoundError("x"), ErrorClassification{}},
		{"validation", apperrors.ValidationError("x"), ErrorClassification{}},
		{"backend", apperrors.BackendError("x", errors.New("y")), ErrorClassification{Retryable: true, RecordFailure: true}},
		{"plain", errors.New("eof"), ErrorClassification{Retryable: true, RecordFailure: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultClassifier() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfigFromNormalizes(t *testing.T) {
	cfg := ConfigFrom(config.ResilienceConfig{RetryMaxAttempts: 0, BreakerFailureRatio: 2}).normalize()

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want default 3", cfg.RetryMaxAttempts)
	}
	if cfg.BreakerFailureRatio != 0.5 {
		t.Errorf("BreakerFailureRatio = %v, want default 0.5", cfg.BreakerFailureRatio)
	}
	if cfg.RetryMultiplier != 2 {
		t.Errorf("RetryMultiplier = %v, want 2", cfg.RetryMultiplier)
	}
}
