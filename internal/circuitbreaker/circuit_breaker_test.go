package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&Config{
		Name:             "test",
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	})

	wantErr := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return wantErr })
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	if err := cb.Execute(context.Background(), func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Execute() on open circuit = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(&Config{
		Name:             "test",
		MaxFailures:      2,
		FailureThreshold: 0.5,
		Timeout:          time.Millisecond,
		HalfOpenMaxCalls: 2,
	})

	wantErr := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return wantErr })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	time.Sleep(2 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("Execute() in half-open = %v, want nil", err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", cb.GetState())
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(&Config{
		Name:             "test",
		MaxFailures:      1,
		FailureThreshold: 0.5,
		Timeout:          time.Millisecond,
		HalfOpenMaxCalls: 2,
	})

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	time.Sleep(2 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return errors.New("still broken") })
	if cb.GetState() != StateOpen {
		t.Errorf("state = %s, want reopened", cb.GetState())
	}
}
