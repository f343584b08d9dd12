package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test-feed")
	cfg.ConsecutiveFailures = 3
	cfg.Timeout = time.Hour
	cb := New[int](cfg)

	boom := errors.New("rpc down")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want underlying error", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	_, err := cb.Execute(func() (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("fn executed while breaker open")
	}
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeCircuitOpen)
	}
}

func TestCircuitBreaker_PassesResult(t *testing.T) {
	cb := New[string](DefaultConfig("ok"))
	got, err := cb.Execute(func() (string, error) { return "quote", nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "quote" {
		t.Errorf("got %q", got)
	}
}
