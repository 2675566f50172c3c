package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

func TestNew_Defaults(t *testing.T) {
	cb := New(Config{Name: "analysis"})
	if cb.maxFailures != 3 {
		t.Errorf("maxFailures = %d, want 3", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 2 {
		t.Errorf("halfOpenMax = %d, want 2", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestExecute_ClosedForwardsCalls(t *testing.T) {
	cb := New(Config{Name: "analysis"})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{Name: "analysis", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	err := cb.Execute(func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{Name: "analysis", MaxFailures: 2, ResetTimeout: time.Hour})

	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackend })

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures interleaved with success)", cb.State())
	}
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := New(Config{Name: "analysis", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2})

	_ = cb.Execute(func() error { return errBackend })
	if cb.State() == StateClosed {
		t.Fatal("breaker should have opened")
	}

	time.Sleep(5 * time.Millisecond)

	// Two successful probes close the breaker again.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probes", cb.State())
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{Name: "analysis", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2})

	_ = cb.Execute(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(func() error { return errBackend })
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open after half-open failure", cb.State())
	}
}

func TestReset(t *testing.T) {
	cb := New(Config{Name: "analysis", MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(func() error { return errBackend })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after Reset", cb.State())
	}
}
