package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("hyperbolic", cfg)
	cb.now = clock.Now
	return cb, clock
}

var testBreakerConfig = CircuitBreakerConfig{
	FailureThreshold:    3,
	SuccessThreshold:    2,
	Timeout:             time.Minute,
	HalfOpenMaxRequests: 2,
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(testBreakerConfig)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed; a success resets the count", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("open circuit should reject calls")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(testBreakerConfig)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	clock.Advance(59 * time.Second)
	if cb.Allow() {
		t.Fatal("circuit should stay open before the timeout")
	}

	clock.Advance(time.Second)
	if !cb.Allow() {
		t.Fatal("first call after the timeout should probe")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}
	if !cb.Allow() {
		t.Error("second probe should be admitted")
	}
	if cb.Allow() {
		t.Error("third probe should be rejected")
	}

	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after one success", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(testBreakerConfig)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(time.Minute)
	cb.Allow()
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}
	clock.Advance(30 * time.Second)
	if cb.Allow() {
		t.Error("reopened circuit should restart its cool-down")
	}
}

func TestCircuitBreaker_Guard(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})
	transient := errors.New("503")
	rejected := errors.New("400")
	isTransient := func(err error) bool { return err == transient }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Guard(ctx, isTransient, func(context.Context) error { return rejected }); err != rejected {
			t.Fatalf("Guard() error = %v, want rejected", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v; errors the filter ignores must not open the circuit", cb.State())
	}

	for i := 0; i < 2; i++ {
		_ = cb.Guard(ctx, isTransient, func(context.Context) error { return transient })
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Guard(ctx, nil, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Guard() error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("Guard must not call fn while open")
	}
}

func TestCircuitBreaker_ResetAndNotify(t *testing.T) {
	cb, _ := newTestBreaker(testBreakerConfig)

	transitions := make(chan [2]CircuitState, 4)
	cb.OnStateChange(func(name string, from, to CircuitState) {
		if name != "hyperbolic" {
			t.Errorf("callback name = %q", name)
		}
		transitions <- [2]CircuitState{from, to}
	})

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}

	want := [][2]CircuitState{{StateClosed, StateOpen}, {StateOpen, StateClosed}}
	got := map[[2]CircuitState]bool{}
	for range want {
		select {
		case tr := <-transitions:
			got[tr] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for state change callbacks")
		}
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing transition %v -> %v", w[0], w[1])
		}
	}
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("openai", DefaultCircuitBreakerConfig())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if cb.Allow() {
				if i%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure()
				}
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()
	if cb.Name() != "openai" {
		t.Errorf("Name() = %q", cb.Name())
	}
}
