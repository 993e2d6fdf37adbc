package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errFail = errors.New("fail")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(max, reset)
	cb.now = clk.now
	return cb, clk
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("expected rejection without calling fn, got err=%v called=%v", err, called)
	}
	if cb.Trips() != 1 {
		t.Errorf("trips = %d, want 1", cb.Trips())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(999 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("still inside reset window, got %v", err)
	}

	clk.advance(time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(2 * time.Second)
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open after failed probe, got %v", cb.CurrentState())
	}
	// the reset window restarts from the failed probe
	clk.advance(500 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	var transitions []State
	cb.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestPublisher_BuffersWhileOpenAndFlushesOnClose(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	p := newPublisher(context.Background(), cb, 2)

	var mu sync.Mutex
	var sent []message
	fail := true
	flushed := make(chan int, 1)
	p.OnFlush = func(n int) { flushed <- n }
	p.send = func(_ context.Context, msgs []message) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errFail
		}
		sent = append(sent, msgs...)
		return nil
	}

	ctx := context.Background()
	if err := p.Publish(ctx, "status", []byte("a")); err != errFail {
		t.Fatalf("first publish should surface the error, got %v", err)
	}
	// breaker is open now: updates are buffered, oldest dropped past 2
	for _, d := range []string{"b", "c", "d"} {
		if err := p.Publish(ctx, "status", []byte(d)); err != nil {
			t.Fatalf("buffered publish returned %v", err)
		}
	}
	if n := p.PendingCount(); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}

	mu.Lock()
	fail = false
	mu.Unlock()
	clk.advance(2 * time.Second)
	if err := p.Publish(ctx, "trade", []byte("e")); err != nil {
		t.Fatalf("probe publish: %v", err)
	}

	select {
	case n := <-flushed:
		if n != 2 {
			t.Errorf("flushed %d, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buffer was not flushed after the circuit closed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 3 || string(sent[0].Data) != "e" || string(sent[1].Data) != "c" || string(sent[2].Data) != "d" {
		t.Errorf("sent = %+v", sent)
	}
}
