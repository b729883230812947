package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errRemote = errors.New("remote down")

func testConfig(listener Listener) Config {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	cfg.OnStateChange = listener
	return cfg
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	cb, err := New(testConfig(func(_ string, to State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	}), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fail := func() (any, error) { return nil, errRemote }
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(context.Background(), fail); !errors.Is(err, errRemote) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	if _, err := cb.Execute(context.Background(), fail); !IsOpen(err) {
		t.Errorf("expected open-state error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StateClosed || seen[1] != StateOpen {
		t.Errorf("listener saw %v", seen)
	}
}

func TestCancelledCallsDoNotTrip(t *testing.T) {
	cb, err := New(testConfig(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(context.Background(), func() (any, error) { return nil, context.Canceled })
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestDo(t *testing.T) {
	cb, err := New(testConfig(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := Do(context.Background(), cb, func() (int, error) { return 42, nil })
	if err != nil || n != 42 {
		t.Errorf("Do = %d, %v", n, err)
	}
	n, err = Do(context.Background(), cb, func() (int, error) { return 0, errRemote })
	if !errors.Is(err, errRemote) || n != 0 {
		t.Errorf("Do = %d, %v", n, err)
	}
}

func TestStateLevel(t *testing.T) {
	tests := []struct {
		state State
		want  int
	}{
		{StateClosed, 0},
		{StateHalfOpen, 1},
		{StateOpen, 2},
	}
	for _, tt := range tests {
		if got := tt.state.Level(); got != tt.want {
			t.Errorf("%s.Level() = %d, want %d", tt.state, got, tt.want)
		}
	}
}

func TestManager(t *testing.T) {
	var calls int
	m := NewManager(func(string, State) { calls++ }, nil)

	a, err := m.GetOrCreate("pubmed", DefaultConfig(""))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, _ := m.GetOrCreate("pubmed", DefaultConfig(""))
	if a != b {
		t.Error("expected the same breaker for the same name")
	}
	if a.Name() != "pubmed" {
		t.Errorf("name = %q", a.Name())
	}
	_, _ = m.GetOrCreate("bedrock", DefaultConfig(""))

	health := m.Health()
	if len(health) != 2 || health[0].Name != "bedrock" || !health[0].Healthy {
		t.Errorf("health = %+v", health)
	}
	if calls != 2 {
		t.Errorf("listener called %d times, want 2", calls)
	}
}
