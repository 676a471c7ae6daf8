package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewCircuitBreakerRegistry(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
	}

	registry := NewCircuitBreakerRegistry(config)

	if registry == nil {
		t.Fatal("expected registry to be created")
	}
	if registry.breakers == nil {
		t.Error("expected breakers map to be initialized")
	}
	if registry.config != config {
		t.Error("expected config to be set")
	}
}

func TestCircuitBreakerRegistry_GetBreaker(t *testing.T) {
	registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)

	// First call should create a new breaker
	breaker1 := registry.GetBreaker(BreakerExtractor)
	if breaker1 == nil {
		t.Fatal("expected breaker to be created")
	}

	// Second call should return the same breaker
	breaker2 := registry.GetBreaker(BreakerExtractor)
	if breaker1 != breaker2 {
		t.Error("expected same breaker instance")
	}

	// Different name should create different breaker
	breaker3 := registry.GetBreaker("other-service")
	if breaker1 == breaker3 {
		t.Error("expected different breaker for different service")
	}
}

func TestCircuitBreakerRegistry_GetBreaker_Concurrent(t *testing.T) {
	registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)

	const goroutines = 32
	var wg sync.WaitGroup
	breakers := make(chan any, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			breakers <- registry.GetBreaker(BreakerExtractor)
		}()
	}
	wg.Wait()
	close(breakers)

	var first any
	for b := range breakers {
		if first == nil {
			first = b
		} else if b != first {
			t.Fatal("concurrent GetBreaker returned different instances")
		}
	}
}

func TestCircuitBreakerRegistry_Execute(t *testing.T) {
	t.Run("successful call passes through", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)

		result, err := registry.Execute(context.Background(), BreakerExtractor, func() (any, error) {
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result != "ok" {
			t.Errorf("expected ok, got %v", result)
		}
	})

	t.Run("error propagates", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)
		wantErr := errors.New("upstream error")

		_, err := registry.Execute(context.Background(), BreakerExtractor, func() (any, error) {
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	})

	t.Run("cancelled context short-circuits", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		_, err := registry.Execute(ctx, BreakerExtractor, func() (any, error) {
			called = true
			return nil, nil
		})
		if err == nil {
			t.Fatal("expected context error")
		}
		if called {
			t.Error("function should not run with a cancelled context")
		}
	})

	t.Run("trips after repeated failures", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)
		upstream := errors.New("down")

		// ReadyToTrip requires at least 5 requests with >=50% failures
		for i := 0; i < 6; i++ {
			registry.Execute(context.Background(), BreakerExtractor, func() (any, error) {
				return nil, upstream
			})
		}

		_, err := registry.Execute(context.Background(), BreakerExtractor, func() (any, error) {
			t.Error("open breaker must not call through")
			return nil, nil
		})
		if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
			t.Fatalf("expected open-breaker error, got %v", err)
		}
	})
}

func TestCircuitBreakerRegistry_Status(t *testing.T) {
	registry := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)

	registry.Execute(context.Background(), BreakerExtractor, func() (any, error) {
		return nil, nil
	})
	registry.Execute(context.Background(), BreakerExtractor, func() (any, error) {
		return nil, errors.New("fail")
	})

	status := registry.Status()
	st, ok := status[BreakerExtractor]
	if !ok {
		t.Fatal("expected extractor breaker in status")
	}
	if st.State != "closed" {
		t.Errorf("expected closed, got %q", st.State)
	}
	if st.Requests != 2 {
		t.Errorf("expected 2 requests, got %d", st.Requests)
	}
	if st.TotalFailures != 1 {
		t.Errorf("expected 1 failure, got %d", st.TotalFailures)
	}
}

func TestWithCircuitBreaker(t *testing.T) {
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))
	defer SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	t.Run("typed result round trip", func(t *testing.T) {
		got, err := WithCircuitBreaker(context.Background(), "typed-test", func() (int, error) {
			return 42, nil
		})
		if err != nil {
			t.Fatalf("WithCircuitBreaker failed: %v", err)
		}
		if got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	})

	t.Run("zero value on error", func(t *testing.T) {
		got, err := WithCircuitBreaker(context.Background(), "typed-test", func() (string, error) {
			return "partial", errors.New("fail")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if got != "" {
			t.Errorf("expected zero value, got %q", got)
		}
	})
}
