package pos

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubAdapter struct {
	provider string
	delay    time.Duration
	panicMsg string
	calls    int
	mu       sync.Mutex
}

func (s *stubAdapter) Provider() string { return s.provider }

func (s *stubAdapter) wait(ctx context.Context) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
}

func (s *stubAdapter) ValidateConnection(ctx context.Context) ValidationResult {
	s.wait(ctx)
	return ValidationResult{Valid: true}
}

func (s *stubAdapter) ApplyCouponDiscount(ctx context.Context, req DiscountRequest) DiscountResult {
	s.wait(ctx)
	return DiscountResult{Success: true, DiscountAmount: ClampDiscount(req.DiscountType, req.DiscountValue, req.OrderTotalCents, req.MaxDiscountCents)}
}

func (s *stubAdapter) CreateRefund(ctx context.Context, req RefundRequest) RefundResult {
	s.wait(ctx)
	return RefundResult{Success: true, RefundID: "rf_1"}
}

func (s *stubAdapter) HandleWebhook(ctx context.Context, req WebhookRequest) WebhookResult {
	s.wait(ctx)
	return Ignored("evt_1", "noop")
}

func TestGuardTimeoutReturnsTimeoutError(t *testing.T) {
	guard := NewGuard("slow", GuardOptions{Timeout: 30 * time.Millisecond})
	adapter := guard.Wrap(&stubAdapter{provider: "slow", delay: time.Second})

	started := time.Now()
	result := adapter.ApplyCouponDiscount(context.Background(), DiscountRequest{})
	if result.Success || result.Error != "timeout" {
		t.Fatalf("expected timeout result, got %+v", result)
	}
	if time.Since(started) > 500*time.Millisecond {
		t.Fatalf("guard did not return promptly")
	}

	hook := adapter.HandleWebhook(context.Background(), WebhookRequest{})
	if hook.Processed || !hook.Transient || hook.Reason != ReasonTimeout {
		t.Fatalf("expected transient webhook timeout, got %+v", hook)
	}
}

func TestGuardRecoversWebhookPanic(t *testing.T) {
	guard := NewGuard("boom", GuardOptions{Timeout: time.Second})
	adapter := guard.Wrap(&stubAdapter{provider: "boom", panicMsg: "nil map"})

	result := adapter.HandleWebhook(context.Background(), WebhookRequest{Body: []byte("{}")})
	if result.Processed || result.Transient {
		t.Fatalf("expected rejected result, got %+v", result)
	}
	if result.Reason != ReasonAdapterPanic {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}

	refund := adapter.CreateRefund(context.Background(), RefundRequest{})
	if refund.Success || !strings.Contains(refund.Error, "panic") {
		t.Fatalf("expected panic error, got %+v", refund)
	}
}

func TestRegistryIsolatesProviders(t *testing.T) {
	registry := NewRegistry(GuardOptions{Timeout: 200 * time.Millisecond, MaxConcurrency: 1})
	slow := &stubAdapter{provider: "slow", delay: time.Second}
	fast := &stubAdapter{provider: "fast"}
	registry.Register("slow", func(Deps) (Adapter, error) { return slow, nil }, nil)
	registry.Register("fast", func(Deps) (Adapter, error) { return fast, nil }, nil)

	slowAdapter, err := registry.Build("slow", Deps{})
	if err != nil {
		t.Fatalf("build slow failed: %v", err)
	}
	fastAdapter, err := registry.Build("FAST", Deps{})
	if err != nil {
		t.Fatalf("build fast failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowAdapter.ValidateConnection(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)

	started := time.Now()
	if res := fastAdapter.ValidateConnection(context.Background()); !res.Valid {
		t.Fatalf("fast provider should succeed while slow is saturated: %+v", res)
	}
	if time.Since(started) > 100*time.Millisecond {
		t.Fatalf("fast provider was blocked by slow provider")
	}
	wg.Wait()

	if _, err := registry.Build("unknown", Deps{}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
	if got := registry.Providers(); len(got) != 2 || got[0] != "fast" {
		t.Fatalf("unexpected providers: %v", got)
	}
}
