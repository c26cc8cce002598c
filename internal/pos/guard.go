package pos

import (
	"context"
	"errors"
	"time"

	"github.com/redeemly/internal/logger"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultGuardTimeout     = 8 * time.Second
	defaultGuardConcurrency = 16
)

// GuardOptions 单个 POS 提供方的隔离参数
type GuardOptions struct {
	Timeout        time.Duration
	MaxConcurrency int64
	RatePerSecond  float64
}

// Guard 为某个提供方的所有调用提供超时、并发舱壁与限速
type Guard struct {
	provider string
	timeout  time.Duration
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
}

// NewGuard 创建 Guard
func NewGuard(provider string, opts GuardOptions) *Guard {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultGuardTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultGuardConcurrency
	}
	g := &Guard{
		provider: provider,
		timeout:  opts.Timeout,
		sem:      semaphore.NewWeighted(opts.MaxConcurrency),
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return g
}

type guardOutcome[T any] struct {
	value     T
	recovered *panics.Recovered
}

// guardCall 在隔离环境中执行 fn；超时、排队超时与 panic 都转换为 fail 的返回值
func guardCall[T any](g *Guard, ctx context.Context, op string, fail func(error) T, fn func(context.Context) T) T {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(callCtx, 1); err != nil {
		logger.Warnw("pos_guard_bulkhead_timeout", "provider", g.provider, "op", op)
		return fail(ErrTimeout)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(callCtx); err != nil {
			g.sem.Release(1)
			logger.Warnw("pos_guard_rate_wait_timeout", "provider", g.provider, "op", op)
			return fail(ErrTimeout)
		}
	}

	ch := make(chan guardOutcome[T], 1)
	go func() {
		defer g.sem.Release(1)
		var value T
		recovered := panics.Try(func() {
			value = fn(callCtx)
		})
		ch <- guardOutcome[T]{value: value, recovered: recovered}
	}()

	select {
	case out := <-ch:
		if out.recovered != nil {
			logger.Errorw("pos_guard_adapter_panic",
				"provider", g.provider,
				"op", op,
				"panic", out.recovered.Value,
			)
			return fail(ErrAdapterPanic)
		}
		return out.value
	case <-callCtx.Done():
		logger.Warnw("pos_guard_call_timeout", "provider", g.provider, "op", op, "timeout", g.timeout.String())
		return fail(ErrTimeout)
	}
}

type guardedAdapter struct {
	inner Adapter
	guard *Guard
}

// Wrap 用 Guard 包装适配器
func (g *Guard) Wrap(inner Adapter) Adapter {
	if inner == nil {
		return nil
	}
	if _, ok := inner.(*guardedAdapter); ok {
		return inner
	}
	return &guardedAdapter{inner: inner, guard: g}
}

func (a *guardedAdapter) Provider() string {
	return a.inner.Provider()
}

func (a *guardedAdapter) ValidateConnection(ctx context.Context) ValidationResult {
	return guardCall(a.guard, ctx, "validate_connection", FailValidation, a.inner.ValidateConnection)
}

func (a *guardedAdapter) ApplyCouponDiscount(ctx context.Context, req DiscountRequest) DiscountResult {
	return guardCall(a.guard, ctx, "apply_coupon_discount", FailDiscount, func(c context.Context) DiscountResult {
		return a.inner.ApplyCouponDiscount(c, req)
	})
}

func (a *guardedAdapter) CreateRefund(ctx context.Context, req RefundRequest) RefundResult {
	return guardCall(a.guard, ctx, "create_refund", FailRefund, func(c context.Context) RefundResult {
		return a.inner.CreateRefund(c, req)
	})
}

func (a *guardedAdapter) HandleWebhook(ctx context.Context, req WebhookRequest) WebhookResult {
	return guardCall(a.guard, ctx, "handle_webhook", failWebhook, func(c context.Context) WebhookResult {
		return a.inner.HandleWebhook(c, req)
	})
}

func failWebhook(err error) WebhookResult {
	if errors.Is(err, ErrTimeout) {
		return WebhookResult{Processed: false, Transient: true, Reason: ReasonTimeout}
	}
	if errors.Is(err, ErrAdapterPanic) {
		return Rejected(ReasonAdapterPanic)
	}
	return Rejected(ReasonPayloadInvalid)
}
