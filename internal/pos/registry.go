package pos

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// CredentialResolver 按商户号查找已授权凭据（用于 webhook 触发的回查）
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, provider, merchantRef string) (*Credentials, error)
}

// Deps 构造适配器实例所需的依赖
type Deps struct {
	Credentials    *Credentials
	Resolver       CredentialResolver
	OnTokenRefresh func(ctx context.Context, creds Credentials)
	HTTPClient     *http.Client
}

// ConnectRequest 商户接入请求
type ConnectRequest struct {
	BizID       uint
	Code        string
	RedirectURL string
	Credentials map[string]string
}

// Factory 构造适配器
type Factory func(deps Deps) (Adapter, error)

// Connector 完成授权并返回凭据
type Connector func(ctx context.Context, req ConnectRequest) (*Credentials, error)

type connectOutcome struct {
	creds *Credentials
	err   error
}

// Registry 提供方到工厂的显式映射，每个提供方共用一个 Guard
type Registry struct {
	mu         sync.RWMutex
	opts       GuardOptions
	factories  map[string]Factory
	connectors map[string]Connector
	guards     map[string]*Guard
}

// NewRegistry 创建注册表
func NewRegistry(opts GuardOptions) *Registry {
	return &Registry{
		opts:       opts,
		factories:  make(map[string]Factory),
		connectors: make(map[string]Connector),
		guards:     make(map[string]*Guard),
	}
}

// Register 注册提供方
func (r *Registry) Register(provider string, factory Factory, connector Connector) {
	provider = normalizeProvider(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
	if connector != nil {
		r.connectors[provider] = connector
	}
	if _, ok := r.guards[provider]; !ok {
		r.guards[provider] = NewGuard(provider, r.opts)
	}
}

// Supports 是否支持该提供方
func (r *Registry) Supports(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalizeProvider(provider)]
	return ok
}

// Providers 已注册的提供方列表
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := lo.Keys(r.factories)
	sort.Strings(keys)
	return keys
}

// Build 构造带 Guard 的适配器
func (r *Registry) Build(provider string, deps Deps) (Adapter, error) {
	provider = normalizeProvider(provider)
	r.mu.RLock()
	factory, ok := r.factories[provider]
	guard := r.guards[provider]
	r.mu.RUnlock()
	if !ok || factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	adapter, err := factory(deps)
	if err != nil {
		return nil, err
	}
	return guard.Wrap(adapter), nil
}

// Connect 执行授权，受同一 Guard 的超时约束
func (r *Registry) Connect(ctx context.Context, provider string, req ConnectRequest) (*Credentials, error) {
	provider = normalizeProvider(provider)
	r.mu.RLock()
	connector, ok := r.connectors[provider]
	guard := r.guards[provider]
	r.mu.RUnlock()
	if !ok || connector == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	out := guardCall(guard, ctx, "connect", func(err error) connectOutcome {
		return connectOutcome{err: err}
	}, func(c context.Context) connectOutcome {
		creds, err := connector(c, req)
		return connectOutcome{creds: creds, err: err}
	})
	return out.creds, out.err
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
