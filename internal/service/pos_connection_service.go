package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redeemly/internal/cache"
	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/repository"

	"github.com/sourcegraph/conc/pool"
)

const bulkValidateConcurrency = 8

// POSConnectionService 商家 POS 接入、凭据托管与适配器构造
type POSConnectionService struct {
	repo     repository.PosConnectionRepository
	registry *pos.Registry
	sealer   *pos.Sealer
	adapters *cache.Memory
	now      func() time.Time
}

// NewPOSConnectionService 创建 POS 连接服务
func NewPOSConnectionService(repo repository.PosConnectionRepository, registry *pos.Registry, sealer *pos.Sealer, adapters *cache.Memory) *POSConnectionService {
	if adapters == nil {
		adapters = cache.NewMemory(0, 0)
	}
	return &POSConnectionService{
		repo:     repo,
		registry: registry,
		sealer:   sealer,
		adapters: adapters,
		now:      utcNow,
	}
}

// POSConnectInput 接入请求
type POSConnectInput struct {
	BizID       uint
	Provider    string
	Code        string
	RedirectURL string
	Credentials map[string]string
}

// POSConnectResult 接入结果
type POSConnectResult struct {
	Connection *models.PosConnection `json:"connection"`
	Validation pos.ValidationResult  `json:"validation"`
}

// POSValidationSummary 批量校验汇总
type POSValidationSummary struct {
	Checked int `json:"checked"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// Supports 是否支持提供方
func (s *POSConnectionService) Supports(provider string) bool {
	return s.registry != nil && s.registry.Supports(provider)
}

// Providers 已注册的提供方
func (s *POSConnectionService) Providers() []string {
	if s.registry == nil {
		return nil
	}
	return s.registry.Providers()
}

// Connect 完成授权、校验连接并加密保存凭据
func (s *POSConnectionService) Connect(ctx context.Context, input POSConnectInput) (*POSConnectResult, error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	if input.BizID == 0 {
		return nil, ErrInvalidInput
	}
	if !s.Supports(provider) {
		return nil, ErrProviderUnsupported
	}
	if s.sealer == nil {
		return nil, ErrPOSCredentialKey
	}
	log := logger.SW("component", "pos_connection", "provider", provider, "biz_id", input.BizID)

	creds, err := s.registry.Connect(ctx, provider, pos.ConnectRequest{
		BizID:       input.BizID,
		Code:        strings.TrimSpace(input.Code),
		RedirectURL: strings.TrimSpace(input.RedirectURL),
		Credentials: input.Credentials,
	})
	if err != nil {
		log.Warnw("pos_connect_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPOSConnectFailed, err)
	}
	if creds == nil || strings.TrimSpace(creds.MerchantRef) == "" {
		return nil, fmt.Errorf("%w: merchant reference missing", ErrPOSConnectFailed)
	}

	adapter, err := s.registry.Build(provider, s.deps(input.BizID, creds))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPOSConnectFailed, err)
	}
	validation := adapter.ValidateConnection(ctx)
	status := constants.POSStatusConnected
	if !validation.Valid {
		status = constants.POSStatusInvalid
	}
	sealed, err := s.sealer.Seal(*creds)
	if err != nil {
		return nil, err
	}
	now := s.now()
	conn := &models.PosConnection{
		BusinessID:      input.BizID,
		Provider:        provider,
		MerchantRef:     strings.TrimSpace(creds.MerchantRef),
		SealedSecret:    sealed,
		Status:          status,
		LastValidatedAt: &now,
		LastError:       validation.Error,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(conn); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: merchant already linked to another business", ErrPOSConnectFailed)
		}
		return nil, err
	}
	s.adapters.Delete(businessAdapterKey(input.BizID))

	saved, err := s.repo.GetByBusinessID(input.BizID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		saved = conn
	}
	log.Infow("pos_connected", "merchant_ref", saved.MerchantRef, "status", saved.Status)
	return &POSConnectResult{Connection: saved, Validation: validation}, nil
}

// Status 查询商家 POS 连接
func (s *POSConnectionService) Status(bizID uint) (*models.PosConnection, error) {
	conn, err := s.repo.GetByBusinessID(bizID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrPOSNotConnected
	}
	return conn, nil
}

// AdapterForBusiness 返回商家已授权的适配器，进程内缓存
func (s *POSConnectionService) AdapterForBusiness(ctx context.Context, bizID uint) (pos.Adapter, *models.PosConnection, error) {
	conn, err := s.repo.GetByBusinessID(bizID)
	if err != nil {
		return nil, nil, err
	}
	if conn == nil || conn.Status == constants.POSStatusDisconnected {
		return nil, nil, ErrPOSNotConnected
	}
	key := businessAdapterKey(bizID)
	if cached, ok := s.adapters.Get(key); ok {
		if adapter, ok := cached.(pos.Adapter); ok {
			return adapter, conn, nil
		}
	}
	creds, err := s.openCredentials(conn)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := s.registry.Build(conn.Provider, s.deps(bizID, creds))
	if err != nil {
		return nil, nil, err
	}
	s.adapters.Set(key, adapter)
	return adapter, conn, nil
}

// WebhookAdapter 返回处理 webhook 的适配器，无商户凭据，通过 resolver 回查
func (s *POSConnectionService) WebhookAdapter(provider string) (pos.Adapter, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !s.Supports(provider) {
		return nil, ErrProviderUnsupported
	}
	key := "webhook:" + provider
	if cached, ok := s.adapters.Get(key); ok {
		if adapter, ok := cached.(pos.Adapter); ok {
			return adapter, nil
		}
	}
	adapter, err := s.registry.Build(provider, pos.Deps{Resolver: s})
	if err != nil {
		return nil, err
	}
	s.adapters.Set(key, adapter)
	return adapter, nil
}

// ResolveBusiness 按商户号定位商家
func (s *POSConnectionService) ResolveBusiness(provider, merchantRef string) (*models.PosConnection, error) {
	merchantRef = strings.TrimSpace(merchantRef)
	if merchantRef == "" {
		return nil, nil
	}
	return s.repo.GetByMerchant(strings.ToLower(strings.TrimSpace(provider)), merchantRef)
}

// ResolveCredentials 实现 pos.CredentialResolver
func (s *POSConnectionService) ResolveCredentials(ctx context.Context, provider, merchantRef string) (*pos.Credentials, error) {
	conn, err := s.ResolveBusiness(provider, merchantRef)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.Status == constants.POSStatusDisconnected {
		return nil, ErrPOSNotConnected
	}
	return s.openCredentials(conn)
}

// ValidateAll 并发校验所有未断开的连接并回写状态
func (s *POSConnectionService) ValidateAll(ctx context.Context) (POSValidationSummary, error) {
	conns, err := s.repo.ListByStatus([]string{constants.POSStatusConnected, constants.POSStatusInvalid})
	if err != nil {
		return POSValidationSummary{}, err
	}
	p := pool.NewWithResults[bool]().WithMaxGoroutines(bulkValidateConcurrency)
	for i := range conns {
		conn := conns[i]
		p.Go(func() bool {
			return s.revalidate(ctx, &conn)
		})
	}
	summary := POSValidationSummary{Checked: len(conns)}
	for _, ok := range p.Wait() {
		if ok {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}
	logger.SW("component", "pos_connection").Infow("pos_bulk_validate_done",
		"checked", summary.Checked, "valid", summary.Valid, "invalid", summary.Invalid)
	return summary, nil
}

func (s *POSConnectionService) revalidate(ctx context.Context, conn *models.PosConnection) bool {
	log := logger.SW("component", "pos_connection", "biz_id", conn.BusinessID, "provider", conn.Provider)
	result := pos.ValidationResult{}
	adapter, _, err := s.AdapterForBusiness(ctx, conn.BusinessID)
	if err != nil {
		result = pos.FailValidation(err)
	} else {
		result = adapter.ValidateConnection(ctx)
	}
	status := constants.POSStatusConnected
	if !result.Valid {
		status = constants.POSStatusInvalid
	}
	if err := s.repo.UpdateStatus(conn.ID, status, result.Error, s.now()); err != nil {
		log.Errorw("pos_status_update_failed", "error", err)
	}
	if !result.Valid {
		log.Warnw("pos_validate_failed", "error", result.Error)
	}
	return result.Valid
}

func (s *POSConnectionService) deps(bizID uint, creds *pos.Credentials) pos.Deps {
	return pos.Deps{
		Credentials: creds,
		Resolver:    s,
		OnTokenRefresh: func(ctx context.Context, refreshed pos.Credentials) {
			s.persistRefreshedToken(ctx, bizID, refreshed)
		},
	}
}

func (s *POSConnectionService) persistRefreshedToken(_ context.Context, bizID uint, creds pos.Credentials) {
	log := logger.SW("component", "pos_connection", "biz_id", bizID)
	if s.sealer == nil {
		return
	}
	conn, err := s.repo.GetByBusinessID(bizID)
	if err != nil || conn == nil {
		log.Warnw("pos_token_refresh_connection_missing", "error", err)
		return
	}
	sealed, err := s.sealer.Seal(creds)
	if err != nil {
		log.Errorw("pos_token_refresh_seal_failed", "error", err)
		return
	}
	if err := s.repo.UpdateSecret(conn.ID, sealed, s.now()); err != nil {
		log.Errorw("pos_token_refresh_persist_failed", "error", err)
		return
	}
	log.Infow("pos_token_refreshed", "expiry", creds.Expiry)
}

func (s *POSConnectionService) openCredentials(conn *models.PosConnection) (*pos.Credentials, error) {
	if s.sealer == nil {
		return nil, ErrPOSCredentialKey
	}
	creds, err := s.sealer.Open(conn.SealedSecret)
	if err != nil {
		if errors.Is(err, pos.ErrCredentialSeal) {
			return nil, fmt.Errorf("%w: %v", ErrPOSNotConnected, err)
		}
		return nil, err
	}
	if strings.TrimSpace(creds.MerchantRef) == "" {
		creds.MerchantRef = conn.MerchantRef
	}
	return creds, nil
}

func businessAdapterKey(bizID uint) string {
	return fmt.Sprintf("biz:%d", bizID)
}
