package provider

import (
	"strings"
	"time"

	"github.com/redeemly/internal/authz"
	"github.com/redeemly/internal/cache"
	"github.com/redeemly/internal/config"
	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/fraud"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/pos/clover"
	"github.com/redeemly/internal/pos/manual"
	"github.com/redeemly/internal/pos/square"
	"github.com/redeemly/internal/pos/toast"
	"github.com/redeemly/internal/queue"
	"github.com/redeemly/internal/repository"
	"github.com/redeemly/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	POSRegistry *pos.Registry

	// Repositories
	OfferRepo         repository.OfferRepository
	CouponRepo        repository.CouponRepository
	AffiliateRepo     repository.AffiliateRepository
	PosConnectionRepo repository.PosConnectionRepository
	RedemptionRepo    repository.RedemptionRepository
	LateSignalRepo    repository.LateSignalRepository
	WebhookEventRepo  repository.WebhookEventRepository
	ReconcileRunRepo  repository.ReconcileRunRepository

	// Services
	AuthzService         *authz.Service
	AuthService          *service.AuthService
	OfferService         *service.OfferService
	POSConnectionService *service.POSConnectionService
	RegistryService      *service.RegistryService
	LateSignalService    *service.LateSignalService
	LedgerService        *service.LedgerService
	RedemptionGateway    *service.RedemptionGateway
	ReconcileService     *service.ReconcileService
	PayoutService        *service.PayoutService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		POSRegistry: NewPOSRegistry(cfg.POS),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

// NewPOSRegistry 按配置注册全部 POS 提供方
func NewPOSRegistry(cfg config.POSConfig) *pos.Registry {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	registry := pos.NewRegistry(pos.GuardOptions{
		Timeout:        timeout,
		MaxConcurrency: int64(cfg.MaxConcurrency),
		RatePerSecond:  cfg.RatePerSecond,
	})

	squareCfg := square.Config{
		ClientID:        cfg.Square.ClientID,
		ClientSecret:    cfg.Square.ClientSecret,
		SignatureKey:    cfg.Square.SignatureKey,
		NotificationURL: cfg.Square.NotificationURL,
		APIBaseURL:      cfg.Square.APIBaseURL,
		OAuthBaseURL:    cfg.Square.OAuthBaseURL,
		Timeout:         timeout,
	}
	cloverCfg := clover.Config{
		ClientID:        cfg.Clover.ClientID,
		ClientSecret:    cfg.Clover.ClientSecret,
		WebhookAuthCode: cfg.Clover.WebhookAuthCode,
		APIBaseURL:      cfg.Clover.APIBaseURL,
		OAuthBaseURL:    cfg.Clover.OAuthBaseURL,
		Timeout:         timeout,
	}
	toastCfg := toast.Config{
		ClientID:      cfg.Toast.ClientID,
		ClientSecret:  cfg.Toast.ClientSecret,
		WebhookSecret: cfg.Toast.WebhookSecret,
		APIBaseURL:    cfg.Toast.APIBaseURL,
		Timeout:       timeout,
	}
	connectClient := pos.NewPlainClient(nil)

	registry.Register(constants.POSProviderSquare, square.NewFactory(squareCfg), square.NewConnector(squareCfg, connectClient))
	registry.Register(constants.POSProviderClover, clover.NewFactory(cloverCfg), clover.NewConnector(cloverCfg, connectClient))
	registry.Register(constants.POSProviderToast, toast.NewFactory(toastCfg), toast.NewConnector(toastCfg, connectClient))
	registry.Register(constants.POSProviderManual, manual.NewFactory(manual.Config{WebhookSecret: cfg.Manual.WebhookSecret}), manual.NewConnector())
	return registry
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OfferRepo = repository.NewOfferRepository(db)
	c.CouponRepo = repository.NewCouponRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.PosConnectionRepo = repository.NewPosConnectionRepository(db)
	c.RedemptionRepo = repository.NewRedemptionRepository(db)
	c.LateSignalRepo = repository.NewLateSignalRepository(db)
	c.WebhookEventRepo = repository.NewWebhookEventRepository(db)
	c.ReconcileRunRepo = repository.NewReconcileRunRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config

	// 凭证密钥缺失时仍可启动，接入 POS 时返回 ErrPOSCredentialKey
	var sealer *pos.Sealer
	if strings.TrimSpace(cfg.POS.CredentialKey) != "" {
		s, err := pos.NewSealer(cfg.POS.CredentialKey)
		if err != nil {
			logger.Errorw("provider_init_credential_sealer_failed", "error", err)
		} else {
			sealer = s
		}
	} else {
		logger.Warnw("provider_credential_key_missing")
	}

	c.AuthService = service.NewAuthService(cfg.Auth)
	c.AuthzService = initAuthz()
	c.OfferService = service.NewOfferService(c.OfferRepo)
	c.POSConnectionService = service.NewPOSConnectionService(c.PosConnectionRepo, c.POSRegistry, sealer, cache.NewMemory(30*time.Minute, 10*time.Minute))

	var clicks service.ClickQueue
	var tasks service.ReconcileQueue
	if c.QueueClient != nil {
		clicks = c.QueueClient
		tasks = c.QueueClient
	}
	c.RegistryService = service.NewRegistryService(c.OfferRepo, c.CouponRepo, c.AffiliateRepo, c.POSConnectionService, clicks, service.RegistryOptions{
		PublicBaseURL: cfg.Registry.PublicBaseURL,
		FallbackURL:   cfg.Registry.FallbackURL,
		CodeLength:    cfg.Registry.CodeLength,
		MaxRetry:      cfg.Registry.MaxRetry,
	})
	c.LateSignalService = service.NewLateSignalService(c.LateSignalRepo, c.RedemptionRepo)
	c.LedgerService = service.NewLedgerService(c.RedemptionRepo, c.LateSignalService, c.POSConnectionService)
	c.RedemptionGateway = service.NewRedemptionGateway(
		c.POSConnectionService,
		c.RegistryService,
		c.LedgerService,
		c.LateSignalService,
		c.WebhookEventRepo,
		c.CouponRepo,
		fraud.Policy{WindowMinutes: cfg.Fraud.WindowMinutes, MaxPerWindow: cfg.Fraud.MaxPerWindow},
	)
	c.ReconcileService = service.NewReconcileService(
		c.ReconcileRunRepo,
		c.RedemptionRepo,
		c.CouponRepo,
		c.LedgerService,
		c.LateSignalService,
		nil,
		tasks,
		service.ReconcileOptions{
			BatchSize: cfg.Reconcile.BatchSize,
			LockTTL:   time.Duration(cfg.Reconcile.LockTTLSeconds) * time.Second,
			Location:  ReconcileLocation(cfg.Reconcile.Timezone),
		},
	)
	c.PayoutService = service.NewPayoutService(c.LedgerService)
}

// initAuthz 看板路由授权；失败时返回 nil，中间件拒绝非 admin 请求
func initAuthz() *authz.Service {
	svc, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		return nil
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_authz_roles_failed", "error", err)
	}
	return svc
}

// ReconcileLocation 解析对账时区，无效时回退 UTC
func ReconcileLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warnw("provider_reconcile_timezone_invalid", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}
