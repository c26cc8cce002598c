package router

import (
	"fmt"
	"strings"

	"github.com/redeemly/internal/cache"
	"github.com/redeemly/internal/config"
	adminhandlers "github.com/redeemly/internal/http/handlers/admin"
	publichandlers "github.com/redeemly/internal/http/handlers/public"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/i18n"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	RegisterValidators()
	r := gin.New()

	// 初始化 Handler（公开入口 / 看板）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "rdm"
	}
	redisClient := cache.Client()
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: cfg.Security.WebhookRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.WebhookRateLimit.MaxRequests,
	}
	claimRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:claim", redisPrefix),
		WindowSeconds: cfg.Security.ClaimRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ClaimRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 公开入口：POS 回调、短链跳转、券页面与二维码
	r.GET("/healthz", publicHandler.Healthz)
	r.POST("/redemption.webhook/:provider",
		RateLimitMiddleware(redisClient, webhookRule, KeyByParamAndIP("provider")),
		publicHandler.RedemptionWebhook,
	)
	r.GET("/a/:token", publicHandler.AffiliateRedirect)
	r.GET("/c/:code", publicHandler.ViewCoupon)
	r.GET("/qr/:kind/:code", publicHandler.QRCode)

	// 看板接口：先验令牌，再按角色策略放行
	dashboard := r.Group("")
	dashboard.Use(DashboardAuthMiddleware(c.AuthService))
	dashboard.Use(DashboardRBACMiddleware(c.AuthzService))
	{
		dashboard.POST("/coupon.claim",
			RateLimitMiddleware(redisClient, claimRule, KeyByIPAndJSONField("infId")),
			adminHandler.ClaimCoupon,
		)
		dashboard.POST("/link.create",
			RateLimitMiddleware(redisClient, claimRule, KeyByIPAndJSONField("infId")),
			adminHandler.CreateLink,
		)
		dashboard.POST("/coupon.apply", adminHandler.ApplyCoupon)

		dashboard.GET("/offer.list", adminHandler.ListOffers)
		dashboard.POST("/offer.create", adminHandler.CreateOffer)
		dashboard.POST("/offer.status", adminHandler.UpdateOfferStatus)

		dashboard.POST("/business.pos.connect", adminHandler.ConnectPOS)
		dashboard.GET("/business.pos.status", adminHandler.POSStatus)
		dashboard.POST("/business.pos.validate", adminHandler.ValidatePOSConnections)

		dashboard.GET("/redemption.list", adminHandler.ListRedemptions)
		dashboard.POST("/redemption.review", adminHandler.ReviewRedemption)
		dashboard.POST("/redemption.refund", adminHandler.RefundRedemption)
		dashboard.POST("/redemption.signal", adminHandler.SubmitSignal)

		dashboard.GET("/payout.summary", adminHandler.PayoutSummary)
		dashboard.GET("/payout.breakdown", adminHandler.PayoutBreakdown)
		dashboard.POST("/payout.mark_paid", adminHandler.MarkPaid)

		dashboard.POST("/reconcile.run", adminHandler.RunReconcile)
		dashboard.GET("/reconcile.status", adminHandler.ReconcileStatus)
	}

	r.NoRoute(func(ctx *gin.Context) {
		response.NotFound(ctx, i18n.T(i18n.ResolveLocale(ctx), "error.not_found"))
	})

	return r
}
