package main

import (
	"context"
	"flag"
	"time"

	"github.com/redeemly/internal/config"
	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/provider"
	"github.com/redeemly/internal/service"

	"github.com/shopspring/decimal"
)

// 本地演示数据：一个接入手动 POS 的商家、一个活动、达人优惠券与推广链接，并打印三种角色的看板令牌
func main() {
	var (
		bizID uint
		infID uint
	)
	flag.UintVar(&bizID, "biz", 1, "演示商家 ID")
	flag.UintVar(&infID, "inf", 1, "演示达人 ID")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	c := provider.NewContainer(cfg)
	ctx := context.Background()

	if _, err := c.POSConnectionService.Connect(ctx, service.POSConnectInput{
		BizID:    bizID,
		Provider: constants.POSProviderManual,
	}); err != nil {
		stdLog.Fatalf("Failed to connect manual POS: %v", err)
	}

	maxDiscount := int64(1500)
	offer, err := c.OfferService.Create(service.CreateOfferInput{
		BusinessID:       bizID,
		Title:            "Weekend brunch 10% off",
		SplitPct:         decimal.NewFromInt(15),
		MinSpendCents:    2000,
		DiscountType:     constants.DiscountTypePercent,
		DiscountValue:    decimal.NewFromInt(10),
		MaxDiscountCents: &maxDiscount,
		LandingURL:       "https://example.com/menu",
	})
	if err != nil {
		stdLog.Fatalf("Failed to create offer: %v", err)
	}

	coupon, err := c.RegistryService.ClaimCoupon(offer.ID, infID)
	if err != nil {
		stdLog.Fatalf("Failed to claim coupon: %v", err)
	}
	link, err := c.RegistryService.IssueAffiliateLink(service.IssueLinkInput{
		OfferID:      offer.ID,
		InfluencerID: infID,
		UTMSource:    "instagram",
		UTMCampaign:  "seed",
	})
	if err != nil {
		stdLog.Fatalf("Failed to create affiliate link: %v", err)
	}

	stdLog.Printf("offer_id=%d coupon=%s coupon_url=%s", offer.ID, coupon.Code, coupon.URL)
	stdLog.Printf("link=%s qr=%s", link.ShortURL, link.QRURL)

	if !c.AuthService.Enabled() {
		stdLog.Printf("dashboard auth disabled, tokens skipped")
		return
	}
	for _, claims := range []service.DashboardClaims{
		{Role: service.RoleAdmin},
		{Role: service.RoleBusiness, BusinessID: bizID},
		{Role: service.RoleInfluencer, InfluencerID: infID},
	} {
		token, err := c.AuthService.GenerateToken(claims, 7*24*time.Hour)
		if err != nil {
			stdLog.Fatalf("Failed to sign %s token: %v", claims.Role, err)
		}
		stdLog.Printf("%s token: %s", claims.Role, token)
	}
}
