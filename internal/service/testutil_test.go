package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/fraud"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/pos/manual"
	"github.com/redeemly/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testManualSecret = "manual_test_secret"

type testEngine struct {
	db        *gorm.DB
	offers    *OfferService
	registry  *RegistryService
	posConn   *POSConnectionService
	ledger    *LedgerService
	signals   *LateSignalService
	gateway   *RedemptionGateway
	reconcile *ReconcileService
	payout    *PayoutService
}

func setupEngineTest(t *testing.T) *testEngine {
	t.Helper()
	dsn := fmt.Sprintf("file:engine_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	registry := pos.NewRegistry(pos.GuardOptions{Timeout: 2 * time.Second})
	registry.Register(constants.POSProviderManual, manual.NewFactory(manual.Config{WebhookSecret: testManualSecret}), manual.NewConnector())
	sealer, err := pos.NewSealer("test-credential-key")
	if err != nil {
		t.Fatalf("new sealer failed: %v", err)
	}

	offerRepo := repository.NewOfferRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	recordRepo := repository.NewRedemptionRepository(db)
	signalRepo := repository.NewLateSignalRepository(db)

	posConn := NewPOSConnectionService(repository.NewPosConnectionRepository(db), registry, sealer, nil)
	signals := NewLateSignalService(signalRepo, recordRepo)
	ledger := NewLedgerService(recordRepo, signals, posConn)
	reg := NewRegistryService(offerRepo, couponRepo, affiliateRepo, posConn, nil, RegistryOptions{
		PublicBaseURL: "https://rdm.example",
		FallbackURL:   "https://rdm.example/404",
	})
	reg.goAsync = func(fn func()) { fn() }
	gateway := NewRedemptionGateway(posConn, reg, ledger, signals, repository.NewWebhookEventRepository(db), couponRepo,
		fraud.Policy{WindowMinutes: 60, MaxPerWindow: 3})
	reconcile := NewReconcileService(repository.NewReconcileRunRepository(db), recordRepo, couponRepo, ledger, signals, nil, nil,
		ReconcileOptions{BatchSize: 2})

	return &testEngine{
		db:        db,
		offers:    NewOfferService(offerRepo),
		registry:  reg,
		posConn:   posConn,
		ledger:    ledger,
		signals:   signals,
		gateway:   gateway,
		reconcile: reconcile,
		payout:    NewPayoutService(ledger),
	}
}

func (e *testEngine) seedOffer(t *testing.T, bizID uint, split string) *models.Offer {
	t.Helper()
	offer, err := e.offers.Create(CreateOfferInput{
		BusinessID:    bizID,
		Title:         "Lunch special",
		SplitPct:      decimal.RequireFromString(split),
		DiscountType:  constants.DiscountTypePercent,
		DiscountValue: decimal.NewFromInt(10),
		LandingURL:    "https://shop.example/menu",
	})
	if err != nil {
		t.Fatalf("create offer failed: %v", err)
	}
	return offer
}

func (e *testEngine) connectManual(t *testing.T, bizID uint) {
	t.Helper()
	if _, err := e.posConn.Connect(context.Background(), POSConnectInput{BizID: bizID, Provider: constants.POSProviderManual}); err != nil {
		t.Fatalf("connect manual pos failed: %v", err)
	}
}

func manualWebhook(t *testing.T, payload map[string]interface{}) pos.WebhookRequest {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	sig := hex.EncodeToString(pos.HMACSHA256(testManualSecret, body))
	return pos.WebhookRequest{
		Headers:    map[string]string{"X-Manual-Signature": sig},
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func redemptionPayload(eventID string, bizID uint, ref string, total int64, ip string) map[string]interface{} {
	return map[string]interface{}{
		"event_id":          eventID,
		"biz_id":            bizID,
		"ref":               ref,
		"order_total_cents": total,
		"payment_ref":       "pay_" + eventID,
		"order_ref":         "ord_" + eventID,
		"currency":          "usd",
		"card_fingerprint":  "fp_1",
		"device_hash":       "dev_1",
		"ip":                ip,
		"geo":               map[string]float64{"lat": 40.7, "lng": -74.0},
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}
}

func (e *testEngine) ingest(t *testing.T, payload map[string]interface{}) *IngestResult {
	t.Helper()
	result, err := e.gateway.Ingest(context.Background(), constants.POSProviderManual, manualWebhook(t, payload))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	return result
}

func (e *testEngine) countRecords(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.RedemptionRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count records failed: %v", err)
	}
	return n
}
