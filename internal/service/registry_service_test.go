package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"

	"github.com/shopspring/decimal"
)

func TestCodeIssuerRetriesOnCollision(t *testing.T) {
	issuer := NewCodeIssuer(4, 3)
	code, err := issuer.Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(code) != minCodeLength || !ValidCode(code) {
		t.Fatalf("unexpected code %q", code)
	}
	if strings.ContainsAny(code, "01IO") {
		t.Fatalf("code contains ambiguous characters: %s", code)
	}

	attempts := 0
	_, err = issuer.Issue(func(string) error {
		attempts++
		return errors.New("UNIQUE constraint failed: coupons.code")
	})
	if !errors.Is(err, ErrCodeExhausted) || attempts != 3 {
		t.Fatalf("expected exhaustion after 3 attempts, got attempts=%d err=%v", attempts, err)
	}

	_, err = issuer.Issue(func(string) error { return errors.New("disk full") })
	if err == nil || errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("non-unique errors must surface directly, got %v", err)
	}
}

func TestOfferValidation(t *testing.T) {
	e := setupEngineTest(t)
	_, err := e.offers.Create(CreateOfferInput{
		BusinessID:    1,
		Title:         "too generous",
		SplitPct:      decimal.NewFromInt(120),
		DiscountType:  constants.DiscountTypePercent,
		DiscountValue: decimal.NewFromInt(10),
	})
	if !errors.Is(err, ErrOfferInvalid) {
		t.Fatalf("expected invalid offer, got %v", err)
	}
	offer := e.seedOffer(t, 1, "12.5")
	if _, err := e.offers.UpdateStatus(offer.ID, "archived"); !errors.Is(err, ErrOfferStatusInvalid) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	paused, err := e.offers.UpdateStatus(offer.ID, constants.OfferStatusPaused)
	if err != nil || paused.Status != constants.OfferStatusPaused {
		t.Fatalf("pause offer failed: %+v err=%v", paused, err)
	}
	if _, err := e.registry.ClaimCoupon(offer.ID, 7); !errors.Is(err, ErrOfferInactive) {
		t.Fatalf("paused offer should not issue coupons, got %v", err)
	}
}

func TestIssueCouponAndView(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 2, "10")
	issued, err := e.registry.IssueCoupon(IssueCouponInput{OfferID: offer.ID, InfluencerID: 8, Type: "content_meal"})
	if err != nil {
		t.Fatalf("issue coupon failed: %v", err)
	}
	if issued.Coupon.Type != constants.CouponTypeContentMeal || issued.Coupon.Status != constants.CouponStatusIssued {
		t.Fatalf("unexpected coupon: %+v", issued.Coupon)
	}
	if issued.QRURL != "https://rdm.example/qr/coupon/"+issued.Code {
		t.Fatalf("unexpected qr url: %s", issued.QRURL)
	}
	if _, err := e.registry.IssueCoupon(IssueCouponInput{OfferID: offer.ID, InfluencerID: 8, Type: "gift"}); !errors.Is(err, ErrCouponTypeInvalid) {
		t.Fatalf("expected coupon type error, got %v", err)
	}

	view, err := e.registry.ViewCoupon(issued.Code)
	if err != nil {
		t.Fatalf("view coupon failed: %v", err)
	}
	if !view.Redeemable || view.Coupon.Status != constants.CouponStatusActive || view.Coupon.ActivatedAt == nil {
		t.Fatalf("first view should activate coupon: %+v", view.Coupon)
	}
	if _, err := e.registry.ViewCoupon("NOPE2345"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAffiliateLinkIsIdempotentAndRedirects(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 3, "10")
	first, err := e.registry.IssueAffiliateLink(IssueLinkInput{OfferID: offer.ID, InfluencerID: 9, UTMSource: "tiktok", UTMCampaign: "fall"})
	if err != nil {
		t.Fatalf("issue link failed: %v", err)
	}
	second, err := e.registry.IssueAffiliateLink(IssueLinkInput{OfferID: offer.ID, InfluencerID: 9})
	if err != nil {
		t.Fatalf("reissue link failed: %v", err)
	}
	if !first.Created || second.Created || first.ShortCode != second.ShortCode {
		t.Fatalf("link should be created once: first=%+v second=%+v", first, second)
	}
	if first.ShortURL != "https://rdm.example/a/"+first.ShortCode {
		t.Fatalf("unexpected short url: %s", first.ShortURL)
	}

	target, _, err := e.registry.ResolveRedirect(strings.ToLower(first.ShortCode))
	if err != nil {
		t.Fatalf("resolve redirect failed: %v", err)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse redirect failed: %v", err)
	}
	query := parsed.Query()
	if parsed.Host != "shop.example" || query.Get("utm_source") != "tiktok" || query.Get("utm_campaign") != "fall" || query.Get("ref") != first.ShortCode {
		t.Fatalf("unexpected redirect target: %s", target)
	}
	if query.Has("utm_medium") {
		t.Fatalf("empty utm params should be omitted: %s", target)
	}

	fallback, _, err := e.registry.ResolveRedirect("MISSING9")
	if !errors.Is(err, ErrLinkNotFound) || fallback != "https://rdm.example/404" {
		t.Fatalf("unknown link should fall back: %s err=%v", fallback, err)
	}
}

func TestTrackClickDedupesVisitor(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 4, "10")
	link, err := e.registry.IssueAffiliateLink(IssueLinkInput{OfferID: offer.ID, InfluencerID: 10})
	if err != nil {
		t.Fatalf("issue link failed: %v", err)
	}
	click := ClickInput{ShortCode: link.ShortCode, ClientIP: "203.0.113.5", UserAgent: "Mozilla/5.0", Referrer: "https://tiktok.com"}
	e.registry.TrackClick(click)
	e.registry.TrackClick(click)
	click.ClientIP = "203.0.113.6"
	e.registry.TrackClick(click)

	var clicks []models.AffiliateClick
	if err := e.db.Where("link_id = ?", link.Link.ID).Find(&clicks).Error; err != nil {
		t.Fatalf("load clicks failed: %v", err)
	}
	if len(clicks) != 2 {
		t.Fatalf("expected 2 distinct visitor clicks, got %d", len(clicks))
	}
	if clicks[0].VisitorHash != VisitorHash("203.0.113.5", "Mozilla/5.0") || len(clicks[0].VisitorHash) != 32 {
		t.Fatalf("unexpected visitor hash: %s", clicks[0].VisitorHash)
	}
}

func TestApplyDiscountThroughManualPOS(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 5, "10")
	issued, err := e.registry.ClaimCoupon(offer.ID, 11)
	if err != nil {
		t.Fatalf("claim coupon failed: %v", err)
	}
	input := ApplyDiscountInput{BizID: 5, Code: issued.Code, OrderRef: "ord-1", OrderTotalCents: 3000, Currency: "USD"}
	if _, err := e.registry.ApplyDiscount(context.Background(), input); !errors.Is(err, ErrPOSNotConnected) {
		t.Fatalf("expected pos not connected, got %v", err)
	}
	e.connectManual(t, 5)

	result, err := e.registry.ApplyDiscount(context.Background(), input)
	if err != nil {
		t.Fatalf("apply discount failed: %v", err)
	}
	if !result.Success || result.DiscountAmount != 300 || result.Provider != constants.POSProviderManual {
		t.Fatalf("unexpected discount result: %+v", result)
	}
	var coupon models.Coupon
	e.db.First(&coupon, issued.Coupon.ID)
	if coupon.DiscountCents != 300 || coupon.OrderRef != "ord-1" {
		t.Fatalf("discount result not persisted: %+v", coupon)
	}

	input.BizID = 6
	if _, err := e.registry.ApplyDiscount(context.Background(), input); !errors.Is(err, ErrCouponBusiness) {
		t.Fatalf("expected business mismatch, got %v", err)
	}
}

func TestRefundRecordsSignal(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 6, "10")
	e.connectManual(t, 6)
	issued, _ := e.registry.ClaimCoupon(offer.ID, 12)
	res := e.ingest(t, redemptionPayload("evt-refund", 6, issued.Code, 2000, "10.6.6.6"))

	if _, _, err := e.ledger.Refund(context.Background(), RefundInput{RecordID: res.RecordID, AmountCents: 5000}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("refund above amount should fail, got %v", err)
	}
	record, result, err := e.ledger.Refund(context.Background(), RefundInput{RecordID: res.RecordID, Reason: "customer request"})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !result.Success || record.RefundID == "" || record.RefundID != result.RefundID {
		t.Fatalf("refund id not stored: %+v", record)
	}
	var signal models.LateSignal
	if err := e.db.Where("external_id = ?", "refund:"+result.RefundID).First(&signal).Error; err != nil {
		t.Fatalf("refund signal missing: %v", err)
	}
	if signal.Kind != constants.LateSignalRefund || signal.RecordID == nil || *signal.RecordID != res.RecordID {
		t.Fatalf("unexpected refund signal: %+v", signal)
	}
}
