package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/fraud"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
)

func TestGatewayDuplicatePayloadWritesOneRecord(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 11, "10")
	e.connectManual(t, 11)
	issued, err := e.registry.ClaimCoupon(offer.ID, 501)
	if err != nil {
		t.Fatalf("claim coupon failed: %v", err)
	}

	payload := redemptionPayload("evt-dup-1", 11, issued.Code, 2500, "10.1.1.1")
	first := e.ingest(t, payload)
	if first.Outcome != IngestProcessed || first.RecordID == 0 {
		t.Fatalf("unexpected first outcome: %+v", first)
	}
	if first.Decision == nil || first.Decision.Action != fraud.ActionAllow {
		t.Fatalf("expected allow decision, got %+v", first.Decision)
	}
	second := e.ingest(t, payload)
	if second.Outcome != IngestDuplicate {
		t.Fatalf("expected duplicate, got %+v", second)
	}
	if n := e.countRecords(t); n != 1 {
		t.Fatalf("expected 1 ledger row, got %d", n)
	}

	record, err := e.ledger.Get(first.RecordID)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if record.Status != constants.RedemptionStatusProvisional || record.InfluencerID != 501 || record.AmountCents != 2500 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !record.SplitPct.Equal(offer.SplitPct) {
		t.Fatalf("split pct snapshot mismatch: %s", record.SplitPct)
	}
}

func TestGatewayCouponRedeemsOnlyOnce(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 12, "10")
	e.connectManual(t, 12)
	issued, err := e.registry.ClaimCoupon(offer.ID, 502)
	if err != nil {
		t.Fatalf("claim coupon failed: %v", err)
	}

	first := e.ingest(t, redemptionPayload("evt-a", 12, issued.Code, 1000, "10.2.0.1"))
	second := e.ingest(t, redemptionPayload("evt-b", 12, issued.Code, 1000, "10.2.0.2"))
	if first.Outcome != IngestProcessed {
		t.Fatalf("first redemption should be processed: %+v", first)
	}
	if second.Outcome != IngestRejected || second.Reason != rejectCouponUnavailable {
		t.Fatalf("second redemption should be rejected: %+v", second)
	}
	if n := e.countRecords(t); n != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", n)
	}
	var coupon models.Coupon
	if err := e.db.First(&coupon, issued.Coupon.ID).Error; err != nil {
		t.Fatalf("load coupon failed: %v", err)
	}
	if coupon.Status != constants.CouponStatusRedeemed || coupon.RedeemedAt == nil {
		t.Fatalf("coupon should be redeemed: %+v", coupon)
	}
	var marker models.WebhookEvent
	if err := e.db.Where("external_event_id = ?", "evt-b").First(&marker).Error; err != nil {
		t.Fatalf("load marker failed: %v", err)
	}
	if marker.Outcome != constants.WebhookOutcomeRejected {
		t.Fatalf("rejected event marker outcome = %s", marker.Outcome)
	}
}

func TestGatewayLinkRedemptionAndVelocityBlock(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 13, "20")
	e.connectManual(t, 13)
	link, err := e.registry.IssueAffiliateLink(IssueLinkInput{OfferID: offer.ID, InfluencerID: 503})
	if err != nil {
		t.Fatalf("issue link failed: %v", err)
	}

	for i, id := range []string{"v-1", "v-2", "v-3"} {
		res := e.ingest(t, redemptionPayload(id, 13, "link:"+link.ShortCode, 1200, "10.3.0.9"))
		if res.Outcome != IngestProcessed || res.Decision.Action != fraud.ActionAllow {
			t.Fatalf("redemption %d should be allowed: %+v", i, res)
		}
	}
	fourth := e.ingest(t, redemptionPayload("v-4", 13, link.ShortCode, 1200, "10.3.0.9"))
	if fourth.Decision == nil || fourth.Decision.Action != fraud.ActionBlock {
		t.Fatalf("fourth redemption from same ip should be blocked: %+v", fourth)
	}
	record, _ := e.ledger.Get(fourth.RecordID)
	if record.Status != constants.RedemptionStatusBlocked || record.LinkID == nil {
		t.Fatalf("blocked record state unexpected: %+v", record)
	}
}

func TestGatewayMissingSignalsGoToReview(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 14, "10")
	e.connectManual(t, 14)
	issued, _ := e.registry.ClaimCoupon(offer.ID, 504)

	payload := redemptionPayload("evt-review", 14, issued.Code, 900, "10.4.0.1")
	delete(payload, "card_fingerprint")
	delete(payload, "geo")
	res := e.ingest(t, payload)
	if res.Decision == nil || res.Decision.Action != fraud.ActionReview {
		t.Fatalf("expected review, got %+v", res.Decision)
	}
	if len(res.Decision.Reasons) != 2 || res.Decision.Reasons[0] != fraud.ReasonMissingCardToken || res.Decision.Reasons[1] != fraud.ReasonMissingGeo {
		t.Fatalf("unexpected reasons: %v", res.Decision.Reasons)
	}
}

func TestGatewayRejectsBadSignatureAndUnknownProvider(t *testing.T) {
	e := setupEngineTest(t)
	req := manualWebhook(t, redemptionPayload("evt-sig", 15, "ABCDEFGH", 100, "10.5.0.1"))
	req.Headers["X-Manual-Signature"] = "00"
	res, err := e.gateway.Ingest(context.Background(), constants.POSProviderManual, req)
	if err != nil {
		t.Fatalf("signature failure must not be transient: %v", err)
	}
	if res.Outcome != IngestInvalid || res.Reason != pos.ReasonSignatureInvalid {
		t.Fatalf("unexpected result: %+v", res)
	}
	res, err = e.gateway.Ingest(context.Background(), "lightspeed", req)
	if err != nil || res.Outcome != IngestInvalid {
		t.Fatalf("unknown provider should be invalid: %+v err=%v", res, err)
	}
}

func TestGatewaySynthesizesEventIDWhenMissing(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 16, "10")
	e.connectManual(t, 16)
	issued, _ := e.registry.ClaimCoupon(offer.ID, 506)

	payload := redemptionPayload("", 16, issued.Code, 700, "10.6.0.1")
	req := manualWebhook(t, payload)
	first, err := e.gateway.Ingest(context.Background(), constants.POSProviderManual, req)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !first.Synthetic || len(first.EventID) != len("syn_")+64 {
		t.Fatalf("expected synthetic event id, got %+v", first)
	}
	second, err := e.gateway.Ingest(context.Background(), constants.POSProviderManual, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if second.Outcome != IngestDuplicate || second.EventID != first.EventID {
		t.Fatalf("replayed payload should dedup on synthetic id: %+v", second)
	}
}

func TestGatewayIgnoresNonRedemptionAndUnknownMerchant(t *testing.T) {
	e := setupEngineTest(t)
	res := e.ingest(t, map[string]interface{}{"event_id": "evt-other", "event_type": "menu_updated", "biz_id": 17})
	if res.Outcome != IngestIgnored {
		t.Fatalf("expected ignored, got %+v", res)
	}
	res = e.ingest(t, redemptionPayload("evt-nomerchant", 17, "ABCDEFGH", 100, "10.7.0.1"))
	if res.Outcome != IngestRejected || res.Reason != rejectUnknownMerchant {
		t.Fatalf("expected unknown merchant rejection, got %+v", res)
	}
}

func TestGatewayVelocityCountsMixedOffsets(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 21, "10")
	e.connectManual(t, 21)
	link, err := e.registry.IssueAffiliateLink(IssueLinkInput{OfferID: offer.ID, InfluencerID: 521})
	if err != nil {
		t.Fatalf("issue link failed: %v", err)
	}

	tokyo := time.FixedZone("JST", 9*60*60)
	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"tz-1", "tz-2", "tz-3"} {
		payload := redemptionPayload(id, 21, link.ShortCode, 1500, "10.21.0.1")
		payload["timestamp"] = base.Add(time.Duration(i-10) * time.Minute).In(tokyo).Format(time.RFC3339)
		res := e.ingest(t, payload)
		if res.Outcome != IngestProcessed || res.Decision.Action != fraud.ActionAllow {
			t.Fatalf("redemption %d should be allowed: %+v", i, res)
		}
	}
	payload := redemptionPayload("tz-4", 21, link.ShortCode, 1500, "10.21.0.1")
	payload["timestamp"] = base.Format(time.RFC3339)
	fourth := e.ingest(t, payload)
	if fourth.Decision == nil || fourth.Decision.Action != fraud.ActionBlock {
		t.Fatalf("fourth redemption should be blocked across offsets: %+v", fourth.Decision)
	}

	record, err := e.ledger.Get(fourth.RecordID)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if !record.EventAt.Equal(base) {
		t.Fatalf("event time mismatch: %v", record.EventAt)
	}
}

func TestGatewayRedeemsSweptCouponForEarlierEvent(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 22, "10")
	e.connectManual(t, 22)

	base := time.Now().UTC().Truncate(time.Second)
	deadline := base.Add(time.Minute)
	late, err := e.registry.IssueCoupon(IssueCouponInput{OfferID: offer.ID, InfluencerID: 522, ExpiresAt: &deadline})
	if err != nil {
		t.Fatalf("issue coupon failed: %v", err)
	}
	stale, err := e.registry.IssueCoupon(IssueCouponInput{OfferID: offer.ID, InfluencerID: 522, ExpiresAt: &deadline})
	if err != nil {
		t.Fatalf("issue coupon failed: %v", err)
	}

	e.reconcile.now = func() time.Time { return base.Add(2 * time.Hour) }
	report, err := e.reconcile.Run(context.Background(), "", false)
	if err != nil {
		t.Fatalf("reconcile run failed: %v", err)
	}
	if report.Run.ExpiredCoupons != 2 {
		t.Fatalf("expected 2 expired coupons, got %d", report.Run.ExpiredCoupons)
	}

	payload := redemptionPayload("sweep-late", 22, late.Code, 2000, "10.22.0.1")
	payload["timestamp"] = base.Format(time.RFC3339)
	res := e.ingest(t, payload)
	if res.Outcome != IngestProcessed || res.RecordID == 0 {
		t.Fatalf("redemption before deadline should survive the sweep: %+v", res)
	}
	var coupon models.Coupon
	if err := e.db.First(&coupon, late.Coupon.ID).Error; err != nil {
		t.Fatalf("load coupon failed: %v", err)
	}
	if coupon.Status != constants.CouponStatusRedeemed {
		t.Fatalf("coupon should be redeemed, got %s", coupon.Status)
	}

	payload = redemptionPayload("sweep-after", 22, stale.Code, 2000, "10.22.0.2")
	payload["timestamp"] = deadline.Add(time.Minute).Format(time.RFC3339)
	res = e.ingest(t, payload)
	if res.Outcome != IngestRejected || res.Reason != rejectCouponUnavailable {
		t.Fatalf("redemption after deadline should be rejected: %+v", res)
	}
	if n := e.countRecords(t); n != 1 {
		t.Fatalf("expected 1 ledger row, got %d", n)
	}
}

func TestGatewayConcurrentCouponRedemptionsHaveOneWinner(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 23, "10")
	e.connectManual(t, 23)
	issued, err := e.registry.ClaimCoupon(offer.ID, 523)
	if err != nil {
		t.Fatalf("claim coupon failed: %v", err)
	}

	const workers = 8
	reqs := make([]pos.WebhookRequest, workers)
	for i := range reqs {
		eventID := "race-" + string(rune('a'+i))
		reqs[i] = manualWebhook(t, redemptionPayload(eventID, 23, issued.Code, 1000, "10.23.0.1"))
	}
	results, errs := ingestConcurrently(e, reqs)

	processed := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("ingest %d failed: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case IngestProcessed:
			processed++
		case IngestRejected:
			if results[i].Reason != rejectCouponUnavailable {
				t.Fatalf("unexpected reject reason: %+v", results[i])
			}
		default:
			t.Fatalf("unexpected outcome: %+v", results[i])
		}
	}
	if processed != 1 {
		t.Fatalf("expected exactly one processed redemption, got %d", processed)
	}
	if n := e.countRecords(t); n != 1 {
		t.Fatalf("expected 1 ledger row, got %d", n)
	}
}

func TestGatewayConcurrentDuplicateDeliveriesWriteOneRecord(t *testing.T) {
	e := setupEngineTest(t)
	offer := e.seedOffer(t, 24, "10")
	e.connectManual(t, 24)
	link, err := e.registry.IssueAffiliateLink(IssueLinkInput{OfferID: offer.ID, InfluencerID: 524})
	if err != nil {
		t.Fatalf("issue link failed: %v", err)
	}

	const workers = 8
	req := manualWebhook(t, redemptionPayload("dup-race", 24, link.ShortCode, 1800, "10.24.0.1"))
	reqs := make([]pos.WebhookRequest, workers)
	for i := range reqs {
		reqs[i] = req
	}
	results, errs := ingestConcurrently(e, reqs)

	counts := map[string]int{}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("ingest %d failed: %v", i, errs[i])
		}
		counts[results[i].Outcome]++
	}
	if counts[IngestProcessed] != 1 || counts[IngestDuplicate] != workers-1 {
		t.Fatalf("unexpected outcomes: %v", counts)
	}
	if n := e.countRecords(t); n != 1 {
		t.Fatalf("expected 1 ledger row, got %d", n)
	}
}

func ingestConcurrently(e *testEngine, reqs []pos.WebhookRequest) ([]*IngestResult, []error) {
	results := make([]*IngestResult, len(reqs))
	errs := make([]error, len(reqs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = e.gateway.Ingest(context.Background(), constants.POSProviderManual, reqs[i])
		}(i)
	}
	close(start)
	wg.Wait()
	return results, errs
}
