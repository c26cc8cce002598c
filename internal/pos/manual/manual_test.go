package manual

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/pos"

	"github.com/shopspring/decimal"
)

func sign(secret string, body []byte) map[string]string {
	return map[string]string{"X-Manual-Signature": hex.EncodeToString(pos.HMACSHA256(secret, body))}
}

func TestHandleWebhookRedemption(t *testing.T) {
	adapter := New(Config{WebhookSecret: "manual_secret"})
	body := []byte(`{"event_id":"m-1","biz_id":7,"ref":"ABCD2345","order_total_cents":1800,"ip":"10.0.0.1","card_fingerprint":"fp","device_hash":"dh","geo":{"lat":1.5,"lng":2.5},"timestamp":"2026-03-01T12:00:00Z"}`)
	result := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{Headers: sign("manual_secret", body), Body: body})
	if !result.Processed || result.Kind != pos.KindRedemption {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Event.BizID != 7 || result.Event.MerchantRef != "biz-7" || result.Event.Geo == nil {
		t.Fatalf("unexpected event: %+v", result.Event)
	}
}

func TestHandleWebhookSignal(t *testing.T) {
	adapter := New(Config{WebhookSecret: "manual_secret"})
	body := []byte(`{"event_id":"m-2","event_type":"chargeback","biz_id":7,"payment_ref":"p-1"}`)
	result := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{Headers: sign("manual_secret", body), Body: body})
	if result.Kind != pos.KindLateSignal || result.Signal.Kind != constants.LateSignalChargeback || result.Signal.ExternalID != "m-2" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHandleWebhookRejectsUnsignedAndMalformed(t *testing.T) {
	adapter := New(Config{WebhookSecret: "manual_secret"})
	body := []byte(`{"event_id":"m-1","biz_id":7,"ref":"ABCD2345"}`)
	if res := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{Body: body}); res.Processed {
		t.Fatalf("unsigned payload must be rejected")
	}
	bad := []byte(`{"event_id":`)
	res := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{Headers: sign("manual_secret", bad), Body: bad})
	if res.Processed || res.Reason != pos.ReasonPayloadInvalid {
		t.Fatalf("expected payload rejection, got %+v", res)
	}
}

func TestApplyCouponDiscountAlwaysSucceeds(t *testing.T) {
	adapter := New(Config{})
	maxCents := int64(250)
	result := adapter.ApplyCouponDiscount(context.Background(), pos.DiscountRequest{
		DiscountType:     pos.DiscountPercent,
		DiscountValue:    decimal.NewFromInt(20),
		OrderTotalCents:  2000,
		MaxDiscountCents: &maxCents,
	})
	if !result.Success || result.DiscountAmount != 250 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
