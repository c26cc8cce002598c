package square

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/pos"

	"github.com/shopspring/decimal"
)

func testConfig() Config {
	return Config{
		SignatureKey:    "sq_sig_key",
		NotificationURL: "https://api.example.com/redemption.webhook/square",
	}
}

func signedRequest(cfg Config, payload map[string]interface{}) pos.WebhookRequest {
	body, _ := json.Marshal(payload)
	sig := base64.StdEncoding.EncodeToString(pos.HMACSHA256(cfg.SignatureKey, []byte(cfg.NotificationURL), body))
	return pos.WebhookRequest{
		Headers:    map[string]string{"X-Square-HmacSha256-Signature": sig},
		Body:       body,
		ReceivedAt: time.Unix(1760000000, 0),
	}
}

func paymentPayload(status string) map[string]interface{} {
	return map[string]interface{}{
		"merchant_id": "MLX1",
		"type":        "payment.updated",
		"event_id":    "evt_sq_1",
		"created_at":  "2026-03-01T10:00:00Z",
		"data": map[string]interface{}{
			"type": "payment",
			"id":   "pay_1",
			"object": map[string]interface{}{
				"payment": map[string]interface{}{
					"id":           "pay_1",
					"status":       status,
					"order_id":     "ord_1",
					"reference_id": "coupon: abcd2345",
					"amount_money": map[string]interface{}{"amount": 2599, "currency": "USD"},
					"card_details": map[string]interface{}{
						"card": map[string]interface{}{"fingerprint": "fp_1"},
					},
					"device_details": map[string]interface{}{"device_id": "dev_1"},
					"updated_at":     "2026-03-01T10:00:01Z",
				},
			},
		},
	}
}

func TestParseWebhookCompletedPayment(t *testing.T) {
	cfg := testConfig()
	result := ParseWebhook(cfg, signedRequest(cfg, paymentPayload("COMPLETED")))
	if !result.Processed || result.Kind != pos.KindRedemption {
		t.Fatalf("unexpected result: %+v", result)
	}
	event := result.Event
	if event.ExternalEventID != "evt_sq_1" || event.MerchantRef != "MLX1" {
		t.Fatalf("unexpected event identity: %+v", event)
	}
	if event.CouponOrLinkRef != "ABCD2345" {
		t.Fatalf("unexpected ref: %s", event.CouponOrLinkRef)
	}
	if event.OrderTotalCents != 2599 || event.CardFingerprint != "fp_1" || event.DeviceHash != "dev_1" {
		t.Fatalf("unexpected event fields: %+v", event)
	}
	if event.ProviderID != constants.POSProviderSquare {
		t.Fatalf("unexpected provider: %s", event.ProviderID)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	req := signedRequest(cfg, paymentPayload("COMPLETED"))
	req.Headers["X-Square-HmacSha256-Signature"] = base64.StdEncoding.EncodeToString([]byte("forged"))
	result := ParseWebhook(cfg, req)
	if result.Processed || result.Reason != pos.ReasonSignatureInvalid {
		t.Fatalf("expected signature rejection, got %+v", result)
	}

	other := cfg
	other.NotificationURL = "https://other.example.com/hook"
	if res := ParseWebhook(other, signedRequest(cfg, paymentPayload("COMPLETED"))); res.Processed {
		t.Fatalf("signature must bind notification url")
	}
}

func TestParseWebhookIgnoresPendingPayment(t *testing.T) {
	cfg := testConfig()
	result := ParseWebhook(cfg, signedRequest(cfg, paymentPayload("APPROVED")))
	if !result.Processed || result.Kind != pos.KindOther || result.Event != nil {
		t.Fatalf("expected ignored result, got %+v", result)
	}
}

func TestParseWebhookDisputeIsLateSignal(t *testing.T) {
	cfg := testConfig()
	payload := map[string]interface{}{
		"merchant_id": "MLX1",
		"type":        "dispute.created",
		"event_id":    "evt_sq_2",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"dispute": map[string]interface{}{
					"id":               "dsp_1",
					"reason":           "NOT_AS_DESCRIBED",
					"disputed_payment": map[string]interface{}{"payment_id": "pay_1"},
				},
			},
		},
	}
	result := ParseWebhook(cfg, signedRequest(cfg, payload))
	if !result.Processed || result.Kind != pos.KindLateSignal || result.Signal == nil {
		t.Fatalf("expected late signal, got %+v", result)
	}
	if result.Signal.Kind != constants.LateSignalChargeback || result.Signal.PaymentRef != "pay_1" {
		t.Fatalf("unexpected signal: %+v", result.Signal)
	}
}

func TestApplyCouponDiscountClampsToOrderTotal(t *testing.T) {
	var updateBody map[string]interface{}
	updates := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at_1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/orders/ord_1":
			_, _ = io.WriteString(w, `{"order":{"id":"ord_1","location_id":"L1","version":3,"total_money":{"amount":1200,"currency":"USD"}}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/v2/orders/ord_1":
			updates++
			_ = json.NewDecoder(r.Body).Decode(&updateBody)
			_, _ = io.WriteString(w, `{"order":{"id":"ord_1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.APIBaseURL = server.URL
	adapter, err := New(cfg, pos.Deps{Credentials: &pos.Credentials{
		AccessToken: "at_1",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}})
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	result := adapter.ApplyCouponDiscount(context.Background(), pos.DiscountRequest{
		OrderRef:      "ord_1",
		Code:          "ABCD2345",
		DiscountType:  pos.DiscountFixedAmount,
		DiscountValue: decimal.NewFromInt(5000),
	})
	if !result.Success || result.DiscountAmount != 1200 {
		t.Fatalf("unexpected discount result: %+v", result)
	}
	if updates != 1 {
		t.Fatalf("expected exactly one update call, got %d", updates)
	}
	order, _ := updateBody["order"].(map[string]interface{})
	if order["location_id"] != "L1" {
		t.Fatalf("unexpected update body: %v", updateBody)
	}
}

func TestApplyCouponDiscountWithoutCredentials(t *testing.T) {
	adapter, _ := New(testConfig(), pos.Deps{})
	result := adapter.ApplyCouponDiscount(context.Background(), pos.DiscountRequest{OrderRef: "ord_1"})
	if result.Success || !strings.Contains(result.Error, "not connected") {
		t.Fatalf("expected not connected error, got %+v", result)
	}
}
