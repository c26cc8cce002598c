package clover

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/pos"
)

type staticResolver struct {
	creds map[string]*pos.Credentials
	err   error
}

func (r staticResolver) ResolveCredentials(ctx context.Context, provider, merchantRef string) (*pos.Credentials, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.creds[merchantRef], nil
}

func notificationBody(objectID, kind string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"appId": "APP1",
		"merchants": map[string]interface{}{
			"M1": []interface{}{
				map[string]interface{}{"objectId": objectID, "type": kind, "ts": 1760000000000},
			},
		},
	})
	return body
}

func newLookupServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok_m1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v3/merchants/M1/payments/PAY1":
			_, _ = io.WriteString(w, `{"id":"PAY1","amount":4200,"result":"`+result+`","note":"ref: wxyz2345","createdTime":1760000000000,`+
				`"order":{"id":"ORD1","currency":"USD"},"cardTransaction":{"token":"ctok_1"},"device":{"id":"dev_9"}}`)
		case "/v3/merchants/M1/refunds/REF1":
			_, _ = io.WriteString(w, `{"id":"REF1","payment":{"id":"PAY1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newAdapter(t *testing.T, baseURL string, resolver pos.CredentialResolver) *Adapter {
	t.Helper()
	adapter, err := New(Config{WebhookAuthCode: "auth_code_1", APIBaseURL: baseURL}, pos.Deps{Resolver: resolver})
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	return adapter
}

func merchantCreds() map[string]*pos.Credentials {
	return map[string]*pos.Credentials{
		"M1": {AccessToken: "tok_m1", TokenType: "Bearer", MerchantRef: "M1", Expiry: time.Now().Add(time.Hour)},
	}
}

func TestHandleWebhookLooksUpPayment(t *testing.T) {
	server := newLookupServer(t, "SUCCESS")
	defer server.Close()
	adapter := newAdapter(t, server.URL, staticResolver{creds: merchantCreds()})

	result := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{
		Headers: map[string]string{"x-clover-auth": "auth_code_1"},
		Body:    notificationBody("P:PAY1", "CREATE"),
	})
	if !result.Processed || result.Kind != pos.KindRedemption {
		t.Fatalf("unexpected result: %+v", result)
	}
	event := result.Event
	if event.ExternalEventID != "P:PAY1" || event.MerchantRef != "M1" || event.CouponOrLinkRef != "WXYZ2345" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.OrderTotalCents != 4200 || event.CardFingerprint != "ctok_1" || event.DeviceHash != "dev_9" {
		t.Fatalf("unexpected event signals: %+v", event)
	}
	if event.Timestamp.Location() != time.UTC || !event.Timestamp.Equal(time.UnixMilli(1760000000000)) {
		t.Fatalf("created time should be utc: %v", event.Timestamp)
	}
}

func TestHandleWebhookRejectsWrongAuthCode(t *testing.T) {
	adapter := newAdapter(t, "http://127.0.0.1:1", staticResolver{})
	result := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{
		Headers: map[string]string{"X-Clover-Auth": "nope"},
		Body:    notificationBody("P:PAY1", "CREATE"),
	})
	if result.Processed || result.Reason != pos.ReasonSignatureInvalid {
		t.Fatalf("expected signature rejection, got %+v", result)
	}
}

func TestHandleWebhookLookupFailureIsTransient(t *testing.T) {
	adapter := newAdapter(t, "http://127.0.0.1:1", staticResolver{err: errors.New("db down")})
	result := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{
		Headers: map[string]string{"X-Clover-Auth": "auth_code_1"},
		Body:    notificationBody("P:PAY1", "CREATE"),
	})
	if result.Processed || !result.Transient {
		t.Fatalf("expected transient failure, got %+v", result)
	}
}

func TestHandleWebhookIgnoresDeclinedPaymentAndVerification(t *testing.T) {
	server := newLookupServer(t, "DECLINED")
	defer server.Close()
	adapter := newAdapter(t, server.URL, staticResolver{creds: merchantCreds()})

	declined := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{
		Headers: map[string]string{"X-Clover-Auth": "auth_code_1"},
		Body:    notificationBody("P:PAY1", "UPDATE"),
	})
	if !declined.Processed || declined.Kind != pos.KindOther {
		t.Fatalf("expected ignored result, got %+v", declined)
	}

	verification := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{
		Body: []byte(`{"verificationCode":"abc-123"}`),
	})
	if !verification.Processed || verification.EventType != "verification" {
		t.Fatalf("expected verification to be acknowledged, got %+v", verification)
	}
}

func TestHandleWebhookRefundIsLateSignal(t *testing.T) {
	server := newLookupServer(t, "SUCCESS")
	defer server.Close()
	adapter := newAdapter(t, server.URL, staticResolver{creds: merchantCreds()})

	result := adapter.HandleWebhook(context.Background(), pos.WebhookRequest{
		Headers: map[string]string{"X-Clover-Auth": "auth_code_1"},
		Body:    notificationBody("R:REF1", "CREATE"),
	})
	if result.Kind != pos.KindLateSignal || result.Signal == nil {
		t.Fatalf("expected late signal, got %+v", result)
	}
	if result.Signal.Kind != constants.LateSignalRefund || result.Signal.PaymentRef != "PAY1" {
		t.Fatalf("unexpected signal: %+v", result.Signal)
	}
}
