// Package square 实现 Square POS 适配器。
package square

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/pos"

	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL = "https://connect.squareup.com"
	apiVersion        = "2024-10-17"
	signatureHeader   = "x-square-hmacsha256-signature"
)

// Config Square 应用配置
type Config struct {
	ClientID        string
	ClientSecret    string
	SignatureKey    string
	NotificationURL string
	APIBaseURL      string
	OAuthBaseURL    string
	Timeout         time.Duration
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.SignatureKey = strings.TrimSpace(c.SignatureKey)
	c.NotificationURL = strings.TrimSpace(c.NotificationURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.OAuthBaseURL = strings.TrimRight(strings.TrimSpace(c.OAuthBaseURL), "/")
	if c.OAuthBaseURL == "" {
		c.OAuthBaseURL = c.APIBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = pos.DefaultHTTPTimeout
	}
}

// ValidateConfig 校验 webhook 所需配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", pos.ErrConfigInvalid)
	}
	if cfg.SignatureKey == "" {
		return fmt.Errorf("%w: signature_key is required", pos.ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.NotificationURL); err != nil {
		return fmt.Errorf("%w: notification_url is invalid", pos.ErrConfigInvalid)
	}
	return nil
}

// Adapter Square 适配器
type Adapter struct {
	cfg   Config
	creds *pos.Credentials
	read  *http.Client
	write *http.Client
}

// New 创建适配器；没有凭据时仅能处理 webhook
func New(cfg Config, deps pos.Deps) (*Adapter, error) {
	cfg.normalize()
	a := &Adapter{cfg: cfg}
	if deps.Credentials == nil || strings.TrimSpace(deps.Credentials.AccessToken) == "" {
		return a, nil
	}
	creds := *deps.Credentials
	a.creds = &creds
	ctx := context.Background()
	if deps.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, deps.HTTPClient)
	}
	ts := pos.NewTokenSource(ctx, tokenEndpoint(cfg, deps.HTTPClient), creds.OAuthToken(), func(tok *oauth2.Token) {
		if deps.OnTokenRefresh != nil {
			deps.OnTokenRefresh(context.Background(), creds.WithToken(tok))
		}
	})
	a.write = pos.AuthorizedClient(ctx, ts, cfg.Timeout)
	a.read = pos.NewRetryingClient(a.write, "pos_square")
	return a, nil
}

// NewFactory 返回注册表使用的工厂
func NewFactory(cfg Config) pos.Factory {
	return func(deps pos.Deps) (pos.Adapter, error) {
		return New(cfg, deps)
	}
}

// NewConnector 授权码换取令牌；也接受直接提供的 access_token + merchant_id
func NewConnector(cfg Config, client *http.Client) pos.Connector {
	cfg.normalize()
	return func(ctx context.Context, req pos.ConnectRequest) (*pos.Credentials, error) {
		if token := strings.TrimSpace(req.Credentials["access_token"]); token != "" {
			merchant := strings.TrimSpace(req.Credentials["merchant_id"])
			if merchant == "" {
				return nil, fmt.Errorf("%w: merchant_id is required", pos.ErrConfigInvalid)
			}
			return &pos.Credentials{AccessToken: token, TokenType: "Bearer", MerchantRef: merchant}, nil
		}
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("%w: client_id/client_secret is required", pos.ErrConfigInvalid)
		}
		resp, err := tokenEndpoint(cfg, client).Exchange(ctx, req.Code, req.RedirectURL)
		if err != nil {
			return nil, err
		}
		if resp.MerchantRef == "" {
			return nil, fmt.Errorf("%w: merchant_id missing", pos.ErrResponseInvalid)
		}
		creds := pos.Credentials{MerchantRef: resp.MerchantRef}.WithToken(resp.Token)
		return &creds, nil
	}
}

func tokenEndpoint(cfg Config, client *http.Client) pos.TokenEndpoint {
	return pos.TokenEndpoint{
		TokenURL:     cfg.OAuthBaseURL + "/oauth2/token",
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Client:       client,
	}
}

// Provider 提供方标识
func (a *Adapter) Provider() string {
	return constants.POSProviderSquare
}

// ValidateConnection 校验令牌是否可用
func (a *Adapter) ValidateConnection(ctx context.Context) pos.ValidationResult {
	if a.creds == nil {
		return pos.FailValidation(pos.ErrNotConnected)
	}
	raw, err := a.call(ctx, a.read, http.MethodGet, "/v2/merchants/me", nil)
	if err != nil {
		return pos.FailValidation(err)
	}
	merchantID := pos.ReadString(pos.ReadMap(raw, "merchant"), "id")
	if a.creds.MerchantRef != "" && merchantID != "" && merchantID != a.creds.MerchantRef {
		return pos.FailValidation(fmt.Errorf("%w: merchant mismatch", pos.ErrResponseInvalid))
	}
	return pos.ValidationResult{Valid: true}
}

// ApplyCouponDiscount 查询订单后写入订单级折扣，写请求不重试
func (a *Adapter) ApplyCouponDiscount(ctx context.Context, req pos.DiscountRequest) pos.DiscountResult {
	if a.creds == nil {
		return pos.FailDiscount(pos.ErrNotConnected)
	}
	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return pos.FailDiscount(fmt.Errorf("%w: order_ref is required", pos.ErrConfigInvalid))
	}
	raw, err := a.call(ctx, a.read, http.MethodGet, "/v2/orders/"+url.PathEscape(orderRef), nil)
	if err != nil {
		return pos.FailDiscount(err)
	}
	order := pos.ReadMap(raw, "order")
	if order == nil {
		return pos.FailDiscount(fmt.Errorf("%w: order missing", pos.ErrResponseInvalid))
	}
	totalMoney := pos.ReadMap(order, "total_money")
	total := pos.ReadInt64(totalMoney, "amount")
	if total <= 0 {
		total = req.OrderTotalCents
	}
	currency := firstNonEmpty(pos.ReadString(totalMoney, "currency"), req.Currency, "USD")
	amount := pos.ClampDiscount(req.DiscountType, req.DiscountValue, total, req.MaxDiscountCents)
	if amount == 0 {
		return pos.DiscountResult{Success: true}
	}
	payload := map[string]interface{}{
		"idempotency_key": "disc-" + orderRef + "-" + req.Code,
		"order": map[string]interface{}{
			"location_id": pos.ReadString(order, "location_id"),
			"version":     pos.ReadInt64(order, "version"),
			"discounts": []map[string]interface{}{{
				"uid":   strings.ToLower(req.Code),
				"name":  "Coupon " + req.Code,
				"scope": "ORDER",
				"amount_money": map[string]interface{}{
					"amount":   amount,
					"currency": currency,
				},
			}},
		},
	}
	if _, err := a.call(ctx, a.write, http.MethodPut, "/v2/orders/"+url.PathEscape(orderRef), payload); err != nil {
		return pos.FailDiscount(err)
	}
	return pos.DiscountResult{Success: true, DiscountAmount: amount}
}

// CreateRefund 发起退款，依赖幂等键可安全重试
func (a *Adapter) CreateRefund(ctx context.Context, req pos.RefundRequest) pos.RefundResult {
	if a.creds == nil {
		return pos.FailRefund(pos.ErrNotConnected)
	}
	if strings.TrimSpace(req.PaymentRef) == "" || req.AmountCents <= 0 || strings.TrimSpace(req.IdempotencyKey) == "" {
		return pos.FailRefund(fmt.Errorf("%w: payment_ref, amount and idempotency_key are required", pos.ErrConfigInvalid))
	}
	payload := map[string]interface{}{
		"idempotency_key": req.IdempotencyKey,
		"payment_id":      req.PaymentRef,
		"reason":          req.Reason,
		"amount_money": map[string]interface{}{
			"amount":   req.AmountCents,
			"currency": firstNonEmpty(req.Currency, "USD"),
		},
	}
	raw, err := a.call(ctx, a.read, http.MethodPost, "/v2/refunds", payload)
	if err != nil {
		return pos.FailRefund(err)
	}
	refundID := pos.ReadString(pos.ReadMap(raw, "refund"), "id")
	if refundID == "" {
		return pos.FailRefund(fmt.Errorf("%w: refund id missing", pos.ErrResponseInvalid))
	}
	return pos.RefundResult{Success: true, RefundID: refundID}
}

// HandleWebhook 校验签名并归一化事件
func (a *Adapter) HandleWebhook(ctx context.Context, req pos.WebhookRequest) pos.WebhookResult {
	return ParseWebhook(a.cfg, req)
}

// ParseWebhook 校验签名：base64(HMAC-SHA256(signature_key, notification_url + body))
func ParseWebhook(cfg Config, req pos.WebhookRequest) pos.WebhookResult {
	cfg.normalize()
	if err := ValidateConfig(&cfg); err != nil {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	expected := pos.HMACSHA256(cfg.SignatureKey, []byte(cfg.NotificationURL), req.Body)
	if !pos.VerifyBase64MAC(expected, pos.HeaderValue(req.Headers, signatureHeader)) {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	raw, err := pos.DecodeRawMap(req.Body)
	if err != nil {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	eventID := pos.ReadString(raw, "event_id")
	eventType := strings.ToLower(pos.ReadString(raw, "type"))
	merchantID := pos.ReadString(raw, "merchant_id")
	object := pos.ReadMap(pos.ReadMap(raw, "data"), "object")
	occurredAt := pos.ParseTime(pos.ReadString(raw, "created_at"), req.ReceivedAt)
	if eventID == "" || eventType == "" {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}

	switch eventType {
	case "payment.created", "payment.updated":
		payment := pos.ReadMap(object, "payment")
		if payment == nil {
			return pos.Rejected(pos.ReasonPayloadInvalid)
		}
		if !strings.EqualFold(pos.ReadString(payment, "status"), "COMPLETED") {
			return pos.Ignored(eventID, eventType)
		}
		ref := pos.NormalizeRef(firstNonEmpty(pos.ReadString(payment, "reference_id"), pos.ReadString(payment, "note")))
		if ref == "" {
			return pos.Ignored(eventID, eventType)
		}
		money := pos.ReadMap(payment, "amount_money")
		return pos.WebhookResult{
			Processed: true,
			EventID:   eventID,
			EventType: eventType,
			Kind:      pos.KindRedemption,
			Event: &pos.RedemptionEvent{
				ProviderID:      constants.POSProviderSquare,
				ExternalEventID: eventID,
				MerchantRef:     merchantID,
				CouponOrLinkRef: ref,
				OrderRef:        pos.ReadString(payment, "order_id"),
				PaymentRef:      pos.ReadString(payment, "id"),
				OrderTotalCents: pos.ReadInt64(money, "amount"),
				Currency:        pos.ReadString(money, "currency"),
				CardFingerprint: pos.ReadString(pos.ReadMap(pos.ReadMap(payment, "card_details"), "card"), "fingerprint"),
				DeviceHash:      pos.ReadString(pos.ReadMap(payment, "device_details"), "device_id"),
				IP:              pos.ReadString(payment, "buyer_ip_address"),
				Geo:             pos.ReadGeo(payment, "geo"),
				Timestamp:       pos.ParseTime(pos.ReadString(payment, "updated_at"), occurredAt),
			},
		}
	case "dispute.created":
		dispute := pos.ReadMap(object, "dispute")
		disputeID := firstNonEmpty(pos.ReadString(dispute, "id"), pos.ReadString(dispute, "dispute_id"))
		if disputeID == "" {
			return pos.Rejected(pos.ReasonPayloadInvalid)
		}
		return signalResult(eventID, eventType, &pos.LateSignalEvent{
			ProviderID:  constants.POSProviderSquare,
			ExternalID:  disputeID,
			Kind:        constants.LateSignalChargeback,
			MerchantRef: merchantID,
			PaymentRef:  pos.ReadString(pos.ReadMap(dispute, "disputed_payment"), "payment_id"),
			Note:        pos.ReadString(dispute, "reason"),
			OccurredAt:  occurredAt,
		})
	case "refund.created", "refund.updated":
		refund := pos.ReadMap(object, "refund")
		status := strings.ToUpper(pos.ReadString(refund, "status"))
		if status != "PENDING" && status != "COMPLETED" {
			return pos.Ignored(eventID, eventType)
		}
		refundID := pos.ReadString(refund, "id")
		if refundID == "" {
			return pos.Rejected(pos.ReasonPayloadInvalid)
		}
		return signalResult(eventID, eventType, &pos.LateSignalEvent{
			ProviderID:  constants.POSProviderSquare,
			ExternalID:  refundID,
			Kind:        constants.LateSignalRefund,
			MerchantRef: merchantID,
			PaymentRef:  pos.ReadString(refund, "payment_id"),
			OrderRef:    pos.ReadString(refund, "order_id"),
			Note:        pos.ReadString(refund, "reason"),
			OccurredAt:  occurredAt,
		})
	default:
		return pos.Ignored(eventID, eventType)
	}
}

func signalResult(eventID, eventType string, signal *pos.LateSignalEvent) pos.WebhookResult {
	return pos.WebhookResult{
		Processed: true,
		EventID:   eventID,
		EventType: eventType,
		Kind:      pos.KindLateSignal,
		Signal:    signal,
	}
}

func (a *Adapter) call(ctx context.Context, client *http.Client, method, path string, payload interface{}) (map[string]interface{}, error) {
	body, status, err := pos.DoJSON(ctx, client, pos.JSONRequest{
		Method:  method,
		URL:     a.cfg.APIBaseURL + path,
		Headers: map[string]string{"Square-Version": apiVersion},
		Body:    payload,
	})
	if err != nil {
		return nil, err
	}
	return pos.ExpectOK(body, status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
