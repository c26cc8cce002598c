// Package clover 实现 Clover POS 适配器。
package clover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/pos"

	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL   = "https://api.clover.com"
	defaultOAuthBaseURL = "https://www.clover.com"
	authHeader          = "X-Clover-Auth"
)

// Config Clover 应用配置
type Config struct {
	ClientID        string
	ClientSecret    string
	WebhookAuthCode string
	APIBaseURL      string
	OAuthBaseURL    string
	Timeout         time.Duration
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.WebhookAuthCode = strings.TrimSpace(c.WebhookAuthCode)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.OAuthBaseURL = strings.TrimRight(strings.TrimSpace(c.OAuthBaseURL), "/")
	if c.OAuthBaseURL == "" {
		c.OAuthBaseURL = defaultOAuthBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = pos.DefaultHTTPTimeout
	}
}

// Adapter Clover 适配器
type Adapter struct {
	cfg      Config
	creds    *pos.Credentials
	resolver pos.CredentialResolver
	base     *http.Client
	read     *http.Client
	write    *http.Client
}

// New 创建适配器
func New(cfg Config, deps pos.Deps) (*Adapter, error) {
	cfg.normalize()
	a := &Adapter{cfg: cfg, resolver: deps.Resolver, base: deps.HTTPClient}
	if deps.Credentials == nil || strings.TrimSpace(deps.Credentials.AccessToken) == "" {
		return a, nil
	}
	creds := *deps.Credentials
	a.creds = &creds
	a.write, a.read = a.clients(creds, deps.OnTokenRefresh)
	return a, nil
}

// NewFactory 返回注册表使用的工厂
func NewFactory(cfg Config) pos.Factory {
	return func(deps pos.Deps) (pos.Adapter, error) {
		return New(cfg, deps)
	}
}

// NewConnector 授权码换取令牌；Clover 回调携带 merchant_id
func NewConnector(cfg Config, client *http.Client) pos.Connector {
	cfg.normalize()
	return func(ctx context.Context, req pos.ConnectRequest) (*pos.Credentials, error) {
		merchant := strings.TrimSpace(req.Credentials["merchant_id"])
		if merchant == "" {
			return nil, fmt.Errorf("%w: merchant_id is required", pos.ErrConfigInvalid)
		}
		if token := strings.TrimSpace(req.Credentials["access_token"]); token != "" {
			return &pos.Credentials{AccessToken: token, TokenType: "Bearer", MerchantRef: merchant}, nil
		}
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("%w: client_id/client_secret is required", pos.ErrConfigInvalid)
		}
		resp, err := tokenEndpoint(cfg, client).Exchange(ctx, req.Code, "")
		if err != nil {
			return nil, err
		}
		creds := pos.Credentials{MerchantRef: merchant}.WithToken(resp.Token)
		return &creds, nil
	}
}

func tokenEndpoint(cfg Config, client *http.Client) pos.TokenEndpoint {
	return pos.TokenEndpoint{
		TokenURL:     cfg.OAuthBaseURL + "/oauth/v2/token",
		RefreshURL:   cfg.OAuthBaseURL + "/oauth/v2/refresh",
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Client:       client,
	}
}

func (a *Adapter) clients(creds pos.Credentials, onRefresh func(context.Context, pos.Credentials)) (*http.Client, *http.Client) {
	ctx := context.Background()
	if a.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.base)
	}
	ts := pos.NewTokenSource(ctx, tokenEndpoint(a.cfg, a.base), creds.OAuthToken(), func(tok *oauth2.Token) {
		if onRefresh != nil {
			onRefresh(context.Background(), creds.WithToken(tok))
		}
	})
	write := pos.AuthorizedClient(ctx, ts, a.cfg.Timeout)
	return write, pos.NewRetryingClient(write, "pos_clover")
}

// Provider 提供方标识
func (a *Adapter) Provider() string {
	return constants.POSProviderClover
}

// ValidateConnection 校验令牌与商户号
func (a *Adapter) ValidateConnection(ctx context.Context) pos.ValidationResult {
	if a.creds == nil {
		return pos.FailValidation(pos.ErrNotConnected)
	}
	raw, err := a.call(ctx, a.read, http.MethodGet, a.merchantPath(a.creds.MerchantRef, ""), nil)
	if err != nil {
		return pos.FailValidation(err)
	}
	if id := pos.ReadString(raw, "id"); id != "" && id != a.creds.MerchantRef {
		return pos.FailValidation(fmt.Errorf("%w: merchant mismatch", pos.ErrResponseInvalid))
	}
	return pos.ValidationResult{Valid: true}
}

// ApplyCouponDiscount 在订单上追加折扣行，金额为负数
func (a *Adapter) ApplyCouponDiscount(ctx context.Context, req pos.DiscountRequest) pos.DiscountResult {
	if a.creds == nil {
		return pos.FailDiscount(pos.ErrNotConnected)
	}
	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return pos.FailDiscount(fmt.Errorf("%w: order_ref is required", pos.ErrConfigInvalid))
	}
	orderPath := a.merchantPath(a.creds.MerchantRef, "/orders/"+url.PathEscape(orderRef))
	order, err := a.call(ctx, a.read, http.MethodGet, orderPath, nil)
	if err != nil {
		return pos.FailDiscount(err)
	}
	total := pos.ReadInt64(order, "total")
	if total <= 0 {
		total = req.OrderTotalCents
	}
	amount := pos.ClampDiscount(req.DiscountType, req.DiscountValue, total, req.MaxDiscountCents)
	if amount == 0 {
		return pos.DiscountResult{Success: true}
	}
	payload := map[string]interface{}{
		"name":   "Coupon " + req.Code,
		"amount": -amount,
	}
	if _, err := a.call(ctx, a.write, http.MethodPost, orderPath+"/discounts", payload); err != nil {
		return pos.FailDiscount(err)
	}
	return pos.DiscountResult{Success: true, DiscountAmount: amount}
}

// CreateRefund 调用退款接口，通过 Idempotency-Key 保证重试安全
func (a *Adapter) CreateRefund(ctx context.Context, req pos.RefundRequest) pos.RefundResult {
	if a.creds == nil {
		return pos.FailRefund(pos.ErrNotConnected)
	}
	if strings.TrimSpace(req.PaymentRef) == "" || req.AmountCents <= 0 || strings.TrimSpace(req.IdempotencyKey) == "" {
		return pos.FailRefund(fmt.Errorf("%w: payment_ref, amount and idempotency_key are required", pos.ErrConfigInvalid))
	}
	body, status, err := pos.DoJSON(ctx, a.read, pos.JSONRequest{
		Method:  http.MethodPost,
		URL:     a.cfg.APIBaseURL + "/v1/refunds",
		Headers: map[string]string{"Idempotency-Key": req.IdempotencyKey},
		Body: map[string]interface{}{
			"charge": req.PaymentRef,
			"amount": req.AmountCents,
			"reason": req.Reason,
		},
	})
	if err != nil {
		return pos.FailRefund(err)
	}
	raw, err := pos.ExpectOK(body, status)
	if err != nil {
		return pos.FailRefund(err)
	}
	refundID := pos.ReadString(raw, "id")
	if refundID == "" {
		return pos.FailRefund(fmt.Errorf("%w: refund id missing", pos.ErrResponseInvalid))
	}
	return pos.RefundResult{Success: true, RefundID: refundID}
}

type notification struct {
	merchantID string
	objectID   string
	kind       string
	ts         int64
}

// HandleWebhook 校验 X-Clover-Auth，按通知回查支付详情。
// 通知本身没有事件 ID，支付与退款以对象 ID 作为幂等键（同一笔支付的 CREATE/UPDATE 只入账一次）。
func (a *Adapter) HandleWebhook(ctx context.Context, req pos.WebhookRequest) pos.WebhookResult {
	raw, err := pos.DecodeRawMap(req.Body)
	if err != nil {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	// 首次配置 webhook 时 Clover 只发送 verificationCode，不携带鉴权头
	if code := pos.ReadString(raw, "verificationCode"); code != "" {
		logger.Infow("pos_clover_webhook_verification", "verification_code", code)
		return pos.Ignored("", "verification")
	}
	if !pos.EqualSecret(a.cfg.WebhookAuthCode, pos.HeaderValue(req.Headers, authHeader)) {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	items := parseNotifications(raw)
	if len(items) == 0 {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	if len(items) > 1 {
		logger.Warnw("pos_clover_webhook_batch_truncated", "count", len(items))
	}
	item := items[0]
	prefix, objectID, ok := strings.Cut(item.objectID, ":")
	if !ok || objectID == "" {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	eventType := strings.ToLower(prefix + "." + item.kind)
	if item.kind == "DELETE" {
		return pos.Ignored("", eventType)
	}
	switch prefix {
	case "P":
		return a.lookupPayment(ctx, item, objectID, eventType, req.ReceivedAt)
	case "R":
		return a.lookupRefund(ctx, item, objectID, eventType, req.ReceivedAt)
	default:
		return pos.Ignored("", eventType)
	}
}

func parseNotifications(raw map[string]interface{}) []notification {
	merchants := pos.ReadMap(raw, "merchants")
	ids := make([]string, 0, len(merchants))
	for id := range merchants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	result := make([]notification, 0)
	for _, mID := range ids {
		for _, entry := range pos.ReadSlice(merchants, mID) {
			result = append(result, notification{
				merchantID: mID,
				objectID:   pos.ReadString(entry, "objectId"),
				kind:       strings.ToUpper(pos.ReadString(entry, "type")),
				ts:         pos.ReadInt64(entry, "ts"),
			})
		}
	}
	return result
}

// merchantClient 回查使用该商户已存储的凭据
func (a *Adapter) merchantClient(ctx context.Context, merchantID string) (*http.Client, bool, error) {
	if a.creds != nil && a.creds.MerchantRef == merchantID {
		return a.read, true, nil
	}
	if a.resolver == nil {
		return nil, false, nil
	}
	creds, err := a.resolver.ResolveCredentials(ctx, constants.POSProviderClover, merchantID)
	if err != nil {
		return nil, false, err
	}
	if creds == nil || creds.AccessToken == "" {
		return nil, false, nil
	}
	_, read := a.clients(*creds, nil)
	return read, true, nil
}

func (a *Adapter) lookupPayment(ctx context.Context, item notification, paymentID, eventType string, receivedAt time.Time) pos.WebhookResult {
	client, ok, err := a.merchantClient(ctx, item.merchantID)
	if err != nil {
		return pos.WebhookResult{Transient: true, Reason: pos.ReasonLookupFailed}
	}
	if !ok {
		logger.Warnw("pos_clover_webhook_unknown_merchant", "merchant_id", item.merchantID)
		return pos.Ignored("", eventType)
	}
	path := a.merchantPath(item.merchantID, "/payments/"+url.PathEscape(paymentID)) + "?expand=order,cardTransaction,device"
	payment, err := a.call(ctx, client, http.MethodGet, path, nil)
	if err != nil {
		logger.Warnw("pos_clover_payment_lookup_failed", "merchant_id", item.merchantID, "payment_id", paymentID, "error", err)
		return pos.WebhookResult{Transient: true, Reason: pos.ReasonLookupFailed}
	}
	if !strings.EqualFold(pos.ReadString(payment, "result"), "SUCCESS") {
		return pos.Ignored("", eventType)
	}
	order := pos.ReadMap(payment, "order")
	ref := pos.NormalizeRef(firstNonEmpty(
		pos.ReadString(payment, "externalReferenceId"),
		pos.ReadString(payment, "note"),
		pos.ReadString(order, "note"),
	))
	if ref == "" {
		return pos.Ignored("", eventType)
	}
	card := pos.ReadMap(payment, "cardTransaction")
	fingerprint := pos.ReadString(card, "token")
	if fingerprint == "" && pos.ReadString(card, "last4") != "" {
		fingerprint = pos.ReadString(card, "first6") + "xx" + pos.ReadString(card, "last4")
	}
	occurredAt := receivedAt
	if created := pos.ReadInt64(payment, "createdTime"); created > 0 {
		occurredAt = time.UnixMilli(created).UTC()
	}
	return pos.WebhookResult{
		Processed: true,
		EventID:   "P:" + paymentID,
		EventType: eventType,
		Kind:      pos.KindRedemption,
		Event: &pos.RedemptionEvent{
			ProviderID:      constants.POSProviderClover,
			ExternalEventID: "P:" + paymentID,
			MerchantRef:     item.merchantID,
			CouponOrLinkRef: ref,
			OrderRef:        pos.ReadString(order, "id"),
			PaymentRef:      paymentID,
			OrderTotalCents: pos.ReadInt64(payment, "amount"),
			Currency:        firstNonEmpty(pos.ReadString(order, "currency"), "USD"),
			CardFingerprint: fingerprint,
			DeviceHash:      pos.ReadString(pos.ReadMap(payment, "device"), "id"),
			Timestamp:       occurredAt,
		},
	}
}

func (a *Adapter) lookupRefund(ctx context.Context, item notification, refundID, eventType string, receivedAt time.Time) pos.WebhookResult {
	client, ok, err := a.merchantClient(ctx, item.merchantID)
	if err != nil {
		return pos.WebhookResult{Transient: true, Reason: pos.ReasonLookupFailed}
	}
	if !ok {
		return pos.Ignored("", eventType)
	}
	refund, err := a.call(ctx, client, http.MethodGet, a.merchantPath(item.merchantID, "/refunds/"+url.PathEscape(refundID)), nil)
	if err != nil {
		return pos.WebhookResult{Transient: true, Reason: pos.ReasonLookupFailed}
	}
	return pos.WebhookResult{
		Processed: true,
		EventID:   "R:" + refundID,
		EventType: eventType,
		Kind:      pos.KindLateSignal,
		Signal: &pos.LateSignalEvent{
			ProviderID:  constants.POSProviderClover,
			ExternalID:  refundID,
			Kind:        constants.LateSignalRefund,
			MerchantRef: item.merchantID,
			PaymentRef:  pos.ReadString(pos.ReadMap(refund, "payment"), "id"),
			OrderRef:    pos.ReadString(pos.ReadMap(refund, "orderRef"), "id"),
			OccurredAt:  receivedAt,
		},
	}
}

func (a *Adapter) merchantPath(merchantID, suffix string) string {
	return "/v3/merchants/" + url.PathEscape(merchantID) + suffix
}

func (a *Adapter) call(ctx context.Context, client *http.Client, method, path string, payload interface{}) (map[string]interface{}, error) {
	body, status, err := pos.DoJSON(ctx, client, pos.JSONRequest{
		Method: method,
		URL:    a.cfg.APIBaseURL + path,
		Body:   payload,
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
