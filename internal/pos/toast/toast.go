// Package toast 实现 Toast POS 适配器。
package toast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/pos"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

const (
	defaultAPIBaseURL = "https://ws-api.toasttab.com"
	signatureHeader   = "Toast-Signature"
	restaurantHeader  = "Toast-Restaurant-External-ID"
	loginPath         = "/authentication/v1/authentication/login"
	refreshSkew       = time.Minute
	loginMaxElapsed   = 15 * time.Second
)

// Config Toast 合作方配置
type Config struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	APIBaseURL    string
	Timeout       time.Duration
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = pos.DefaultHTTPTimeout
	}
}

// tokenCache 合作方级别的 Bearer 令牌，过期前刷新
type tokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

// Adapter Toast 适配器
type Adapter struct {
	cfg        Config
	restaurant string
	tokens     *tokenCache
	read       *http.Client
	write      *http.Client
}

// New 创建适配器；餐厅 GUID 存于凭据 MerchantRef
func New(cfg Config, deps pos.Deps) (*Adapter, error) {
	cfg.normalize()
	base := deps.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	a := &Adapter{
		cfg:    cfg,
		tokens: &tokenCache{},
		write:  pos.NewPlainClient(base),
		read:   pos.NewRetryingClient(base, "pos_toast"),
	}
	if deps.Credentials != nil {
		a.restaurant = strings.TrimSpace(deps.Credentials.MerchantRef)
	}
	return a, nil
}

// NewFactory 返回注册表使用的工厂，同一进程内共享令牌缓存
func NewFactory(cfg Config) pos.Factory {
	shared := &tokenCache{}
	return func(deps pos.Deps) (pos.Adapter, error) {
		a, err := New(cfg, deps)
		if err != nil {
			return nil, err
		}
		a.tokens = shared
		return a, nil
	}
}

// NewConnector 校验合作方登录可用并记录餐厅 GUID
func NewConnector(cfg Config, client *http.Client) pos.Connector {
	return func(ctx context.Context, req pos.ConnectRequest) (*pos.Credentials, error) {
		guid := strings.TrimSpace(req.Credentials["restaurant_guid"])
		if guid == "" {
			return nil, fmt.Errorf("%w: restaurant_guid is required", pos.ErrConfigInvalid)
		}
		a, err := New(cfg, pos.Deps{HTTPClient: client, Credentials: &pos.Credentials{MerchantRef: guid}})
		if err != nil {
			return nil, err
		}
		if _, err := a.bearer(ctx); err != nil {
			return nil, err
		}
		return &pos.Credentials{MerchantRef: guid}, nil
	}
}

// Provider 提供方标识
func (a *Adapter) Provider() string {
	return constants.POSProviderToast
}

// bearer 返回有效令牌；登录失败按指数退避重试，4xx 视为永久失败
func (a *Adapter) bearer(ctx context.Context) (string, error) {
	a.tokens.mu.Lock()
	defer a.tokens.mu.Unlock()
	if a.tokens.token != "" && time.Now().Add(refreshSkew).Before(a.tokens.expires) {
		return a.tokens.token, nil
	}
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return "", fmt.Errorf("%w: client_id/client_secret is required", pos.ErrConfigInvalid)
	}

	var token string
	var expiresIn int64
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = loginMaxElapsed
	operation := func() error {
		body, status, err := pos.DoJSON(ctx, a.write, pos.JSONRequest{
			Method: http.MethodPost,
			URL:    a.cfg.APIBaseURL + loginPath,
			Body: map[string]string{
				"clientId":       a.cfg.ClientID,
				"clientSecret":   a.cfg.ClientSecret,
				"userAccessType": "TOAST_MACHINE_CLIENT",
			},
		})
		if err != nil {
			return err
		}
		if status >= 400 && status < 500 {
			return backoff.Permanent(fmt.Errorf("%w: login rejected with status %d", pos.ErrRequestFailed, status))
		}
		raw, err := pos.ExpectOK(body, status)
		if err != nil {
			return err
		}
		node := pos.ReadMap(raw, "token")
		token = pos.ReadString(node, "accessToken")
		expiresIn = pos.ReadInt64(node, "expiresIn")
		if token == "" {
			return backoff.Permanent(fmt.Errorf("%w: accessToken missing", pos.ErrResponseInvalid))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnw("pos_toast_login_retry", "error", err, "wait", wait.String())
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return "", err
	}
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	a.tokens.token = token
	a.tokens.expires = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return token, nil
}

func (a *Adapter) call(ctx context.Context, client *http.Client, method, path string, payload interface{}) ([]byte, error) {
	if a.restaurant == "" {
		return nil, pos.ErrNotConnected
	}
	token, err := a.bearer(ctx)
	if err != nil {
		return nil, err
	}
	body, status, err := pos.DoJSON(ctx, client, pos.JSONRequest{
		Method: method,
		URL:    a.cfg.APIBaseURL + path,
		Headers: map[string]string{
			"Authorization":  "Bearer " + token,
			restaurantHeader: a.restaurant,
		},
		Body: payload,
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		a.tokens.mu.Lock()
		a.tokens.token = ""
		a.tokens.mu.Unlock()
	}
	if status < 200 || status >= 300 {
		_, err := pos.ExpectOK(body, status)
		return nil, err
	}
	return body, nil
}

// ValidateConnection 读取餐厅信息
func (a *Adapter) ValidateConnection(ctx context.Context) pos.ValidationResult {
	if _, err := a.call(ctx, a.read, http.MethodGet, "/restaurants/v1/restaurants/"+url.PathEscape(a.restaurant), nil); err != nil {
		return pos.FailValidation(err)
	}
	return pos.ValidationResult{Valid: true}
}

// ApplyCouponDiscount 对订单第一张账单追加开放金额折扣
func (a *Adapter) ApplyCouponDiscount(ctx context.Context, req pos.DiscountRequest) pos.DiscountResult {
	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return pos.FailDiscount(fmt.Errorf("%w: order_ref is required", pos.ErrConfigInvalid))
	}
	body, err := a.call(ctx, a.read, http.MethodGet, "/orders/v2/orders/"+url.PathEscape(orderRef), nil)
	if err != nil {
		return pos.FailDiscount(err)
	}
	order, err := pos.DecodeRawMap(body)
	if err != nil {
		return pos.FailDiscount(err)
	}
	checks := pos.ReadSlice(order, "checks")
	if len(checks) == 0 {
		return pos.FailDiscount(fmt.Errorf("%w: order has no checks", pos.ErrResponseInvalid))
	}
	check := checks[0]
	total := dollarsToCents(check, "totalAmount")
	if total <= 0 {
		total = req.OrderTotalCents
	}
	amount := pos.ClampDiscount(req.DiscountType, req.DiscountValue, total, req.MaxDiscountCents)
	if amount == 0 {
		return pos.DiscountResult{Success: true}
	}
	path := "/orders/v2/orders/" + url.PathEscape(orderRef) + "/checks/" + url.PathEscape(pos.ReadString(check, "guid")) + "/appliedDiscounts"
	payload := []map[string]interface{}{{
		"name":             "Coupon " + req.Code,
		"appliedPromoCode": req.Code,
		"discountAmount":   decimal.NewFromInt(amount).Shift(-2).InexactFloat64(),
	}}
	if _, err := a.call(ctx, a.write, http.MethodPost, path, payload); err != nil {
		return pos.FailDiscount(err)
	}
	return pos.DiscountResult{Success: true, DiscountAmount: amount}
}

// CreateRefund Toast 未开放退款接口，需在终端操作
func (a *Adapter) CreateRefund(ctx context.Context, req pos.RefundRequest) pos.RefundResult {
	return pos.FailRefund(errors.New("refund is not supported by toast api"))
}

// HandleWebhook 校验 base64(HMAC-SHA256(secret, body)) 并解析订单事件
func (a *Adapter) HandleWebhook(ctx context.Context, req pos.WebhookRequest) pos.WebhookResult {
	return ParseWebhook(a.cfg, req)
}

// ParseWebhook 解析订单事件；退款优先于支付完成
func ParseWebhook(cfg Config, req pos.WebhookRequest) pos.WebhookResult {
	cfg.normalize()
	if cfg.WebhookSecret == "" {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	if !pos.VerifyBase64MAC(pos.HMACSHA256(cfg.WebhookSecret, req.Body), pos.HeaderValue(req.Headers, signatureHeader)) {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	raw, err := pos.DecodeRawMap(req.Body)
	if err != nil {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	eventID := pos.ReadString(raw, "guid")
	eventType := pos.ReadString(raw, "eventType")
	if eventID == "" || eventType == "" {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	details := pos.ReadMap(raw, "details")
	order := pos.ReadMap(details, "order")
	if !strings.EqualFold(eventType, "order_updated") || order == nil {
		return pos.Ignored(eventID, eventType)
	}
	restaurant := firstNonEmpty(pos.ReadString(details, "restaurantGuid"), pos.HeaderValue(req.Headers, restaurantHeader))
	occurredAt := pos.ParseTime(pos.ReadString(raw, "timestamp"), req.ReceivedAt)

	var captured map[string]interface{}
	var capturedCheck map[string]interface{}
	for _, check := range pos.ReadSlice(order, "checks") {
		for _, payment := range pos.ReadSlice(check, "payments") {
			if status := strings.ToUpper(pos.ReadString(payment, "refundStatus")); status == "FULL" || status == "PARTIAL" {
				return pos.WebhookResult{
					Processed: true,
					EventID:   eventID,
					EventType: eventType,
					Kind:      pos.KindLateSignal,
					Signal: &pos.LateSignalEvent{
						ProviderID:  constants.POSProviderToast,
						ExternalID:  "refund:" + pos.ReadString(payment, "guid"),
						Kind:        constants.LateSignalRefund,
						MerchantRef: restaurant,
						PaymentRef:  pos.ReadString(payment, "guid"),
						OrderRef:    pos.ReadString(order, "guid"),
						Note:        "refund_status=" + strings.ToLower(status),
						OccurredAt:  occurredAt,
					},
				}
			}
			if captured == nil && isCaptured(pos.ReadString(payment, "paymentStatus")) {
				captured = payment
				capturedCheck = check
			}
		}
	}
	if captured == nil {
		return pos.Ignored(eventID, eventType)
	}
	ref := ""
	for _, discount := range pos.ReadSlice(capturedCheck, "appliedDiscounts") {
		if ref = pos.NormalizeRef(pos.ReadString(discount, "appliedPromoCode")); ref != "" {
			break
		}
	}
	if ref == "" {
		ref = pos.NormalizeRef(pos.ReadString(order, "externalId"))
	}
	if ref == "" {
		return pos.Ignored(eventID, eventType)
	}
	total := dollarsToCents(capturedCheck, "totalAmount")
	if total <= 0 {
		total = dollarsToCents(captured, "amount")
	}
	return pos.WebhookResult{
		Processed: true,
		EventID:   eventID,
		EventType: eventType,
		Kind:      pos.KindRedemption,
		Event: &pos.RedemptionEvent{
			ProviderID:      constants.POSProviderToast,
			ExternalEventID: eventID,
			MerchantRef:     restaurant,
			CouponOrLinkRef: ref,
			OrderRef:        pos.ReadString(order, "guid"),
			PaymentRef:      pos.ReadString(captured, "guid"),
			OrderTotalCents: total,
			Currency:        "USD",
			CardFingerprint: pos.ReadString(captured, "cardPaymentId"),
			DeviceHash:      pos.ReadString(pos.ReadMap(order, "createdDevice"), "id"),
			Timestamp:       pos.ParseTime(pos.ReadString(captured, "paidDate"), occurredAt),
		},
	}
}

func isCaptured(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CAPTURED", "CLOSED", "PROCESSING":
		return true
	default:
		return false
	}
}

// dollarsToCents Toast 金额以美元小数表示
func dollarsToCents(raw map[string]interface{}, key string) int64 {
	value, ok := pos.ReadFloat(raw, key)
	if !ok {
		return 0
	}
	return decimal.NewFromFloat(value).Shift(2).Round(0).IntPart()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
