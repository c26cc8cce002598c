// Package manual 实现手工录入 POS：所有操作本地完成，不调用外部服务。
package manual

import (
	"context"
	"fmt"
	"strings"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/pos"
)

const signatureHeader = "X-Manual-Signature"

// Config 手工 POS 配置
type Config struct {
	WebhookSecret string
}

// Adapter 手工 POS 适配器
type Adapter struct {
	cfg Config
}

// New 创建适配器
func New(cfg Config) *Adapter {
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	return &Adapter{cfg: cfg}
}

// NewFactory 返回注册表使用的工厂
func NewFactory(cfg Config) pos.Factory {
	return func(pos.Deps) (pos.Adapter, error) {
		return New(cfg), nil
	}
}

// NewConnector 手工 POS 无需授权
func NewConnector() pos.Connector {
	return func(ctx context.Context, req pos.ConnectRequest) (*pos.Credentials, error) {
		return &pos.Credentials{MerchantRef: MerchantRef(req.BizID)}, nil
	}
}

// MerchantRef 手工 POS 的商户号由商家 ID 派生
func MerchantRef(bizID uint) string {
	return fmt.Sprintf("biz-%d", bizID)
}

func (a *Adapter) Provider() string {
	return constants.POSProviderManual
}

func (a *Adapter) ValidateConnection(ctx context.Context) pos.ValidationResult {
	return pos.ValidationResult{Valid: true}
}

// ApplyCouponDiscount 按请求中的订单金额计算折扣，始终成功
func (a *Adapter) ApplyCouponDiscount(ctx context.Context, req pos.DiscountRequest) pos.DiscountResult {
	return pos.DiscountResult{
		Success:        true,
		DiscountAmount: pos.ClampDiscount(req.DiscountType, req.DiscountValue, req.OrderTotalCents, req.MaxDiscountCents),
	}
}

func (a *Adapter) CreateRefund(ctx context.Context, req pos.RefundRequest) pos.RefundResult {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(req.PaymentRef)
	}
	return pos.RefundResult{Success: true, RefundID: "manual_" + key}
}

// HandleWebhook 校验 hex(HMAC-SHA256(secret, body))
func (a *Adapter) HandleWebhook(ctx context.Context, req pos.WebhookRequest) pos.WebhookResult {
	if a.cfg.WebhookSecret == "" {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	if !pos.VerifyHexMAC(pos.HMACSHA256(a.cfg.WebhookSecret, req.Body), pos.HeaderValue(req.Headers, signatureHeader)) {
		return pos.Rejected(pos.ReasonSignatureInvalid)
	}
	raw, err := pos.DecodeRawMap(req.Body)
	if err != nil {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	eventID := pos.ReadString(raw, "event_id")
	eventType := strings.ToLower(pos.ReadString(raw, "event_type"))
	if eventType == "" {
		eventType = "redemption"
	}
	bizID := pos.ReadInt64(raw, "biz_id")
	if bizID <= 0 {
		return pos.Rejected(pos.ReasonPayloadInvalid)
	}
	occurredAt := pos.ParseTime(pos.ReadString(raw, "timestamp"), req.ReceivedAt)

	switch eventType {
	case "redemption":
		ref := pos.NormalizeRef(pos.ReadString(raw, "ref"))
		if ref == "" {
			return pos.Rejected(pos.ReasonPayloadInvalid)
		}
		return pos.WebhookResult{
			Processed: true,
			EventID:   eventID,
			EventType: eventType,
			Kind:      pos.KindRedemption,
			Event: &pos.RedemptionEvent{
				ProviderID:      constants.POSProviderManual,
				ExternalEventID: eventID,
				BizID:           uint(bizID),
				MerchantRef:     MerchantRef(uint(bizID)),
				CouponOrLinkRef: ref,
				OrderRef:        pos.ReadString(raw, "order_ref"),
				PaymentRef:      pos.ReadString(raw, "payment_ref"),
				OrderTotalCents: pos.ReadInt64(raw, "order_total_cents"),
				Currency:        strings.ToUpper(pos.ReadString(raw, "currency")),
				CardFingerprint: pos.ReadString(raw, "card_fingerprint"),
				DeviceHash:      pos.ReadString(raw, "device_hash"),
				IP:              pos.ReadString(raw, "ip"),
				Geo:             pos.ReadGeo(raw, "geo"),
				Timestamp:       occurredAt,
			},
		}
	case constants.LateSignalChargeback, constants.LateSignalRefund, constants.LateSignalFraudReport:
		externalID := pos.ReadString(raw, "signal_id")
		if externalID == "" {
			externalID = eventID
		}
		if externalID == "" {
			return pos.Rejected(pos.ReasonPayloadInvalid)
		}
		return pos.WebhookResult{
			Processed: true,
			EventID:   eventID,
			EventType: eventType,
			Kind:      pos.KindLateSignal,
			Signal: &pos.LateSignalEvent{
				ProviderID:  constants.POSProviderManual,
				ExternalID:  externalID,
				Kind:        eventType,
				MerchantRef: MerchantRef(uint(bizID)),
				PaymentRef:  pos.ReadString(raw, "payment_ref"),
				OrderRef:    pos.ReadString(raw, "order_ref"),
				Note:        pos.ReadString(raw, "note"),
				OccurredAt:  occurredAt,
			},
		}
	default:
		return pos.Ignored(eventID, eventType)
	}
}
