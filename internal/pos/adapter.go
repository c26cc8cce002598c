// Package pos 定义 POS 适配器统一契约、折扣计算、并发隔离与注册表。
package pos

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid       = errors.New("pos config invalid")
	ErrRequestFailed       = errors.New("pos request failed")
	ErrResponseInvalid     = errors.New("pos response invalid")
	ErrSignatureInvalid    = errors.New("pos signature invalid")
	ErrNotConnected        = errors.New("pos not connected")
	ErrUnsupportedProvider = errors.New("pos provider unsupported")
	ErrTimeout             = errors.New("timeout")
	ErrAdapterPanic        = errors.New("pos adapter panic")
)

// Webhook 事件类型
const (
	KindRedemption = "redemption"
	KindLateSignal = "late_signal"
	KindOther      = "other"
)

// Webhook 解析失败原因
const (
	ReasonSignatureInvalid = "signature_invalid"
	ReasonPayloadInvalid   = "payload_invalid"
	ReasonLookupFailed     = "lookup_failed"
	ReasonNotRedemption    = "not_redemption"
	ReasonTimeout          = "timeout"
	ReasonAdapterPanic     = "adapter_panic"
)

// Adapter POS 适配器统一契约
type Adapter interface {
	Provider() string
	ValidateConnection(ctx context.Context) ValidationResult
	ApplyCouponDiscount(ctx context.Context, req DiscountRequest) DiscountResult
	CreateRefund(ctx context.Context, req RefundRequest) RefundResult
	HandleWebhook(ctx context.Context, req WebhookRequest) WebhookResult
}

// ValidationResult 连接校验结果
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// DiscountRequest 折扣推送请求
type DiscountRequest struct {
	OrderRef         string
	Code             string
	DiscountType     string
	DiscountValue    decimal.Decimal
	MaxDiscountCents *int64
	OrderTotalCents  int64
	Currency         string
}

// DiscountResult 折扣推送结果，DiscountAmount 始终在 [0, 订单金额] 内
type DiscountResult struct {
	Success        bool   `json:"success"`
	DiscountAmount int64  `json:"discount_amount"`
	Error          string `json:"error,omitempty"`
}

// RefundRequest 退款请求
type RefundRequest struct {
	PaymentRef     string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// RefundResult 退款结果
type RefundResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refund_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WebhookRequest 原始 webhook 请求
type WebhookRequest struct {
	Headers    map[string]string
	Body       []byte
	ReceivedAt time.Time
}

// WebhookResult webhook 解析结果
type WebhookResult struct {
	Processed bool
	Transient bool
	Reason    string
	EventID   string
	EventType string
	Kind      string
	Event     *RedemptionEvent
	Signal    *LateSignalEvent
}

// Geo 地理位置
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RedemptionEvent 归一化后的核销事件
type RedemptionEvent struct {
	ProviderID      string
	ExternalEventID string
	BizID           uint
	MerchantRef     string
	CouponOrLinkRef string
	OrderRef        string
	PaymentRef      string
	OrderTotalCents int64
	Currency        string
	CardFingerprint string
	DeviceHash      string
	IP              string
	Geo             *Geo
	Timestamp       time.Time
}

// LateSignalEvent 延迟风控信号（拒付等）
type LateSignalEvent struct {
	ProviderID  string
	ExternalID  string
	Kind        string
	MerchantRef string
	PaymentRef  string
	OrderRef    string
	Note        string
	OccurredAt  time.Time
}

// Ignored 构造已验证但无需处理的结果
func Ignored(eventID, eventType string) WebhookResult {
	return WebhookResult{
		Processed: true,
		Reason:    ReasonNotRedemption,
		EventID:   eventID,
		EventType: eventType,
		Kind:      KindOther,
	}
}

// Rejected 构造无法处理的结果
func Rejected(reason string) WebhookResult {
	return WebhookResult{Processed: false, Reason: reason}
}

// FailDiscount 构造失败的折扣结果
func FailDiscount(err error) DiscountResult {
	return DiscountResult{Success: false, Error: errorText(err)}
}

// FailRefund 构造失败的退款结果
func FailRefund(err error) RefundResult {
	return RefundResult{Success: false, Error: errorText(err)}
}

// FailValidation 构造失败的校验结果
func FailValidation(err error) ValidationResult {
	return ValidationResult{Valid: false, Error: errorText(err)}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout.Error()
	}
	return err.Error()
}
