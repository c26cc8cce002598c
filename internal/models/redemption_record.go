package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RedemptionRecord 核销账本记录，仅允许单向状态推进
type RedemptionRecord struct {
	ID              uint            `gorm:"primarykey" json:"id"`                                                                         // 主键
	RecordNo        string          `gorm:"type:varchar(40);not null;uniqueIndex" json:"record_no"`                                       // 记录编号
	Provider        string          `gorm:"type:varchar(20);not null;index:idx_redemption_event_unique,unique" json:"provider"`           // POS 提供方
	ExternalEventID string          `gorm:"type:varchar(191);not null;index:idx_redemption_event_unique,unique" json:"external_event_id"` // 外部事件ID
	CouponID        *uint           `gorm:"index" json:"coupon_id,omitempty"`                                                             // 优惠券ID
	LinkID          *uint           `gorm:"index" json:"link_id,omitempty"`                                                               // 推广链接ID
	BusinessID      uint            `gorm:"not null;index" json:"business_id"`                                                            // 商家ID
	InfluencerID    uint            `gorm:"not null;index" json:"influencer_id"`                                                          // 达人ID
	OfferID         uint            `gorm:"not null;index" json:"offer_id"`                                                               // 活动ID
	OrderRef        string          `gorm:"type:varchar(128);index" json:"order_ref"`                                                     // 订单引用
	PaymentRef      string          `gorm:"type:varchar(128);index" json:"payment_ref"`                                                   // 支付引用
	Currency        string          `gorm:"type:varchar(8)" json:"currency"`                                                              // 币种
	AmountCents     int64           `gorm:"not null" json:"amount_cents"`                                                                 // 订单金额（分）
	DiscountCents   int64           `gorm:"not null;default:0" json:"discount_cents"`                                                     // 折扣金额（分）
	SplitPct        decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"split_pct"`                                        // 分成比例快照
	Decision        string          `gorm:"type:varchar(20);not null;index" json:"decision"`                                              // 风控决策
	Reasons         StringArray     `gorm:"type:text" json:"reasons"`                                                                     // 风控原因
	ReviewCleared   bool            `gorm:"not null;default:false" json:"review_cleared"`                                                 // 人工复核已通过
	Status          string          `gorm:"type:varchar(20);not null;index" json:"status"`                                                // 账本状态
	ClientIP        string          `gorm:"type:varchar(64);index" json:"client_ip"`                                                      // 客户端IP
	CardFingerprint string          `gorm:"type:varchar(128)" json:"card_fingerprint"`                                                    // 卡指纹
	DeviceHash      string          `gorm:"type:varchar(128)" json:"device_hash"`                                                         // 设备指纹
	GeoLat          *float64        `json:"geo_lat,omitempty"`                                                                            // 纬度
	GeoLng          *float64        `json:"geo_lng,omitempty"`                                                                            // 经度
	ErrorNote       string          `gorm:"type:varchar(512)" json:"error_note"`                                                          // 适配器软失败备注
	RefundID        string          `gorm:"type:varchar(128)" json:"refund_id"`                                                           // 退款ID
	EventAt         time.Time       `gorm:"index;not null" json:"event_at"`                                                               // 事件发生时间
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`                                                                      // 创建时间
	UpdatedAt       time.Time       `gorm:"index" json:"updated_at"`                                                                      // 更新时间
	FinalizedAt     *time.Time      `gorm:"index" json:"finalized_at,omitempty"`                                                          // 定稿时间
	PaidAt          *time.Time      `json:"paid_at,omitempty"`                                                                            // 打款确认时间
}

// TableName 指定表名
func (RedemptionRecord) TableName() string {
	return "redemption_records"
}

var hundredPct = decimal.NewFromInt(100)

// PayableCents 达人应得金额：floor(amount_cents * split_pct / 100)
func (r *RedemptionRecord) PayableCents() int64 {
	if r == nil || r.AmountCents <= 0 || r.SplitPct.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return decimal.NewFromInt(r.AmountCents).Mul(r.SplitPct).Div(hundredPct).Floor().IntPart()
}
