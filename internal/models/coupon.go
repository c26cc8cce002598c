package models

import (
	"time"

	"gorm.io/gorm"
)

// Coupon 单次核销优惠券
type Coupon struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                           // 主键
	Code          string         `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`              // 优惠码
	Type          string         `gorm:"type:varchar(20);not null" json:"type"`                          // 类型（AFFILIATE/CONTENT_MEAL）
	BusinessID    uint           `gorm:"not null;index" json:"business_id"`                              // 商家ID
	InfluencerID  uint           `gorm:"not null;index" json:"influencer_id"`                            // 达人ID
	OfferID       uint           `gorm:"not null;index" json:"offer_id"`                                 // 活动ID
	Status        string         `gorm:"type:varchar(20);not null;default:'issued';index" json:"status"` // 状态
	SpendCapCents *int64         `json:"spend_cap_cents,omitempty"`                                      // 消费上限（分）
	ExpiresAt     *time.Time     `gorm:"index" json:"expires_at,omitempty"`                              // 截止时间
	ActivatedAt   *time.Time     `json:"activated_at,omitempty"`                                         // 激活时间
	RedeemedAt    *time.Time     `json:"redeemed_at,omitempty"`                                          // 核销时间
	OrderRef      string         `gorm:"type:varchar(128)" json:"order_ref"`                             // 最近一次折扣推送的订单引用
	DiscountCents int64          `gorm:"not null;default:0" json:"discount_cents"`                       // 已推送折扣（分）
	DiscountError string         `gorm:"type:varchar(512)" json:"discount_error"`                        // 折扣推送失败原因
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                        // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                                 // 软删除时间

	Offer *Offer `gorm:"foreignKey:OfferID" json:"offer,omitempty"` // 关联活动
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}

// IsExpiredAt 判断优惠券截止时间是否已过
func (c *Coupon) IsExpiredAt(now time.Time) bool {
	if c == nil {
		return true
	}
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
