package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Offer 商家推广活动
type Offer struct {
	ID               uint            `gorm:"primarykey" json:"id"`                                           // 主键
	BusinessID       uint            `gorm:"not null;index" json:"business_id"`                              // 商家ID
	Title            string          `gorm:"type:varchar(255);not null" json:"title"`                        // 活动标题
	SplitPct         decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"split_pct"`          // 达人分成比例（百分比）
	MinSpendCents    int64           `gorm:"not null;default:0" json:"min_spend_cents"`                      // 最低消费（分）
	DiscountType     string          `gorm:"type:varchar(20);not null" json:"discount_type"`                 // 折扣类型（percent/fixed_amount）
	DiscountValue    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"discount_value"`    // 折扣数值（百分比或分）
	MaxDiscountCents *int64          `json:"max_discount_cents,omitempty"`                                   // 折扣上限（分）
	LandingURL       string          `gorm:"type:varchar(1024)" json:"landing_url"`                          // 落地页
	StartAt          *time.Time      `gorm:"index" json:"start_at,omitempty"`                                // 开始时间
	EndAt            *time.Time      `gorm:"index" json:"end_at,omitempty"`                                  // 结束时间
	Status           string          `gorm:"type:varchar(20);not null;default:'active';index" json:"status"` // 状态（active/paused/ended）
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt        time.Time       `gorm:"index" json:"updated_at"`                                        // 更新时间
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`                                                 // 软删除时间
}

// TableName 指定表名
func (Offer) TableName() string {
	return "offers"
}

// InWindow 判断时间是否在活动窗口内
func (o *Offer) InWindow(now time.Time) bool {
	if o == nil {
		return false
	}
	if o.StartAt != nil && now.Before(*o.StartAt) {
		return false
	}
	if o.EndAt != nil && !now.Before(*o.EndAt) {
		return false
	}
	return true
}
