package models

import (
	"time"

	"gorm.io/gorm"
)

// AffiliateLink 达人推广链接
type AffiliateLink struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                               // 主键
	BusinessID   uint           `gorm:"not null;index" json:"business_id"`                                  // 商家ID
	InfluencerID uint           `gorm:"not null;index:idx_affiliate_link_pair,unique" json:"influencer_id"` // 达人ID
	OfferID      uint           `gorm:"not null;index:idx_affiliate_link_pair,unique" json:"offer_id"`      // 活动ID
	ShortCode    string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"short_code"`            // 短码（不可变）
	UTMSource    string         `gorm:"type:varchar(128)" json:"utm_source"`                                // UTM 来源
	UTMMedium    string         `gorm:"type:varchar(128)" json:"utm_medium"`                                // UTM 媒介
	UTMCampaign  string         `gorm:"type:varchar(128)" json:"utm_campaign"`                              // UTM 活动
	Status       string         `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`     // 状态（active/paused）
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                                            // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                                     // 软删除时间

	Offer *Offer `gorm:"foreignKey:OfferID" json:"offer,omitempty"` // 关联活动
}

// TableName 指定表名
func (AffiliateLink) TableName() string {
	return "affiliate_links"
}
