package models

import "time"

// AffiliateClick 推广链接点击记录（仅用于分析，不参与结算）
type AffiliateClick struct {
	ID          uint      `gorm:"primarykey" json:"id"`                              // 主键
	LinkID      uint      `gorm:"not null;index" json:"link_id"`                     // 推广链接ID
	ShortCode   string    `gorm:"type:varchar(32);not null;index" json:"short_code"` // 短码
	VisitorHash string    `gorm:"type:varchar(64);index" json:"visitor_hash"`        // 访客标识
	Referrer    string    `gorm:"type:varchar(1024)" json:"referrer"`                // 来源地址
	ClientIP    string    `gorm:"type:varchar(64)" json:"client_ip"`                 // 客户端IP
	UserAgent   string    `gorm:"type:varchar(1024)" json:"user_agent"`              // 客户端UA
	ClickedAt   time.Time `gorm:"index;not null" json:"clicked_at"`                  // 点击时间
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                           // 创建时间
}

// TableName 指定表名
func (AffiliateClick) TableName() string {
	return "affiliate_clicks"
}
