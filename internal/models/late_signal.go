package models

import "time"

// LateSignal 入账后到达的延迟风控信号（拒付、退款、人工举报）
type LateSignal struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                              // 主键
	Provider   string    `gorm:"type:varchar(20);not null;index:idx_late_signal_unique,unique" json:"provider"`     // 来源
	ExternalID string    `gorm:"type:varchar(191);not null;index:idx_late_signal_unique,unique" json:"external_id"` // 外部ID
	Kind       string    `gorm:"type:varchar(20);not null;index" json:"kind"`                                       // 信号类型
	RecordID   *uint     `gorm:"index" json:"record_id,omitempty"`                                                  // 关联核销记录
	PaymentRef string    `gorm:"type:varchar(128);index" json:"payment_ref"`                                        // 支付引用
	OrderRef   string    `gorm:"type:varchar(128);index" json:"order_ref"`                                          // 订单引用
	Note       string    `gorm:"type:varchar(512)" json:"note"`                                                     // 备注
	ReceivedAt time.Time `gorm:"index;not null" json:"received_at"`                                                 // 接收时间
}

// TableName 指定表名
func (LateSignal) TableName() string {
	return "late_signals"
}
