package models

import "time"

// WebhookEvent Webhook 去重标记，(provider, external_event_id) 唯一
type WebhookEvent struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                                                      // 主键
	Provider        string    `gorm:"type:varchar(20);not null;index:idx_webhook_event_unique,unique" json:"provider"`           // POS 提供方
	ExternalEventID string    `gorm:"type:varchar(191);not null;index:idx_webhook_event_unique,unique" json:"external_event_id"` // 外部事件ID
	Synthetic       bool      `gorm:"not null;default:false" json:"synthetic"`                                                   // 是否为合成ID
	EventType       string    `gorm:"type:varchar(64)" json:"event_type"`                                                        // 事件类型
	Outcome         string    `gorm:"type:varchar(20);not null;index" json:"outcome"`                                            // 处理结果
	RecordID        *uint     `gorm:"index" json:"record_id,omitempty"`                                                          // 关联核销记录
	Note            string    `gorm:"type:varchar(255)" json:"note"`                                                             // 备注
	ReceivedAt      time.Time `gorm:"index;not null" json:"received_at"`                                                         // 接收时间
}

// TableName 指定表名
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
