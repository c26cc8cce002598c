package models

import (
	"time"

	"gorm.io/gorm"
)

// PosConnection 商家 POS 连接
type PosConnection struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                                               // 主键
	BusinessID      uint           `gorm:"not null;uniqueIndex" json:"business_id"`                                            // 商家ID
	Provider        string         `gorm:"type:varchar(20);not null;index:idx_pos_connection_merchant,unique" json:"provider"` // POS 提供方
	MerchantRef     string         `gorm:"type:varchar(128);index:idx_pos_connection_merchant,unique" json:"merchant_ref"`     // 提供方商户/门店标识
	SealedSecret    string         `gorm:"type:text" json:"-"`                                                                 // 加密后的凭据
	Status          string         `gorm:"type:varchar(20);not null;index" json:"status"`                                      // 连接状态
	LastValidatedAt *time.Time     `json:"last_validated_at,omitempty"`                                                        // 最近校验时间
	LastError       string         `gorm:"type:varchar(512)" json:"last_error"`                                                // 最近错误
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                                            // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                                            // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                                     // 软删除时间
}

// TableName 指定表名
func (PosConnection) TableName() string {
	return "pos_connections"
}
