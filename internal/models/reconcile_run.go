package models

import "time"

// ReconcileRun 每日对账运行记录，同时作为进度游标与运行锁
type ReconcileRun struct {
	ID               uint       `gorm:"primarykey" json:"id"`                                  // 主键
	RunDate          string     `gorm:"type:varchar(10);not null;uniqueIndex" json:"run_date"` // 运行日期（YYYY-MM-DD）
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`         // 运行状态
	CursorID         uint       `gorm:"not null;default:0" json:"cursor_id"`                   // 已处理到的记录ID
	Processed        int        `gorm:"not null;default:0" json:"processed"`                   // 已处理条数
	Finalized        int        `gorm:"not null;default:0" json:"finalized"`                   // 定稿条数
	Blocked          int        `gorm:"not null;default:0" json:"blocked"`                     // 拦截条数
	UnresolvedReview int        `gorm:"not null;default:0" json:"unresolved_review"`           // 待复核条数
	ExpiredCoupons   int        `gorm:"not null;default:0" json:"expired_coupons"`             // 过期优惠券数
	LeaseOwner       string     `gorm:"type:varchar(64)" json:"lease_owner"`                   // 锁持有者
	LeaseExpiresAt   *time.Time `json:"lease_expires_at,omitempty"`                            // 锁过期时间
	LastError        string     `gorm:"type:varchar(512)" json:"last_error"`                   // 最近错误
	StartedAt        time.Time  `gorm:"not null" json:"started_at"`                            // 开始时间
	FinishedAt       *time.Time `json:"finished_at,omitempty"`                                 // 完成时间
	UpdatedAt        time.Time  `json:"updated_at"`                                            // 更新时间
}

// TableName 指定表名
func (ReconcileRun) TableName() string {
	return "reconcile_runs"
}
