package repository

import (
	"errors"

	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventRepository Webhook 去重标记数据访问接口
type WebhookEventRepository interface {
	Insert(event *models.WebhookEvent) (bool, error)
	GetByKey(provider, externalEventID string) (*models.WebhookEvent, error)
	UpdateOutcome(id uint, outcome string, recordID *uint, note string) error
	WithTx(tx *gorm.DB) *GormWebhookEventRepository
}

// GormWebhookEventRepository GORM 实现
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository 创建去重标记仓库
func NewWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWebhookEventRepository) WithTx(tx *gorm.DB) *GormWebhookEventRepository {
	if tx == nil {
		return r
	}
	return &GormWebhookEventRepository{db: tx}
}

// Insert 写入标记；已存在时返回 false 而不是错误（ON CONFLICT DO NOTHING 不会中断 postgres 事务）
func (r *GormWebhookEventRepository) Insert(event *models.WebhookEvent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if result.Error != nil {
		if IsUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByKey 按 (provider, external_event_id) 查询
func (r *GormWebhookEventRepository) GetByKey(provider, externalEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.Where("provider = ? AND external_event_id = ?", provider, externalEventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// UpdateOutcome 更新处理结果
func (r *GormWebhookEventRepository) UpdateOutcome(id uint, outcome string, recordID *uint, note string) error {
	updates := map[string]interface{}{
		"outcome": outcome,
		"note":    note,
	}
	if recordID != nil {
		updates["record_id"] = *recordID
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
