package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PosConnectionRepository 商家 POS 连接数据访问接口
type PosConnectionRepository interface {
	GetByBusinessID(businessID uint) (*models.PosConnection, error)
	GetByMerchant(provider, merchantRef string) (*models.PosConnection, error)
	Upsert(conn *models.PosConnection) error
	UpdateStatus(id uint, status, lastError string, validatedAt time.Time) error
	UpdateSecret(id uint, sealed string, now time.Time) error
	ListByStatus(statuses []string) ([]models.PosConnection, error)
	WithTx(tx *gorm.DB) *GormPosConnectionRepository
}

// GormPosConnectionRepository GORM 实现
type GormPosConnectionRepository struct {
	db *gorm.DB
}

// NewPosConnectionRepository 创建 POS 连接仓库
func NewPosConnectionRepository(db *gorm.DB) *GormPosConnectionRepository {
	return &GormPosConnectionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPosConnectionRepository) WithTx(tx *gorm.DB) *GormPosConnectionRepository {
	if tx == nil {
		return r
	}
	return &GormPosConnectionRepository{db: tx}
}

// GetByBusinessID 获取商家的 POS 连接
func (r *GormPosConnectionRepository) GetByBusinessID(businessID uint) (*models.PosConnection, error) {
	var conn models.PosConnection
	if err := r.db.Where("business_id = ?", businessID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// GetByMerchant 按提供方商户号查找连接
func (r *GormPosConnectionRepository) GetByMerchant(provider, merchantRef string) (*models.PosConnection, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	merchantRef = strings.TrimSpace(merchantRef)
	if provider == "" || merchantRef == "" {
		return nil, nil
	}
	var conn models.PosConnection
	if err := r.db.Where("provider = ? AND merchant_ref = ?", provider, merchantRef).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// Upsert 按商家ID创建或覆盖连接
func (r *GormPosConnectionRepository) Upsert(conn *models.PosConnection) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider", "merchant_ref", "sealed_secret", "status", "last_validated_at", "last_error", "updated_at",
		}),
	}).Create(conn).Error
}

// UpdateStatus 更新连接状态
func (r *GormPosConnectionRepository) UpdateStatus(id uint, status, lastError string, validatedAt time.Time) error {
	return r.db.Model(&models.PosConnection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            status,
		"last_error":        lastError,
		"last_validated_at": validatedAt,
		"updated_at":        validatedAt,
	}).Error
}

// UpdateSecret 更新加密凭据（令牌刷新后回写）
func (r *GormPosConnectionRepository) UpdateSecret(id uint, sealed string, now time.Time) error {
	return r.db.Model(&models.PosConnection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sealed_secret": sealed,
		"updated_at":    now,
	}).Error
}

// ListByStatus 按状态列出连接，空状态表示全部
func (r *GormPosConnectionRepository) ListByStatus(statuses []string) ([]models.PosConnection, error) {
	query := r.db.Model(&models.PosConnection{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []models.PosConnection
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
