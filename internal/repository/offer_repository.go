package repository

import (
	"errors"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
)

// OfferRepository 活动数据访问接口
type OfferRepository interface {
	GetByID(id uint) (*models.Offer, error)
	Create(offer *models.Offer) error
	UpdateStatus(id uint, status string, now time.Time) (int64, error)
	List(filter OfferListFilter) ([]models.Offer, int64, error)
	WithTx(tx *gorm.DB) *GormOfferRepository
}

// GormOfferRepository GORM 实现
type GormOfferRepository struct {
	db *gorm.DB
}

// NewOfferRepository 创建活动仓库
func NewOfferRepository(db *gorm.DB) *GormOfferRepository {
	return &GormOfferRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOfferRepository) WithTx(tx *gorm.DB) *GormOfferRepository {
	if tx == nil {
		return r
	}
	return &GormOfferRepository{db: tx}
}

// GetByID 根据ID获取活动
func (r *GormOfferRepository) GetByID(id uint) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.First(&offer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}

// Create 创建活动
func (r *GormOfferRepository) Create(offer *models.Offer) error {
	return r.db.Create(offer).Error
}

// UpdateStatus 更新活动状态，ended 为终态
func (r *GormOfferRepository) UpdateStatus(id uint, status string, now time.Time) (int64, error) {
	result := r.db.Model(&models.Offer{}).
		Where("id = ? AND status <> ?", id, constants.OfferStatusEnded).
		Updates(map[string]interface{}{"status": status, "updated_at": now})
	return result.RowsAffected, result.Error
}

// List 获取活动列表
func (r *GormOfferRepository) List(filter OfferListFilter) ([]models.Offer, int64, error) {
	query := r.db.Model(&models.Offer{})
	if filter.BusinessID > 0 {
		query = query.Where("business_id = ?", filter.BusinessID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = applyKeyword(query, filter.Keyword, "title", "landing_url")
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var offers []models.Offer
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&offers).Error; err != nil {
		return nil, 0, err
	}
	return offers, total, nil
}
