package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
)

// AffiliateRepository 推广链接与点击数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetLinkByID(id uint) (*models.AffiliateLink, error)
	GetLinkByShortCode(code string) (*models.AffiliateLink, error)
	GetLinkByPair(influencerID, offerID uint) (*models.AffiliateLink, error)
	CreateLink(link *models.AffiliateLink) error

	CreateClick(click *models.AffiliateClick) error
	HasRecentClick(linkID uint, visitorHash string, since time.Time) (bool, error)
	CountClicksByLink(linkID uint) (int64, error)
}

// GormAffiliateRepository GORM 推广仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// Transaction 开启事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// GetLinkByID 根据ID获取推广链接
func (r *GormAffiliateRepository) GetLinkByID(id uint) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := r.db.Preload("Offer").First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetLinkByShortCode 根据短码获取推广链接（含活动）
func (r *GormAffiliateRepository) GetLinkByShortCode(code string) (*models.AffiliateLink, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var link models.AffiliateLink
	if err := r.db.Preload("Offer").Where("short_code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetLinkByPair 按达人+活动获取推广链接
func (r *GormAffiliateRepository) GetLinkByPair(influencerID, offerID uint) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := r.db.Where("influencer_id = ? AND offer_id = ?", influencerID, offerID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// CreateLink 创建推广链接
func (r *GormAffiliateRepository) CreateLink(link *models.AffiliateLink) error {
	return r.db.Create(link).Error
}

// CreateClick 写入点击记录
func (r *GormAffiliateRepository) CreateClick(click *models.AffiliateClick) error {
	return r.db.Create(click).Error
}

// HasRecentClick 查询同一访客近期是否已有点击
func (r *GormAffiliateRepository) HasRecentClick(linkID uint, visitorHash string, since time.Time) (bool, error) {
	if linkID == 0 || strings.TrimSpace(visitorHash) == "" {
		return false, nil
	}
	var total int64
	if err := r.db.Model(&models.AffiliateClick{}).
		Where("link_id = ? AND visitor_hash = ? AND clicked_at >= ?", linkID, strings.TrimSpace(visitorHash), since).
		Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// CountClicksByLink 统计链接点击数
func (r *GormAffiliateRepository) CountClicksByLink(linkID uint) (int64, error) {
	if linkID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.AffiliateClick{}).Where("link_id = ?", linkID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
