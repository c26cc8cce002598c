package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
)

// CouponRepository 优惠券数据访问接口
type CouponRepository interface {
	GetByID(id uint) (*models.Coupon, error)
	GetByCode(code string) (*models.Coupon, error)
	Create(coupon *models.Coupon) error
	Activate(id uint, now time.Time) (int64, error)
	Redeem(id uint, eventAt time.Time) (int64, error)
	ExpireOverdue(now time.Time) (int64, error)
	SaveDiscountResult(id uint, orderRef string, discountCents int64, discountErr string, now time.Time) error
	List(filter CouponListFilter) ([]models.Coupon, int64, error)
	WithTx(tx *gorm.DB) *GormCouponRepository
}

// GormCouponRepository GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository 创建优惠券仓库
func NewCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCouponRepository) WithTx(tx *gorm.DB) *GormCouponRepository {
	if tx == nil {
		return r
	}
	return &GormCouponRepository{db: tx}
}

// GetByID 根据ID获取优惠券
func (r *GormCouponRepository) GetByID(id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.Preload("Offer").First(&coupon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// GetByCode 根据优惠码获取优惠券（含活动）
func (r *GormCouponRepository) GetByCode(code string) (*models.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	var coupon models.Coupon
	if err := r.db.Preload("Offer").Where("code = ?", code).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// Create 创建优惠券
func (r *GormCouponRepository) Create(coupon *models.Coupon) error {
	return r.db.Create(coupon).Error
}

// notExpired 未设置截止时间或尚未到期
func notExpired(query *gorm.DB, now time.Time) *gorm.DB {
	return query.Where("(expires_at IS NULL OR expires_at > ?)", now.UTC())
}

// Activate issued → active，仅在未过期时生效
func (r *GormCouponRepository) Activate(id uint, now time.Time) (int64, error) {
	query := r.db.Model(&models.Coupon{}).Where("id = ? AND status = ?", id, constants.CouponStatusIssued)
	result := notExpired(query, now).Updates(map[string]interface{}{
		"status":       constants.CouponStatusActive,
		"activated_at": now,
		"updated_at":   now,
	})
	return result.RowsAffected, result.Error
}

// Redeem 按事件发生时间条件更新为 redeemed；返回 0 表示已核销、已过期或不存在
//
// 已被过期清理的券仍接受发生在截止时间之前的延迟事件。
func (r *GormCouponRepository) Redeem(id uint, eventAt time.Time) (int64, error) {
	query := r.db.Model(&models.Coupon{}).
		Where("id = ? AND status IN ?", id, []string{
			constants.CouponStatusIssued,
			constants.CouponStatusActive,
			constants.CouponStatusExpired,
		})
	result := notExpired(query, eventAt).Updates(map[string]interface{}{
		"status":      constants.CouponStatusRedeemed,
		"redeemed_at": eventAt.UTC(),
		"updated_at":  time.Now().UTC(),
	})
	return result.RowsAffected, result.Error
}

// ExpireOverdue 将已过截止时间且未核销的优惠券置为 expired
func (r *GormCouponRepository) ExpireOverdue(now time.Time) (int64, error) {
	result := r.db.Model(&models.Coupon{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
			[]string{constants.CouponStatusIssued, constants.CouponStatusActive}, now).
		Updates(map[string]interface{}{
			"status":     constants.CouponStatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// SaveDiscountResult 记录最近一次折扣推送结果
func (r *GormCouponRepository) SaveDiscountResult(id uint, orderRef string, discountCents int64, discountErr string, now time.Time) error {
	return r.db.Model(&models.Coupon{}).Where("id = ?", id).Updates(map[string]interface{}{
		"order_ref":      orderRef,
		"discount_cents": discountCents,
		"discount_error": discountErr,
		"updated_at":     now,
	}).Error
}

// List 获取优惠券列表
func (r *GormCouponRepository) List(filter CouponListFilter) ([]models.Coupon, int64, error) {
	query := r.db.Model(&models.Coupon{})
	if filter.BusinessID > 0 {
		query = query.Where("business_id = ?", filter.BusinessID)
	}
	if filter.InfluencerID > 0 {
		query = query.Where("influencer_id = ?", filter.InfluencerID)
	}
	if filter.OfferID > 0 {
		query = query.Where("offer_id = ?", filter.OfferID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var coupons []models.Coupon
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&coupons).Error; err != nil {
		return nil, 0, err
	}
	return coupons, total, nil
}
