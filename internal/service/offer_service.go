package service

import (
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/repository"

	"github.com/shopspring/decimal"
)

var maxSplitPct = decimal.NewFromInt(100)

// OfferService 商家活动管理
type OfferService struct {
	repo repository.OfferRepository
	now  func() time.Time
}

// NewOfferService 创建活动服务
func NewOfferService(repo repository.OfferRepository) *OfferService {
	return &OfferService{repo: repo, now: utcNow}
}

// CreateOfferInput 创建活动输入
type CreateOfferInput struct {
	BusinessID       uint
	Title            string
	SplitPct         decimal.Decimal
	MinSpendCents    int64
	DiscountType     string
	DiscountValue    decimal.Decimal
	MaxDiscountCents *int64
	LandingURL       string
	StartAt          *time.Time
	EndAt            *time.Time
}

// Create 创建活动
func (s *OfferService) Create(input CreateOfferInput) (*models.Offer, error) {
	if err := validateOfferInput(input); err != nil {
		return nil, err
	}
	now := s.now()
	offer := &models.Offer{
		BusinessID:       input.BusinessID,
		Title:            strings.TrimSpace(input.Title),
		SplitPct:         input.SplitPct,
		MinSpendCents:    input.MinSpendCents,
		DiscountType:     input.DiscountType,
		DiscountValue:    input.DiscountValue,
		MaxDiscountCents: input.MaxDiscountCents,
		LandingURL:       strings.TrimSpace(input.LandingURL),
		StartAt:          utcPtr(input.StartAt),
		EndAt:            utcPtr(input.EndAt),
		Status:           constants.OfferStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(offer); err != nil {
		return nil, err
	}
	return offer, nil
}

func validateOfferInput(input CreateOfferInput) error {
	if input.BusinessID == 0 || strings.TrimSpace(input.Title) == "" {
		return ErrOfferInvalid
	}
	if input.SplitPct.IsNegative() || input.SplitPct.GreaterThan(maxSplitPct) {
		return ErrOfferInvalid
	}
	if input.MinSpendCents < 0 || input.DiscountValue.IsNegative() {
		return ErrOfferInvalid
	}
	if !pos.ValidDiscountType(input.DiscountType) {
		return ErrOfferInvalid
	}
	if input.DiscountType == constants.DiscountTypePercent && input.DiscountValue.GreaterThan(maxSplitPct) {
		return ErrOfferInvalid
	}
	if input.MaxDiscountCents != nil && *input.MaxDiscountCents < 0 {
		return ErrOfferInvalid
	}
	if input.StartAt != nil && input.EndAt != nil && !input.StartAt.Before(*input.EndAt) {
		return ErrOfferInvalid
	}
	return nil
}

// UpdateStatus 切换活动状态，ended 不可恢复
func (s *OfferService) UpdateStatus(id uint, status string) (*models.Offer, error) {
	switch status {
	case constants.OfferStatusActive, constants.OfferStatusPaused, constants.OfferStatusEnded:
	default:
		return nil, ErrOfferStatusInvalid
	}
	offer, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrOfferNotFound
	}
	affected, err := s.repo.UpdateStatus(id, status, s.now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrOfferStatusInvalid
	}
	return s.repo.GetByID(id)
}

// Get 获取活动
func (s *OfferService) Get(id uint) (*models.Offer, error) {
	offer, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

// List 活动列表
func (s *OfferService) List(filter repository.OfferListFilter) ([]models.Offer, int64, error) {
	return s.repo.List(filter)
}
