package admin

import (
	"time"

	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

// ClaimCouponRequest 达人领券请求
type ClaimCouponRequest struct {
	OfferID       uint       `json:"offerId" binding:"required"`
	InfID         uint       `json:"infId" binding:"required"`
	Type          string     `json:"type" binding:"omitempty,coupon_type"`
	SpendCapCents *int64     `json:"spendCapCents" binding:"omitempty,min=0"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

// ClaimCouponResponse 领券响应
type ClaimCouponResponse struct {
	CouponID uint   `json:"couponId"`
	Code     string `json:"code"`
	QRURL    string `json:"qrUrl"`
	URL      string `json:"url"`
}

// ClaimCoupon 发放并激活优惠券；CONTENT_MEAL 等非默认类型只发放不激活
func (h *Handler) ClaimCoupon(c *gin.Context) {
	var req ClaimCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !handlershared.AllowInfluencer(c, req.InfID) {
		return
	}
	var (
		issued *service.IssuedCoupon
		err    error
	)
	if req.Type == "" && req.SpendCapCents == nil && req.ExpiresAt == nil {
		issued, err = h.RegistryService.ClaimCoupon(req.OfferID, req.InfID)
	} else {
		issued, err = h.RegistryService.IssueCoupon(service.IssueCouponInput{
			OfferID:       req.OfferID,
			InfluencerID:  req.InfID,
			Type:          req.Type,
			SpendCapCents: req.SpendCapCents,
			ExpiresAt:     req.ExpiresAt,
		})
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, ClaimCouponResponse{
		CouponID: issued.Coupon.ID,
		Code:     issued.Code,
		QRURL:    issued.QRURL,
		URL:      issued.URL,
	})
}

// CreateLinkRequest 推广链接请求
type CreateLinkRequest struct {
	OfferID     uint   `json:"offerId" binding:"required"`
	InfID       uint   `json:"infId" binding:"required"`
	UTMSource   string `json:"utmSource" binding:"max=128"`
	UTMMedium   string `json:"utmMedium" binding:"max=128"`
	UTMCampaign string `json:"utmCampaign" binding:"max=128"`
}

// CreateLinkResponse 推广链接响应
type CreateLinkResponse struct {
	ShortURL string `json:"shortUrl"`
	QRURL    string `json:"qrUrl"`
	Token    string `json:"token"`
	Created  bool   `json:"created"`
}

// CreateLink 创建推广链接，同一达人同一活动重复调用返回已有链接
func (h *Handler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !handlershared.AllowInfluencer(c, req.InfID) {
		return
	}
	link, err := h.RegistryService.IssueAffiliateLink(service.IssueLinkInput{
		OfferID:      req.OfferID,
		InfluencerID: req.InfID,
		UTMSource:    req.UTMSource,
		UTMMedium:    req.UTMMedium,
		UTMCampaign:  req.UTMCampaign,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, CreateLinkResponse{
		ShortURL: link.ShortURL,
		QRURL:    link.QRURL,
		Token:    link.ShortCode,
		Created:  link.Created,
	})
}

// ApplyCouponRequest 折扣推送请求
type ApplyCouponRequest struct {
	BizID           uint   `json:"bizId" binding:"required"`
	Code            string `json:"code" binding:"required,min=7,max=32"`
	OrderRef        string `json:"orderRef" binding:"required,max=128"`
	OrderTotalCents int64  `json:"orderTotalCents" binding:"required,gt=0"`
	Currency        string `json:"currency" binding:"omitempty,len=3"`
}

// ApplyCoupon 通过商家 POS 推送折扣；失败不自动重试，重复调用即人工重试
func (h *Handler) ApplyCoupon(c *gin.Context) {
	var req ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !handlershared.AllowBusiness(c, req.BizID) {
		return
	}
	result, err := h.RegistryService.ApplyDiscount(c.Request.Context(), service.ApplyDiscountInput{
		BizID:           req.BizID,
		Code:            req.Code,
		OrderRef:        req.OrderRef,
		OrderTotalCents: req.OrderTotalCents,
		Currency:        req.Currency,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
