package admin

import (
	"time"

	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/repository"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateOfferRequest 创建活动请求
type CreateOfferRequest struct {
	BizID            uint            `json:"bizId" binding:"required"`
	Title            string          `json:"title" binding:"required,max=255"`
	SplitPct         decimal.Decimal `json:"splitPct"`
	MinSpendCents    int64           `json:"minSpendCents" binding:"min=0"`
	DiscountType     string          `json:"discountType" binding:"required,oneof=percent fixed_amount"`
	DiscountValue    decimal.Decimal `json:"discountValue"`
	MaxDiscountCents *int64          `json:"maxDiscountCents"`
	LandingURL       string          `json:"landingUrl" binding:"omitempty,url"`
	StartAt          *time.Time      `json:"startAt"`
	EndAt            *time.Time      `json:"endAt"`
}

// CreateOffer 创建活动
func (h *Handler) CreateOffer(c *gin.Context) {
	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !handlershared.AllowBusiness(c, req.BizID) {
		return
	}
	offer, err := h.OfferService.Create(service.CreateOfferInput{
		BusinessID:       req.BizID,
		Title:            req.Title,
		SplitPct:         req.SplitPct,
		MinSpendCents:    req.MinSpendCents,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		MaxDiscountCents: req.MaxDiscountCents,
		LandingURL:       req.LandingURL,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("offer_created", "offer_id", offer.ID, "biz_id", offer.BusinessID)
	response.Success(c, offer)
}

// UpdateOfferStatusRequest 活动状态请求
type UpdateOfferStatusRequest struct {
	OfferID uint   `json:"offerId" binding:"required"`
	Status  string `json:"status" binding:"required,oneof=active paused ended"`
}

// UpdateOfferStatus 暂停、恢复或结束活动
func (h *Handler) UpdateOfferStatus(c *gin.Context) {
	var req UpdateOfferStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	offer, err := h.OfferService.Get(req.OfferID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !handlershared.AllowBusiness(c, offer.BusinessID) {
		return
	}
	updated, err := h.OfferService.UpdateStatus(req.OfferID, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, updated)
}

// ListOffers 活动列表
func (h *Handler) ListOffers(c *gin.Context) {
	bizID := handlershared.ParseUint(c.Query("businessId"))
	if claims := handlershared.DashboardClaims(c); claims != nil && claims.Role == service.RoleBusiness {
		bizID = claims.BusinessID
	}
	page, pageSize := handlershared.NormalizePagination(int(handlershared.ParseUint(c.Query("page"))), int(handlershared.ParseUint(c.Query("page_size"))))
	offers, total, err := h.OfferService.List(repository.OfferListFilter{
		Page:       page,
		PageSize:   pageSize,
		BusinessID: bizID,
		Status:     c.Query("status"),
		Keyword:    c.Query("keyword"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, offers, pagination(page, pageSize, total))
}

func pagination(page, pageSize int, total int64) response.Pagination {
	totalPage := int64(0)
	if pageSize > 0 {
		totalPage = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return response.Pagination{Page: page, PageSize: pageSize, Total: total, TotalPage: totalPage}
}
