package admin

import (
	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) bindPayoutQuery(c *gin.Context) (service.PayoutQuery, bool) {
	query := service.PayoutQuery{
		InfluencerID: handlershared.ParseUint(c.Query("influencerId")),
		BusinessID:   handlershared.ParseUint(c.Query("businessId")),
		GroupBy:      c.Query("groupBy"),
	}
	var err error
	if query.Start, err = handlershared.ParseTimeQuery(c.Query("start")); err != nil {
		respondBindError(c, err)
		return query, false
	}
	if query.End, err = handlershared.ParseTimeQuery(c.Query("end")); err != nil {
		respondBindError(c, err)
		return query, false
	}
	if query.Statuses, err = service.ParsePayoutStatuses(c.Query("status")); err != nil {
		respondServiceError(c, err)
		return query, false
	}
	scopeFilter(c, &query.BusinessID, &query.InfluencerID)
	return query, true
}

// PayoutSummary 应付汇总，默认只统计 finalized
func (h *Handler) PayoutSummary(c *gin.Context) {
	query, ok := h.bindPayoutQuery(c)
	if !ok {
		return
	}
	summary, err := h.PayoutService.Summary(query)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, summary)
}

// PayoutBreakdown 按达人或商家分组的应付汇总
func (h *Handler) PayoutBreakdown(c *gin.Context) {
	query, ok := h.bindPayoutQuery(c)
	if !ok {
		return
	}
	if query.GroupBy == "" {
		query.GroupBy = "influencer"
	}
	groups, err := h.PayoutService.Breakdown(query)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"group_by": query.GroupBy, "groups": groups})
}

// MarkPaidRequest 打款确认请求
type MarkPaidRequest struct {
	RecordIDs []uint `json:"recordIds" binding:"required,min=1,max=1000"`
}

// MarkPaid 记录外部打款完成，只推进 finalized 记录
func (h *Handler) MarkPaid(c *gin.Context) {
	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	updated, err := h.PayoutService.MarkPaid(req.RecordIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("payout_marked_paid", "requested", len(req.RecordIDs), "updated", updated)
	response.Success(c, gin.H{"updated": updated})
}
