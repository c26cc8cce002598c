package admin

import (
	"strings"

	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/repository"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

// ReviewRedemptionRequest 人工复核请求
type ReviewRedemptionRequest struct {
	RecordID uint   `json:"recordId" binding:"required"`
	Action   string `json:"action" binding:"required,oneof=clear reject"`
	Reason   string `json:"reason" binding:"max=255"`
}

// ReviewRedemption 复核通过或拒绝
func (h *Handler) ReviewRedemption(c *gin.Context) {
	var req ReviewRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	var err error
	if req.Action == "clear" {
		_, err = h.LedgerService.ClearReview(req.RecordID)
	} else {
		_, err = h.LedgerService.RejectReview(req.RecordID, req.Reason)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	record, err := h.LedgerService.Get(req.RecordID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("redemption_review_handled", "record_id", req.RecordID, "action", req.Action)
	response.Success(c, record)
}

// RefundRedemptionRequest 退款请求
type RefundRedemptionRequest struct {
	RecordID    uint   `json:"recordId" binding:"required"`
	AmountCents int64  `json:"amountCents" binding:"min=0"`
	Reason      string `json:"reason" binding:"max=255"`
}

// RefundRedemption 通过商家 POS 发起退款
func (h *Handler) RefundRedemption(c *gin.Context) {
	var req RefundRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	current, err := h.LedgerService.Get(req.RecordID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !handlershared.AllowBusiness(c, current.BusinessID) {
		return
	}
	record, result, err := h.LedgerService.Refund(c.Request.Context(), service.RefundInput{
		RecordID:    req.RecordID,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"record": record, "refund": result})
}

// SubmitSignalRequest 人工登记拒付、退款或欺诈举报
type SubmitSignalRequest struct {
	Kind       string `json:"kind" binding:"required,oneof=chargeback refund fraud_report"`
	RecordID   uint   `json:"recordId"`
	Provider   string `json:"provider" binding:"omitempty,pos_provider"`
	PaymentRef string `json:"paymentRef" binding:"max=128"`
	OrderRef   string `json:"orderRef" binding:"max=128"`
	ExternalID string `json:"externalId" binding:"max=128"`
	Note       string `json:"note" binding:"max=255"`
}

// SubmitSignal 登记延迟信号，下次对账时生效
func (h *Handler) SubmitSignal(c *gin.Context) {
	var req SubmitSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.RecordID == 0 && (req.Provider == "" || (strings.TrimSpace(req.PaymentRef) == "" && strings.TrimSpace(req.OrderRef) == "")) {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	signal, created, err := h.LateSignalService.Submit(service.LateSignalInput{
		Provider:   req.Provider,
		ExternalID: req.ExternalID,
		Kind:       req.Kind,
		RecordID:   req.RecordID,
		PaymentRef: req.PaymentRef,
		OrderRef:   req.OrderRef,
		Note:       req.Note,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"signal": signal, "created": created})
}

// ListRedemptions 核销记录列表
func (h *Handler) ListRedemptions(c *gin.Context) {
	from, err := handlershared.ParseTimeQuery(c.Query("start"))
	if err != nil {
		respondBindError(c, err)
		return
	}
	to, err := handlershared.ParseTimeQuery(c.Query("end"))
	if err != nil {
		respondBindError(c, err)
		return
	}
	page, pageSize := handlershared.NormalizePagination(int(handlershared.ParseUint(c.Query("page"))), int(handlershared.ParseUint(c.Query("page_size"))))
	filter := repository.RedemptionListFilter{
		Page:         page,
		PageSize:     pageSize,
		BusinessID:   handlershared.ParseUint(c.Query("businessId")),
		InfluencerID: handlershared.ParseUint(c.Query("influencerId")),
		OfferID:      handlershared.ParseUint(c.Query("offerId")),
		Provider:     strings.ToLower(strings.TrimSpace(c.Query("provider"))),
		Decision:     strings.ToLower(strings.TrimSpace(c.Query("decision"))),
		CreatedFrom:  from,
		CreatedTo:    to,
		Keyword:      c.Query("keyword"),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		filter.Statuses = strings.Split(raw, ",")
	}
	scopeFilter(c, &filter.BusinessID, &filter.InfluencerID)
	records, total, err := h.LedgerService.ListRecords(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, records, pagination(page, pageSize, total))
}

// scopeFilter 商家与达人令牌只能看到自己的数据
func scopeFilter(c *gin.Context, bizID, infID *uint) {
	claims := handlershared.DashboardClaims(c)
	if claims == nil {
		return
	}
	switch claims.Role {
	case service.RoleBusiness:
		*bizID = claims.BusinessID
	case service.RoleInfluencer:
		*infID = claims.InfluencerID
	}
}
