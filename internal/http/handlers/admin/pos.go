package admin

import (
	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

// ConnectPOSRequest POS 接入请求：OAuth 授权码或直接凭据二选一
type ConnectPOSRequest struct {
	BizID       uint              `json:"bizId" binding:"required"`
	Provider    string            `json:"provider" binding:"required,pos_provider"`
	Code        string            `json:"code"`
	RedirectURL string            `json:"redirectUrl" binding:"omitempty,url"`
	Credentials map[string]string `json:"credentials"`
}

// ConnectPOS 接入商家 POS
func (h *Handler) ConnectPOS(c *gin.Context) {
	var req ConnectPOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !handlershared.AllowBusiness(c, req.BizID) {
		return
	}
	result, err := h.POSConnectionService.Connect(c.Request.Context(), service.POSConnectInput{
		BizID:       req.BizID,
		Provider:    req.Provider,
		Code:        req.Code,
		RedirectURL: req.RedirectURL,
		Credentials: req.Credentials,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"posStatus":  result.Connection.Status,
		"provider":   result.Connection.Provider,
		"validation": result.Validation,
	})
}

// POSStatus 查询商家 POS 接入状态
func (h *Handler) POSStatus(c *gin.Context) {
	bizID := handlershared.ParseUint(c.Query("bizId"))
	if bizID == 0 {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	if !handlershared.AllowBusiness(c, bizID) {
		return
	}
	conn, err := h.POSConnectionService.Status(bizID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"posStatus":       conn.Status,
		"provider":        conn.Provider,
		"lastValidatedAt": conn.LastValidatedAt,
		"lastError":       conn.LastError,
	})
}

// ValidatePOSConnections 批量校验全部已接入的 POS 凭据
func (h *Handler) ValidatePOSConnections(c *gin.Context) {
	summary, err := h.POSConnectionService.ValidateAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, summary)
}
