package admin

import (
	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"

	"github.com/gin-gonic/gin"
)

// RunReconcileRequest 手动对账请求
type RunReconcileRequest struct {
	RunDate string `json:"runDate" binding:"omitempty,datetime=2006-01-02"`
	Force   bool   `json:"force"`
}

// RunReconcile 手动触发对账，队列可用时异步执行
func (h *Handler) RunReconcile(c *gin.Context) {
	var req RunReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	report, err := h.ReconcileService.Trigger(c.Request.Context(), req.RunDate, req.Force)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("reconcile_triggered", "run_date", req.RunDate, "force", req.Force, "queued", report.Queued)
	response.Success(c, report)
}

// ReconcileStatus 当日与最近的对账运行
func (h *Handler) ReconcileStatus(c *gin.Context) {
	today, recent, err := h.ReconcileService.Status(int(handlershared.ParseUint(c.Query("limit"))))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"today": today, "recent": recent})
}
