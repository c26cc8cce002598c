package public

import (
	"context"
	"net/http"
	"time"

	"github.com/redeemly/internal/cache"
	"github.com/redeemly/internal/models"

	"github.com/gin-gonic/gin"
)

// Healthz 存活与依赖检查
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "redis": "ok"}
	healthy := true
	if sqlDB, err := models.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		healthy = false
	}
	if !cache.Enabled() {
		status["redis"] = "disabled"
	} else if err := cache.Ping(ctx); err != nil {
		status["redis"] = "unavailable"
		healthy = false
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
