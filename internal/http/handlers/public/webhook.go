package public

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/i18n"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// RedemptionWebhook POS 核销回调；与其他接口不同，这里返回真实 HTTP 状态码供 POS 重试判断
func (h *Handler) RedemptionWebhook(c *gin.Context) {
	log := requestLog(c)
	provider := c.Param("provider")
	locale := i18n.ResolveLocale(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warnw("redemption_webhook_body_read_failed", "provider", provider, "error", err)
		response.WithHTTPStatus(c, http.StatusBadRequest, response.CodeBadRequest, i18n.T(locale, "error.bad_request"), nil)
		return
	}
	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	log.Debugw("redemption_webhook_received",
		"provider", provider,
		"client_ip", c.ClientIP(),
		"body_size", len(body),
	)

	result, err := h.RedemptionGateway.Ingest(c.Request.Context(), provider, pos.WebhookRequest{
		Headers:    headers,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		if !errors.Is(err, service.ErrIngestTransient) {
			log.Errorw("redemption_webhook_unexpected_error", "provider", provider, "error", err)
		}
		response.WithHTTPStatus(c, http.StatusInternalServerError, response.CodeInternal, i18n.T(locale, "error.webhook_transient"), nil)
		return
	}
	if result.Outcome == service.IngestInvalid {
		response.WithHTTPStatus(c, http.StatusBadRequest, response.CodeBadRequest, result.Reason, result)
		return
	}
	response.Success(c, result)
}
