package public

import (
	"errors"
	"net/http"
	"strings"

	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/qrcode"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

// AffiliateRedirect 推广短链跳转；点击记录异步写入，不影响跳转
func (h *Handler) AffiliateRedirect(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	target, link, err := h.RegistryService.ResolveRedirect(token)
	if err != nil {
		if !errors.Is(err, service.ErrLinkNotFound) && !errors.Is(err, service.ErrLinkInactive) {
			requestLog(c).Errorw("affiliate_redirect_resolve_failed", "token", token, "error", err)
		}
		c.Redirect(http.StatusFound, target)
		return
	}
	h.RegistryService.TrackClick(service.ClickInput{
		ShortCode: link.ShortCode,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	})
	c.Redirect(http.StatusFound, target)
}

// ViewCoupon 券页数据，首次查看时激活
func (h *Handler) ViewCoupon(c *gin.Context) {
	view, err := h.RegistryService.ViewCoupon(strings.ToUpper(strings.TrimSpace(c.Param("code"))))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, view)
}

// QRCode 渲染券码或短链二维码 PNG
func (h *Handler) QRCode(c *gin.Context) {
	kind := strings.ToLower(strings.TrimSpace(c.Param("kind")))
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if !service.ValidCode(code) {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	target, err := qrcode.TargetURL(h.Config.Registry.PublicBaseURL, kind, code)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	size := int(handlershared.ParseUint(c.Query("size")))
	png, err := qrcode.PNG(target, size)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/png", png)
}
