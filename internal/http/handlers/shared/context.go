package shared

import (
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

const DashboardClaimsKey = "dashboard_claims"

// DashboardClaims 读取鉴权中间件写入的令牌声明；未开启鉴权时返回 nil
func DashboardClaims(c *gin.Context) *service.DashboardClaims {
	value, ok := c.Get(DashboardClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*service.DashboardClaims)
	return claims
}

// AllowBusiness 商家令牌只能操作自己的商家；管理员与未鉴权模式不受限制
func AllowBusiness(c *gin.Context, bizID uint) bool {
	claims := DashboardClaims(c)
	if claims == nil || claims.Role == service.RoleAdmin {
		return true
	}
	if claims.Role == service.RoleBusiness && claims.BusinessID == bizID {
		return true
	}
	RespondError(c, response.CodeForbidden, "error.forbidden", nil)
	return false
}

// AllowInfluencer 达人令牌只能操作自己的达人ID
func AllowInfluencer(c *gin.Context, infID uint) bool {
	claims := DashboardClaims(c)
	if claims == nil || claims.Role == service.RoleAdmin {
		return true
	}
	if claims.Role == service.RoleInfluencer && claims.InfluencerID == infID {
		return true
	}
	RespondError(c, response.CodeForbidden, "error.forbidden", nil)
	return false
}
