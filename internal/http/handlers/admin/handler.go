package admin

import "github.com/redeemly/internal/provider"

// Handler 看板接口处理器入口
// 说明：该处理器用于商家、达人与运营看板 API，鉴权由路由层 JWT 中间件完成。
type Handler struct {
	*provider.Container
}

// New 创建看板处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
