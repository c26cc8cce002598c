package public

import "github.com/redeemly/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器用于 POS 回调、短链跳转、券页与二维码等无需登录的接口。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
