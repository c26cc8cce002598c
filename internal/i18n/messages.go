package i18n

var zhCN = map[string]string{
	"error.bad_request":              "请求参数错误",
	"error.unauthorized":             "未授权",
	"error.forbidden":                "无权访问",
	"error.not_found":                "资源不存在",
	"error.internal":                 "服务器内部错误",
	"error.rate_limited":             "请求过于频繁，请 %d 秒后再试",
	"error.rate_limit_unavailable":   "限流服务不可用",
	"error.jwt_secret_missing":       "鉴权密钥未配置",
	"error.auth_header_missing":      "缺少 Authorization 请求头",
	"error.auth_header_invalid":      "Authorization 格式错误",
	"error.token_invalid":            "令牌无效或已过期",
	"error.offer_not_found":          "活动不存在",
	"error.offer_inactive":           "活动未开启或不在有效期内",
	"error.offer_invalid":            "活动参数无效",
	"error.offer_status_invalid":     "活动状态无效",
	"error.coupon_not_found":         "优惠券不存在",
	"error.coupon_type_invalid":      "优惠券类型无效",
	"error.coupon_not_redeemable":    "优惠券不可核销",
	"error.coupon_expired":           "优惠券已过期",
	"error.coupon_business_mismatch": "优惠券不属于该商家",
	"error.min_spend_not_met":        "订单金额未达到最低消费",
	"error.link_not_found":           "推广链接不存在",
	"error.link_inactive":            "推广链接已停用",
	"error.code_exhausted":           "生成编码失败，请重试",
	"error.provider_unsupported":     "不支持的 POS 提供方",
	"error.pos_not_connected":        "商家未接入 POS",
	"error.pos_connect_failed":       "POS 接入失败",
	"error.pos_credential_key":       "凭证加密密钥未配置",
	"error.discount_failed":          "折扣推送失败",
	"error.refund_failed":            "退款失败",
	"error.record_not_found":         "核销记录不存在",
	"error.record_state_conflict":    "核销记录状态不允许此操作",
	"error.signal_kind_invalid":      "信号类型无效",
	"error.reconcile_busy":           "对账任务正在运行",
	"error.group_by_invalid":         "分组维度无效",
	"error.qr_kind_invalid":          "二维码类型无效",
	"error.webhook_transient":        "暂时无法处理，请稍后重试",
}

var enUS = map[string]string{
	"error.bad_request":              "Invalid request parameters",
	"error.unauthorized":             "Unauthorized",
	"error.forbidden":                "Forbidden",
	"error.not_found":                "Resource not found",
	"error.internal":                 "Internal server error",
	"error.rate_limited":             "Too many requests, retry in %d seconds",
	"error.rate_limit_unavailable":   "Rate limiter unavailable",
	"error.jwt_secret_missing":       "JWT secret is not configured",
	"error.auth_header_missing":      "Missing Authorization header",
	"error.auth_header_invalid":      "Malformed Authorization header",
	"error.token_invalid":            "Token is invalid or expired",
	"error.offer_not_found":          "Offer not found",
	"error.offer_inactive":           "Offer is not active",
	"error.offer_invalid":            "Invalid offer parameters",
	"error.offer_status_invalid":     "Invalid offer status",
	"error.coupon_not_found":         "Coupon not found",
	"error.coupon_type_invalid":      "Invalid coupon type",
	"error.coupon_not_redeemable":    "Coupon cannot be redeemed",
	"error.coupon_expired":           "Coupon has expired",
	"error.coupon_business_mismatch": "Coupon belongs to another business",
	"error.min_spend_not_met":        "Order total is below the minimum spend",
	"error.link_not_found":           "Affiliate link not found",
	"error.link_inactive":            "Affiliate link is paused",
	"error.code_exhausted":           "Could not allocate a unique code, retry",
	"error.provider_unsupported":     "Unsupported POS provider",
	"error.pos_not_connected":        "Business has no POS connection",
	"error.pos_connect_failed":       "POS connection failed",
	"error.pos_credential_key":       "Credential sealing key is not configured",
	"error.discount_failed":          "Discount push failed",
	"error.refund_failed":            "Refund failed",
	"error.record_not_found":         "Redemption record not found",
	"error.record_state_conflict":    "Record state does not allow this action",
	"error.signal_kind_invalid":      "Invalid signal kind",
	"error.reconcile_busy":           "Reconciliation is already running",
	"error.group_by_invalid":         "Invalid group_by value",
	"error.qr_kind_invalid":          "Invalid QR kind",
	"error.webhook_transient":        "Temporarily unavailable, retry later",
}
