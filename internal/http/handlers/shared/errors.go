package shared

import (
	"errors"

	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/qrcode"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// ServiceErrorRules 服务层哨兵错误映射表
var ServiceErrorRules = []MappedError{
	{Target: service.ErrInvalidInput, Code: response.CodeBadRequest, Key: "error.bad_request"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.not_found"},
	{Target: service.ErrOfferNotFound, Code: response.CodeNotFound, Key: "error.offer_not_found"},
	{Target: service.ErrOfferInactive, Code: response.CodeBadRequest, Key: "error.offer_inactive"},
	{Target: service.ErrOfferInvalid, Code: response.CodeBadRequest, Key: "error.offer_invalid"},
	{Target: service.ErrOfferStatusInvalid, Code: response.CodeBadRequest, Key: "error.offer_status_invalid"},
	{Target: service.ErrCouponNotFound, Code: response.CodeNotFound, Key: "error.coupon_not_found"},
	{Target: service.ErrCouponTypeInvalid, Code: response.CodeBadRequest, Key: "error.coupon_type_invalid"},
	{Target: service.ErrCouponNotRedeemable, Code: response.CodeBadRequest, Key: "error.coupon_not_redeemable"},
	{Target: service.ErrCouponExpired, Code: response.CodeBadRequest, Key: "error.coupon_expired"},
	{Target: service.ErrCouponBusiness, Code: response.CodeForbidden, Key: "error.coupon_business_mismatch"},
	{Target: service.ErrMinSpendNotMet, Code: response.CodeBadRequest, Key: "error.min_spend_not_met"},
	{Target: service.ErrLinkNotFound, Code: response.CodeNotFound, Key: "error.link_not_found"},
	{Target: service.ErrLinkInactive, Code: response.CodeBadRequest, Key: "error.link_inactive"},
	{Target: service.ErrCodeExhausted, Code: response.CodeConflict, Key: "error.code_exhausted"},
	{Target: service.ErrProviderUnsupported, Code: response.CodeBadRequest, Key: "error.provider_unsupported"},
	{Target: service.ErrPOSNotConnected, Code: response.CodeBadRequest, Key: "error.pos_not_connected"},
	{Target: service.ErrPOSConnectFailed, Code: response.CodeBadGateway, Key: "error.pos_connect_failed"},
	{Target: service.ErrPOSCredentialKey, Code: response.CodeInternal, Key: "error.pos_credential_key"},
	{Target: service.ErrDiscountFailed, Code: response.CodeBadGateway, Key: "error.discount_failed"},
	{Target: service.ErrRefundFailed, Code: response.CodeBadGateway, Key: "error.refund_failed"},
	{Target: service.ErrRecordNotFound, Code: response.CodeNotFound, Key: "error.record_not_found"},
	{Target: service.ErrRecordStateConflict, Code: response.CodeConflict, Key: "error.record_state_conflict"},
	{Target: service.ErrSignalKindInvalid, Code: response.CodeBadRequest, Key: "error.signal_kind_invalid"},
	{Target: service.ErrReconcileBusy, Code: response.CodeConflict, Key: "error.reconcile_busy"},
	{Target: service.ErrGroupByInvalid, Code: response.CodeBadRequest, Key: "error.group_by_invalid"},
	{Target: qrcode.ErrKindInvalid, Code: response.CodeBadRequest, Key: "error.qr_kind_invalid"},
}

// RespondMappedError 按规则表返回错误；未命中时记录原始错误并返回 fallback
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Key, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}

// RespondServiceError 使用服务层映射表
func RespondServiceError(c *gin.Context, err error) {
	RespondMappedError(c, err, ServiceErrorRules, response.CodeInternal, "error.internal")
}
