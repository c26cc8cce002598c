package service

import "errors"

// 通用错误
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// 活动与优惠码相关错误
var (
	ErrOfferNotFound       = errors.New("offer not found")
	ErrOfferInactive       = errors.New("offer is not active")
	ErrOfferInvalid        = errors.New("offer is invalid")
	ErrOfferStatusInvalid  = errors.New("offer status transition is invalid")
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponTypeInvalid   = errors.New("coupon type is invalid")
	ErrCouponNotRedeemable = errors.New("coupon is not redeemable")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponBusiness      = errors.New("coupon does not belong to business")
	ErrMinSpendNotMet      = errors.New("order total below minimum spend")
	ErrLinkNotFound        = errors.New("affiliate link not found")
	ErrLinkInactive        = errors.New("affiliate link is paused")
	ErrCodeExhausted       = errors.New("unable to allocate unique code")
)

// POS 相关错误
var (
	ErrProviderUnsupported = errors.New("pos provider unsupported")
	ErrPOSNotConnected     = errors.New("pos not connected")
	ErrPOSConnectFailed    = errors.New("pos connect failed")
	ErrPOSCredentialKey    = errors.New("pos credential key is not configured")
	ErrDiscountFailed      = errors.New("discount push failed")
	ErrRefundFailed        = errors.New("refund failed")
)

// 账本与对账相关错误
var (
	ErrRecordNotFound      = errors.New("redemption record not found")
	ErrRecordStateConflict = errors.New("redemption record state does not allow this transition")
	ErrSignalKindInvalid   = errors.New("late signal kind is invalid")
	ErrReconcileBusy       = errors.New("reconcile run is held by another worker")
	ErrGroupByInvalid      = errors.New("group by must be influencer or business")
)
