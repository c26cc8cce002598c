package router

import (
	"strings"
	"sync"

	"github.com/redeemly/internal/constants"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var registerValidatorsOnce sync.Once

var posProviders = []string{
	constants.POSProviderSquare,
	constants.POSProviderClover,
	constants.POSProviderToast,
	constants.POSProviderManual,
}

var couponTypes = []string{
	constants.CouponTypeAffiliate,
	constants.CouponTypeContentMeal,
}

// RegisterValidators 注册请求绑定用的自定义校验标签
func RegisterValidators() {
	registerValidatorsOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("pos_provider", validatePOSProvider)
		_ = engine.RegisterValidation("coupon_type", validateCouponType)
	})
}

func validatePOSProvider(fl validator.FieldLevel) bool {
	return lo.Contains(posProviders, strings.ToLower(strings.TrimSpace(fl.Field().String())))
}

func validateCouponType(fl validator.FieldLevel) bool {
	return lo.Contains(couponTypes, strings.ToUpper(strings.TrimSpace(fl.Field().String())))
}
