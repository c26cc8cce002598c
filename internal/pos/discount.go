package pos

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 折扣类型
const (
	DiscountPercent     = "percent"
	DiscountFixedAmount = "fixed_amount"
)

var hundred = decimal.NewFromInt(100)

// ClampDiscount 计算折扣金额：min(计算值, 订单金额, 上限)，且不小于 0
func ClampDiscount(discountType string, value decimal.Decimal, orderTotalCents int64, maxDiscountCents *int64) int64 {
	if orderTotalCents <= 0 || value.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	var computed decimal.Decimal
	switch strings.ToLower(strings.TrimSpace(discountType)) {
	case DiscountPercent:
		computed = decimal.NewFromInt(orderTotalCents).Mul(value).Div(hundred).Floor()
	case DiscountFixedAmount:
		computed = value.Floor()
	default:
		return 0
	}
	amount := computed.IntPart()
	if !computed.LessThan(decimal.NewFromInt(orderTotalCents)) {
		amount = orderTotalCents
	}
	if maxDiscountCents != nil {
		limit := *maxDiscountCents
		if limit < 0 {
			limit = 0
		}
		if amount > limit {
			amount = limit
		}
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// ValidDiscountType 判断折扣类型是否合法
func ValidDiscountType(discountType string) bool {
	switch strings.ToLower(strings.TrimSpace(discountType)) {
	case DiscountPercent, DiscountFixedAmount:
		return true
	default:
		return false
	}
}
