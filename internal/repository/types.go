package repository

import "time"

// OfferListFilter 查询活动列表的过滤条件
type OfferListFilter struct {
	Page       int
	PageSize   int
	BusinessID uint
	Status     string
	Keyword    string
}

// CouponListFilter 查询优惠券列表的过滤条件
type CouponListFilter struct {
	Page         int
	PageSize     int
	BusinessID   uint
	InfluencerID uint
	OfferID      uint
	Status       string
}

// RedemptionListFilter 查询核销记录列表的过滤条件
type RedemptionListFilter struct {
	Page         int
	PageSize     int
	BusinessID   uint
	InfluencerID uint
	OfferID      uint
	Provider     string
	Statuses     []string
	Decision     string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Keyword      string
}

// PayoutFilter 结算汇总的过滤条件，时间按事件发生时间筛选
type PayoutFilter struct {
	BusinessID   uint
	InfluencerID uint
	Statuses     []string
	From         *time.Time
	To           *time.Time
}

// LateSignalListFilter 查询延迟信号列表的过滤条件
type LateSignalListFilter struct {
	Page     int
	PageSize int
	Provider string
	Kind     string
	RecordID uint
}
