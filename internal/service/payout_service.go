package service

import (
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/repository"

	"github.com/samber/lo"
)

// PayoutService 结算查询，只计算应付金额，不执行打款
type PayoutService struct {
	ledger *LedgerService
}

// NewPayoutService 创建结算查询服务
func NewPayoutService(ledger *LedgerService) *PayoutService {
	return &PayoutService{ledger: ledger}
}

// PayoutQuery 结算查询参数
type PayoutQuery struct {
	InfluencerID uint
	BusinessID   uint
	Start        *time.Time
	End          *time.Time
	Statuses     []string
	GroupBy      string
}

// PayoutSummary 汇总结果
type PayoutSummary struct {
	TotalPayableCents int64    `json:"total_payable_cents"`
	TotalAmountCents  int64    `json:"total_amount_cents"`
	Records           int64    `json:"records"`
	Statuses          []string `json:"statuses"`
}

var payoutStatuses = []string{
	constants.RedemptionStatusProvisional,
	constants.RedemptionStatusPayable,
	constants.RedemptionStatusFinalized,
	constants.RedemptionStatusPaid,
}

// ParsePayoutStatuses 解析逗号分隔的状态，默认仅 finalized
func ParsePayoutStatuses(raw string) ([]string, error) {
	parts := lo.FilterMap(strings.Split(raw, ","), func(item string, _ int) (string, bool) {
		item = strings.ToLower(strings.TrimSpace(item))
		return item, item != ""
	})
	if len(parts) == 0 {
		return []string{constants.RedemptionStatusFinalized}, nil
	}
	for _, status := range parts {
		if !lo.Contains(payoutStatuses, status) {
			return nil, ErrInvalidInput
		}
	}
	return lo.Uniq(parts), nil
}

func (s *PayoutService) filter(query PayoutQuery) (repository.PayoutFilter, error) {
	if query.Start != nil && query.End != nil && !query.Start.Before(*query.End) {
		return repository.PayoutFilter{}, ErrInvalidInput
	}
	statuses := query.Statuses
	if len(statuses) == 0 {
		statuses = []string{constants.RedemptionStatusFinalized}
	}
	return repository.PayoutFilter{
		BusinessID:   query.BusinessID,
		InfluencerID: query.InfluencerID,
		Statuses:     statuses,
		From:         query.Start,
		To:           query.End,
	}, nil
}

// Summary 应付汇总
func (s *PayoutService) Summary(query PayoutQuery) (*PayoutSummary, error) {
	filter, err := s.filter(query)
	if err != nil {
		return nil, err
	}
	agg, err := s.ledger.PayableTotal(filter)
	if err != nil {
		return nil, err
	}
	return &PayoutSummary{
		TotalPayableCents: agg.PayableCents,
		TotalAmountCents:  agg.AmountCents,
		Records:           agg.Records,
		Statuses:          filter.Statuses,
	}, nil
}

// Breakdown 分组应付汇总
func (s *PayoutService) Breakdown(query PayoutQuery) ([]repository.PayoutAggregate, error) {
	filter, err := s.filter(query)
	if err != nil {
		return nil, err
	}
	return s.ledger.PayoutBreakdown(filter, query.GroupBy)
}

// MarkPaid 记录外部打款完成
func (s *PayoutService) MarkPaid(ids []uint) (int64, error) {
	return s.ledger.MarkPaid(ids)
}
