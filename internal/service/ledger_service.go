package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/fraud"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/repository"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService 核销账本：写入、状态推进与汇总
type LedgerService struct {
	repo    repository.RedemptionRepository
	signals *LateSignalService
	posConn *POSConnectionService
	now     func() time.Time
}

// NewLedgerService 创建账本服务
func NewLedgerService(repo repository.RedemptionRepository, signals *LateSignalService, posConn *POSConnectionService) *LedgerService {
	return &LedgerService{repo: repo, signals: signals, posConn: posConn, now: utcNow}
}

// LedgerEntry 已完成归因的核销事件
type LedgerEntry struct {
	Event         pos.RedemptionEvent
	BusinessID    uint
	InfluencerID  uint
	OfferID       uint
	CouponID      *uint
	LinkID        *uint
	SplitPct      decimal.Decimal
	DiscountCents int64
	ErrorNote     string
}

// RefundInput 退款输入
type RefundInput struct {
	RecordID    uint
	AmountCents int64
	Reason      string
}

// NewRecordNo 生成按时间有序的记录编号
func NewRecordNo() string {
	return ulid.Make().String()
}

func (s *LedgerService) repoFor(tx *gorm.DB) repository.RedemptionRepository {
	if tx == nil {
		return s.repo
	}
	return s.repo.WithTx(tx)
}

// Create 幂等写入账本：allow/review 为 provisional，block 为 blocked
func (s *LedgerService) Create(tx *gorm.DB, entry LedgerEntry, decision fraud.Decision) (*models.RedemptionRecord, bool, error) {
	ev := entry.Event
	status := constants.RedemptionStatusProvisional
	if decision.Blocked() {
		status = constants.RedemptionStatusBlocked
	}
	eventAt := ev.Timestamp
	if eventAt.IsZero() {
		eventAt = s.now()
	}
	record := &models.RedemptionRecord{
		RecordNo:        NewRecordNo(),
		Provider:        ev.ProviderID,
		ExternalEventID: ev.ExternalEventID,
		CouponID:        entry.CouponID,
		LinkID:          entry.LinkID,
		BusinessID:      entry.BusinessID,
		InfluencerID:    entry.InfluencerID,
		OfferID:         entry.OfferID,
		OrderRef:        ev.OrderRef,
		PaymentRef:      ev.PaymentRef,
		Currency:        strings.ToUpper(ev.Currency),
		AmountCents:     ev.OrderTotalCents,
		DiscountCents:   entry.DiscountCents,
		SplitPct:        entry.SplitPct,
		Decision:        decision.Action,
		Reasons:         models.StringArray(lo.Ternary(decision.Reasons == nil, []string{}, decision.Reasons)),
		Status:          status,
		ClientIP:        ev.IP,
		CardFingerprint: ev.CardFingerprint,
		DeviceHash:      ev.DeviceHash,
		ErrorNote:       truncateText(entry.ErrorNote, 500),
		EventAt:         eventAt,
	}
	if ev.Geo != nil {
		lat, lng := ev.Geo.Lat, ev.Geo.Lng
		record.GeoLat = &lat
		record.GeoLng = &lng
	}
	repo := s.repoFor(tx)
	created, err := repo.Create(record)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := repo.GetByEvent(ev.ProviderID, ev.ExternalEventID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return record, true, nil
}

// AdvanceToFinalized 批量定稿，已定稿或已打款的记录不受影响
func (s *LedgerService) AdvanceToFinalized(tx *gorm.DB, ids []uint, now time.Time) (int64, error) {
	return s.repoFor(tx).AdvanceToFinalized(lo.Uniq(ids), now)
}

// BlockRecord 拦截记录，原因写入备注
func (s *LedgerService) BlockRecord(tx *gorm.DB, id uint, reason string) (bool, error) {
	affected, err := s.repoFor(tx).Block(id, reason, s.now())
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClearReview 人工复核通过
func (s *LedgerService) ClearReview(id uint) (*models.RedemptionRecord, error) {
	record, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	affected, err := s.repo.ClearReview(record.ID, s.now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrRecordStateConflict
	}
	logger.SW("component", "ledger", "record_id", id).Infow("redemption_review_cleared")
	return s.Get(id)
}

// RejectReview 人工复核拒绝，记录直接拦截
func (s *LedgerService) RejectReview(id uint, reason string) (*models.RedemptionRecord, error) {
	record, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if record.Decision != constants.FraudActionReview {
		return nil, ErrRecordStateConflict
	}
	if strings.TrimSpace(reason) == "" {
		reason = "review_rejected"
	}
	ok, err := s.BlockRecord(nil, id, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordStateConflict
	}
	logger.SW("component", "ledger", "record_id", id).Infow("redemption_review_rejected", "reason", reason)
	return s.Get(id)
}

// MarkPaid 确认打款
func (s *LedgerService) MarkPaid(ids []uint) (int64, error) {
	ids = lo.Uniq(lo.Filter(ids, func(id uint, _ int) bool { return id > 0 }))
	if len(ids) == 0 {
		return 0, ErrInvalidInput
	}
	affected, err := s.repo.MarkPaid(ids, s.now())
	if err != nil {
		return 0, err
	}
	logger.SW("component", "ledger").Infow("redemption_mark_paid", "requested", len(ids), "affected", affected)
	return affected, nil
}

// Get 获取记录
func (s *LedgerService) Get(id uint) (*models.RedemptionRecord, error) {
	record, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// PayableTotal 应付汇总
func (s *LedgerService) PayableTotal(filter repository.PayoutFilter) (repository.PayoutAggregate, error) {
	return s.repo.SumPayable(filter)
}

// PayoutBreakdown 按达人或商家分组的应付汇总
func (s *LedgerService) PayoutBreakdown(filter repository.PayoutFilter, groupBy string) ([]repository.PayoutAggregate, error) {
	groupBy = strings.ToLower(strings.TrimSpace(groupBy))
	if groupBy == "" {
		groupBy = "influencer"
	}
	if groupBy != "influencer" && groupBy != "business" {
		return nil, ErrGroupByInvalid
	}
	return s.repo.SumPayableGrouped(filter, groupBy)
}

// ListRecords 分页查询记录
func (s *LedgerService) ListRecords(filter repository.RedemptionListFilter) ([]models.RedemptionRecord, int64, error) {
	return s.repo.List(filter)
}

// History 速度检查所需的同 IP 历史
func (s *LedgerService) History(ip string, at time.Time, window time.Duration) ([]fraud.Observation, error) {
	if strings.TrimSpace(ip) == "" || window <= 0 {
		return []fraud.Observation{}, nil
	}
	rows, err := s.repo.ListObservationsByIP(ip, at.Add(-window), at)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(row repository.IPObservation, _ int) fraud.Observation {
		return fraud.Observation{IP: row.ClientIP, Timestamp: row.EventAt}
	}), nil
}

// Refund 通过商家 POS 退款，成功后登记退款信号
func (s *LedgerService) Refund(ctx context.Context, input RefundInput) (*models.RedemptionRecord, pos.RefundResult, error) {
	record, err := s.Get(input.RecordID)
	if err != nil {
		return nil, pos.RefundResult{}, err
	}
	if strings.TrimSpace(record.PaymentRef) == "" {
		return nil, pos.RefundResult{}, fmt.Errorf("%w: payment reference missing", ErrRefundFailed)
	}
	amount := input.AmountCents
	if amount <= 0 {
		amount = record.AmountCents
	}
	if amount > record.AmountCents {
		return nil, pos.RefundResult{}, ErrInvalidInput
	}
	adapter, _, err := s.posConn.AdapterForBusiness(ctx, record.BusinessID)
	if err != nil {
		return nil, pos.RefundResult{}, err
	}
	key := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", record.RecordNo, amount))).String()
	result := adapter.CreateRefund(ctx, pos.RefundRequest{
		PaymentRef:     record.PaymentRef,
		AmountCents:    amount,
		Currency:       record.Currency,
		Reason:         input.Reason,
		IdempotencyKey: key,
	})
	log := logger.SW("component", "ledger", "record_id", record.ID, "provider", record.Provider)
	if !result.Success {
		log.Warnw("redemption_refund_failed", "error", result.Error)
		return record, result, fmt.Errorf("%w: %s", ErrRefundFailed, result.Error)
	}
	if err := s.repo.SetRefundID(record.ID, result.RefundID, s.now()); err != nil {
		return nil, result, err
	}
	if s.signals != nil {
		if _, _, err := s.signals.Submit(LateSignalInput{
			Provider:   record.Provider,
			ExternalID: "refund:" + result.RefundID,
			Kind:       constants.LateSignalRefund,
			RecordID:   record.ID,
			PaymentRef: record.PaymentRef,
			OrderRef:   record.OrderRef,
			Note:       input.Reason,
		}); err != nil {
			log.Errorw("redemption_refund_signal_failed", "error", err)
		}
	}
	log.Infow("redemption_refunded", "refund_id", result.RefundID, "amount_cents", amount)
	updated, err := s.Get(record.ID)
	return updated, result, err
}
