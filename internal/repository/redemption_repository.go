package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const payoutScanBatch = 500

// IPObservation 速度检查使用的历史记录
type IPObservation struct {
	ClientIP string
	EventAt  time.Time
}

// PayoutAggregate 分组结算汇总
type PayoutAggregate struct {
	Key          uint  `json:"key"`
	Records      int64 `json:"records"`
	AmountCents  int64 `json:"amount_cents"`
	PayableCents int64 `json:"payable_cents"`
}

// RedemptionRepository 核销账本数据访问接口
type RedemptionRepository interface {
	Create(record *models.RedemptionRecord) (bool, error)
	GetByID(id uint) (*models.RedemptionRecord, error)
	GetByEvent(provider, externalEventID string) (*models.RedemptionRecord, error)
	FindByPaymentRef(provider, paymentRef string) (*models.RedemptionRecord, error)
	FindByOrderRef(provider, orderRef string) (*models.RedemptionRecord, error)
	ListObservationsByIP(ip string, since, until time.Time) ([]IPObservation, error)
	ListPendingBatch(afterID uint, limit int) ([]models.RedemptionRecord, error)
	AdvanceToFinalized(ids []uint, now time.Time) (int64, error)
	Block(id uint, note string, now time.Time) (int64, error)
	ClearReview(id uint, now time.Time) (int64, error)
	MarkPaid(ids []uint, now time.Time) (int64, error)
	SetRefundID(id uint, refundID string, now time.Time) error
	SumPayable(filter PayoutFilter) (PayoutAggregate, error)
	SumPayableGrouped(filter PayoutFilter, groupBy string) ([]PayoutAggregate, error)
	List(filter RedemptionListFilter) ([]models.RedemptionRecord, int64, error)
	WithTx(tx *gorm.DB) *GormRedemptionRepository
}

// GormRedemptionRepository GORM 实现
type GormRedemptionRepository struct {
	db *gorm.DB
}

// NewRedemptionRepository 创建核销账本仓库
func NewRedemptionRepository(db *gorm.DB) *GormRedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRedemptionRepository) WithTx(tx *gorm.DB) *GormRedemptionRepository {
	if tx == nil {
		return r
	}
	return &GormRedemptionRepository{db: tx}
}

// Create 幂等写入；(provider, external_event_id) 已存在时返回 false
func (r *GormRedemptionRepository) Create(record *models.RedemptionRecord) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		if IsUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormRedemptionRepository) first(query *gorm.DB) (*models.RedemptionRecord, error) {
	var record models.RedemptionRecord
	if err := query.First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByID 根据ID获取记录
func (r *GormRedemptionRepository) GetByID(id uint) (*models.RedemptionRecord, error) {
	return r.first(r.db.Where("id = ?", id))
}

// GetByEvent 按外部事件获取记录
func (r *GormRedemptionRepository) GetByEvent(provider, externalEventID string) (*models.RedemptionRecord, error) {
	return r.first(r.db.Where("provider = ? AND external_event_id = ?", provider, externalEventID))
}

// FindByPaymentRef 按支付引用查找最新记录
func (r *GormRedemptionRepository) FindByPaymentRef(provider, paymentRef string) (*models.RedemptionRecord, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return nil, nil
	}
	return r.first(r.db.Where("provider = ? AND payment_ref = ?", provider, paymentRef).Order("id desc"))
}

// FindByOrderRef 按订单引用查找最新记录
func (r *GormRedemptionRepository) FindByOrderRef(provider, orderRef string) (*models.RedemptionRecord, error) {
	if strings.TrimSpace(orderRef) == "" {
		return nil, nil
	}
	return r.first(r.db.Where("provider = ? AND order_ref = ?", provider, orderRef).Order("id desc"))
}

// ListObservationsByIP 查询 (since, until] 内同 IP 的记录
func (r *GormRedemptionRepository) ListObservationsByIP(ip string, since, until time.Time) ([]IPObservation, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return []IPObservation{}, nil
	}
	var rows []IPObservation
	if err := r.db.Model(&models.RedemptionRecord{}).
		Select("client_ip, event_at").
		Where("client_ip = ? AND event_at > ? AND event_at <= ?", ip, since.UTC(), until.UTC()).
		Order("event_at asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPendingBatch 按 ID 游标获取待对账记录
func (r *GormRedemptionRepository) ListPendingBatch(afterID uint, limit int) ([]models.RedemptionRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []models.RedemptionRecord
	if err := r.db.
		Where("status IN ? AND id > ?", []string{constants.RedemptionStatusProvisional, constants.RedemptionStatusPayable}, afterID).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AdvanceToFinalized provisional|payable → finalized；未复核通过的 review 记录不会被推进
func (r *GormRedemptionRepository) AdvanceToFinalized(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.RedemptionRecord{}).
		Where("id IN ? AND status IN ?", ids, []string{constants.RedemptionStatusProvisional, constants.RedemptionStatusPayable}).
		Where("(decision <> ? OR review_cleared = ?)", constants.FraudActionReview, true).
		Updates(map[string]interface{}{
			"status":       constants.RedemptionStatusFinalized,
			"finalized_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

// Block provisional|payable → blocked
func (r *GormRedemptionRepository) Block(id uint, note string, now time.Time) (int64, error) {
	result := r.db.Model(&models.RedemptionRecord{}).
		Where("id = ? AND status IN ?", id, []string{constants.RedemptionStatusProvisional, constants.RedemptionStatusPayable}).
		Updates(map[string]interface{}{
			"status":     constants.RedemptionStatusBlocked,
			"error_note": note,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// ClearReview 复核通过：provisional + review → payable
func (r *GormRedemptionRepository) ClearReview(id uint, now time.Time) (int64, error) {
	result := r.db.Model(&models.RedemptionRecord{}).
		Where("id = ? AND status = ? AND decision = ? AND review_cleared = ?",
			id, constants.RedemptionStatusProvisional, constants.FraudActionReview, false).
		Updates(map[string]interface{}{
			"status":         constants.RedemptionStatusPayable,
			"review_cleared": true,
			"updated_at":     now,
		})
	return result.RowsAffected, result.Error
}

// MarkPaid finalized → paid
func (r *GormRedemptionRepository) MarkPaid(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.RedemptionRecord{}).
		Where("id IN ? AND status = ?", ids, constants.RedemptionStatusFinalized).
		Updates(map[string]interface{}{
			"status":     constants.RedemptionStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// SetRefundID 记录退款ID，不改变账本状态
func (r *GormRedemptionRepository) SetRefundID(id uint, refundID string, now time.Time) error {
	return r.db.Model(&models.RedemptionRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"refund_id":  refundID,
		"updated_at": now,
	}).Error
}

func (r *GormRedemptionRepository) payoutQuery(filter PayoutFilter) *gorm.DB {
	query := r.db.Model(&models.RedemptionRecord{})
	if filter.BusinessID > 0 {
		query = query.Where("business_id = ?", filter.BusinessID)
	}
	if filter.InfluencerID > 0 {
		query = query.Where("influencer_id = ?", filter.InfluencerID)
	}
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []string{constants.RedemptionStatusFinalized}
	}
	query = query.Where("status IN ?", statuses)
	if filter.From != nil {
		query = query.Where("event_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("event_at < ?", filter.To.UTC())
	}
	return query
}

// scanPayout 分批读取并逐行向下取整，避免聚合 SQL 的浮点误差
func (r *GormRedemptionRepository) scanPayout(filter PayoutFilter, fn func(row *models.RedemptionRecord)) error {
	var batch []models.RedemptionRecord
	result := r.payoutQuery(filter).
		Select("id, business_id, influencer_id, amount_cents, split_pct").
		FindInBatches(&batch, payoutScanBatch, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				fn(&batch[i])
			}
			return nil
		})
	return result.Error
}

// SumPayable 汇总应付金额
func (r *GormRedemptionRepository) SumPayable(filter PayoutFilter) (PayoutAggregate, error) {
	var agg PayoutAggregate
	err := r.scanPayout(filter, func(row *models.RedemptionRecord) {
		agg.Records++
		agg.AmountCents += row.AmountCents
		agg.PayableCents += row.PayableCents()
	})
	return agg, err
}

// SumPayableGrouped 按达人或商家分组汇总
func (r *GormRedemptionRepository) SumPayableGrouped(filter PayoutFilter, groupBy string) ([]PayoutAggregate, error) {
	groups := make(map[uint]*PayoutAggregate)
	order := make([]uint, 0)
	err := r.scanPayout(filter, func(row *models.RedemptionRecord) {
		key := row.InfluencerID
		if groupBy == "business" {
			key = row.BusinessID
		}
		agg, ok := groups[key]
		if !ok {
			agg = &PayoutAggregate{Key: key}
			groups[key] = agg
			order = append(order, key)
		}
		agg.Records++
		agg.AmountCents += row.AmountCents
		agg.PayableCents += row.PayableCents()
	})
	if err != nil {
		return nil, err
	}
	result := make([]PayoutAggregate, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}
	return result, nil
}

// List 获取记录列表
func (r *GormRedemptionRepository) List(filter RedemptionListFilter) ([]models.RedemptionRecord, int64, error) {
	query := r.db.Model(&models.RedemptionRecord{})
	if filter.BusinessID > 0 {
		query = query.Where("business_id = ?", filter.BusinessID)
	}
	if filter.InfluencerID > 0 {
		query = query.Where("influencer_id = ?", filter.InfluencerID)
	}
	if filter.OfferID > 0 {
		query = query.Where("offer_id = ?", filter.OfferID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Decision != "" {
		query = query.Where("decision = ?", filter.Decision)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", filter.CreatedTo.UTC())
	}
	query = applyKeyword(query, filter.Keyword, "record_no", "order_ref", "payment_ref")
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.RedemptionRecord
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
