package repository

import (
	"errors"
	"strings"

	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LateSignalRepository 延迟信号数据访问接口
type LateSignalRepository interface {
	Create(signal *models.LateSignal) (bool, error)
	GetByKey(provider, externalID string) (*models.LateSignal, error)
	FindForRecord(record *models.RedemptionRecord) (*models.LateSignal, error)
	AttachRecord(id, recordID uint) error
	List(filter LateSignalListFilter) ([]models.LateSignal, int64, error)
	WithTx(tx *gorm.DB) *GormLateSignalRepository
}

// GormLateSignalRepository GORM 实现
type GormLateSignalRepository struct {
	db *gorm.DB
}

// NewLateSignalRepository 创建延迟信号仓库
func NewLateSignalRepository(db *gorm.DB) *GormLateSignalRepository {
	return &GormLateSignalRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLateSignalRepository) WithTx(tx *gorm.DB) *GormLateSignalRepository {
	if tx == nil {
		return r
	}
	return &GormLateSignalRepository{db: tx}
}

// Create 幂等写入；(provider, external_id) 已存在时返回 false
func (r *GormLateSignalRepository) Create(signal *models.LateSignal) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(signal)
	if result.Error != nil {
		if IsUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByKey 按外部ID获取信号
func (r *GormLateSignalRepository) GetByKey(provider, externalID string) (*models.LateSignal, error) {
	var signal models.LateSignal
	if err := r.db.Where("provider = ? AND external_id = ?", provider, externalID).First(&signal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &signal, nil
}

// FindForRecord 查找命中核销记录的信号：直接关联，或同来源下支付/订单引用一致
func (r *GormLateSignalRepository) FindForRecord(record *models.RedemptionRecord) (*models.LateSignal, error) {
	if record == nil || record.ID == 0 {
		return nil, nil
	}
	query := r.db.Model(&models.LateSignal{})
	cond := r.db.Where("record_id = ?", record.ID)
	if ref := strings.TrimSpace(record.PaymentRef); ref != "" {
		cond = cond.Or("provider = ? AND payment_ref = ?", record.Provider, ref)
	}
	if ref := strings.TrimSpace(record.OrderRef); ref != "" {
		cond = cond.Or("provider = ? AND order_ref = ?", record.Provider, ref)
	}
	var signal models.LateSignal
	if err := query.Where(cond).Order("id asc").First(&signal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &signal, nil
}

// AttachRecord 关联核销记录，仅在尚未关联时写入
func (r *GormLateSignalRepository) AttachRecord(id, recordID uint) error {
	return r.db.Model(&models.LateSignal{}).
		Where("id = ? AND record_id IS NULL", id).
		Update("record_id", recordID).Error
}

// List 获取信号列表
func (r *GormLateSignalRepository) List(filter LateSignalListFilter) ([]models.LateSignal, int64, error) {
	query := r.db.Model(&models.LateSignal{})
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.RecordID > 0 {
		query = query.Where("record_id = ?", filter.RecordID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.LateSignal
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
