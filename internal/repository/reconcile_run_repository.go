package repository

import (
	"errors"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconcileProgress 单批次对账进度增量
type ReconcileProgress struct {
	CursorID         uint
	Processed        int
	Finalized        int
	Blocked          int
	UnresolvedReview int
}

// ReconcileRunRepository 对账运行数据访问接口
type ReconcileRunRepository interface {
	GetByDate(runDate string) (*models.ReconcileRun, error)
	AcquireLease(runDate, owner string, now time.Time, ttl time.Duration) (*models.ReconcileRun, error)
	Reopen(runDate, owner string, now time.Time, ttl time.Duration) (*models.ReconcileRun, error)
	SaveProgress(runID uint, owner string, progress ReconcileProgress, now time.Time, ttl time.Duration) error
	Complete(runID uint, owner string, expiredCoupons int, now time.Time) error
	Release(runID uint, owner string, lastError string, now time.Time) error
	ListRecent(limit int) ([]models.ReconcileRun, error)
	WithTx(tx *gorm.DB) *GormReconcileRunRepository
}

// GormReconcileRunRepository GORM 实现
type GormReconcileRunRepository struct {
	db *gorm.DB
}

// NewReconcileRunRepository 创建对账运行仓库
func NewReconcileRunRepository(db *gorm.DB) *GormReconcileRunRepository {
	return &GormReconcileRunRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReconcileRunRepository) WithTx(tx *gorm.DB) *GormReconcileRunRepository {
	if tx == nil {
		return r
	}
	return &GormReconcileRunRepository{db: tx}
}

// GetByDate 获取指定日期的运行记录
func (r *GormReconcileRunRepository) GetByDate(runDate string) (*models.ReconcileRun, error) {
	var run models.ReconcileRun
	if err := r.db.Where("run_date = ?", runDate).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// AcquireLease 获取当日运行租约。
// 返回 nil, nil 表示租约被其他实例持有；已完成的运行原样返回，由调用方判断。
func (r *GormReconcileRunRepository) AcquireLease(runDate, owner string, now time.Time, ttl time.Duration) (*models.ReconcileRun, error) {
	expires := now.Add(ttl)
	run := &models.ReconcileRun{
		RunDate:        runDate,
		Status:         constants.ReconcileStatusRunning,
		LeaseOwner:     owner,
		LeaseExpiresAt: &expires,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(run)
	if result.Error != nil && !IsUniqueViolation(result.Error) {
		return nil, result.Error
	}
	if result.Error == nil && result.RowsAffected > 0 {
		return run, nil
	}

	existing, err := r.GetByDate(runDate)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.Status == constants.ReconcileStatusCompleted {
		return existing, nil
	}
	taken := r.db.Model(&models.ReconcileRun{}).
		Where("id = ? AND status = ?", existing.ID, constants.ReconcileStatusRunning).
		Where("(lease_owner = ? OR lease_expires_at IS NULL OR lease_expires_at < ?)", owner, now).
		Updates(map[string]interface{}{
			"lease_owner":      owner,
			"lease_expires_at": expires,
			"updated_at":       now,
		})
	if taken.Error != nil {
		return nil, taken.Error
	}
	if taken.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByDate(runDate)
}

// Reopen 强制重跑：将已完成的运行重置为 running 并从头开始
func (r *GormReconcileRunRepository) Reopen(runDate, owner string, now time.Time, ttl time.Duration) (*models.ReconcileRun, error) {
	expires := now.Add(ttl)
	result := r.db.Model(&models.ReconcileRun{}).
		Where("run_date = ? AND status = ?", runDate, constants.ReconcileStatusCompleted).
		Updates(map[string]interface{}{
			"status":            constants.ReconcileStatusRunning,
			"cursor_id":         0,
			"processed":         0,
			"finalized":         0,
			"blocked":           0,
			"unresolved_review": 0,
			"expired_coupons":   0,
			"lease_owner":       owner,
			"lease_expires_at":  expires,
			"last_error":        "",
			"finished_at":       nil,
			"updated_at":        now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	return r.AcquireLease(runDate, owner, now, ttl)
}

// SaveProgress 推进游标并累加计数，同时续约；租约不属于 owner 时返回 ErrLeaseLost
func (r *GormReconcileRunRepository) SaveProgress(runID uint, owner string, progress ReconcileProgress, now time.Time, ttl time.Duration) error {
	result := r.db.Model(&models.ReconcileRun{}).
		Where("id = ? AND lease_owner = ? AND status = ?", runID, owner, constants.ReconcileStatusRunning).
		Updates(map[string]interface{}{
			"cursor_id":         progress.CursorID,
			"processed":         gorm.Expr("processed + ?", progress.Processed),
			"finalized":         gorm.Expr("finalized + ?", progress.Finalized),
			"blocked":           gorm.Expr("blocked + ?", progress.Blocked),
			"unresolved_review": gorm.Expr("unresolved_review + ?", progress.UnresolvedReview),
			"lease_expires_at":  now.Add(ttl),
			"last_error":        "",
			"updated_at":        now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete 标记运行完成并释放租约
func (r *GormReconcileRunRepository) Complete(runID uint, owner string, expiredCoupons int, now time.Time) error {
	result := r.db.Model(&models.ReconcileRun{}).
		Where("id = ? AND lease_owner = ? AND status = ?", runID, owner, constants.ReconcileStatusRunning).
		Updates(map[string]interface{}{
			"status":           constants.ReconcileStatusCompleted,
			"expired_coupons":  expiredCoupons,
			"lease_owner":      "",
			"lease_expires_at": nil,
			"finished_at":      now,
			"updated_at":       now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release 失败时释放租约并记录错误，游标保持不变
func (r *GormReconcileRunRepository) Release(runID uint, owner string, lastError string, now time.Time) error {
	if len(lastError) > 500 {
		lastError = lastError[:500]
	}
	return r.db.Model(&models.ReconcileRun{}).
		Where("id = ? AND lease_owner = ?", runID, owner).
		Updates(map[string]interface{}{
			"lease_owner":      "",
			"lease_expires_at": nil,
			"last_error":       lastError,
			"updated_at":       now,
		}).Error
}

// ListRecent 获取最近的运行记录
func (r *GormReconcileRunRepository) ListRecent(limit int) ([]models.ReconcileRun, error) {
	if limit <= 0 {
		limit = 7
	}
	var runs []models.ReconcileRun
	if err := r.db.Order("run_date desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
