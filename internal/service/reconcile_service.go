package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redeemly/internal/cache"
	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/queue"
	"github.com/redeemly/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultReconcileBatch = 200
	defaultReconcileTTL   = 30 * time.Minute
	runDateLayout         = "2006-01-02"
)

// RunLocker 跨实例互斥锁，先于数据库租约获取
type RunLocker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// RedisRunLocker 基于 Redis SET NX 的锁，Redis 未启用时总是成功
type RedisRunLocker struct{}

// Acquire 获取锁
func (RedisRunLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return cache.AcquireLock(ctx, key, owner, ttl)
}

// Release 释放锁
func (RedisRunLocker) Release(ctx context.Context, key, owner string) error {
	err := cache.ReleaseLock(ctx, key, owner)
	if errors.Is(err, cache.ErrLockNotHeld) {
		return nil
	}
	return err
}

// ReconcileQueue 对账任务入队
type ReconcileQueue interface {
	Enabled() bool
	EnqueueReconcile(payload queue.ReconcilePayload) error
}

// ReconcileOptions 对账参数
type ReconcileOptions struct {
	BatchSize int
	LockTTL   time.Duration
	Location  *time.Location
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	Run     *models.ReconcileRun `json:"run,omitempty"`
	Queued  bool                 `json:"queued"`
	Skipped bool                 `json:"skipped"`
	Reason  string               `json:"reason,omitempty"`
}

// ReconcileService 夜间对账：把临时记录推进为定稿
type ReconcileService struct {
	runs    repository.ReconcileRunRepository
	records repository.RedemptionRepository
	coupons repository.CouponRepository
	ledger  *LedgerService
	signals *LateSignalService
	locker  RunLocker
	tasks   ReconcileQueue
	opts    ReconcileOptions
	owner   string
	now     func() time.Time
}

// NewReconcileService 创建对账服务
func NewReconcileService(
	runs repository.ReconcileRunRepository,
	records repository.RedemptionRepository,
	coupons repository.CouponRepository,
	ledger *LedgerService,
	signals *LateSignalService,
	locker RunLocker,
	tasks ReconcileQueue,
	opts ReconcileOptions,
) *ReconcileService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultReconcileBatch
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultReconcileTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if locker == nil {
		locker = RedisRunLocker{}
	}
	return &ReconcileService{
		runs:    runs,
		records: records,
		coupons: coupons,
		ledger:  ledger,
		signals: signals,
		locker:  locker,
		tasks:   tasks,
		opts:    opts,
		owner:   newRunOwner(),
		now:     utcNow,
	}
}

func newRunOwner() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// RunDate 按配置时区计算运行日期
func (s *ReconcileService) RunDate(at time.Time) string {
	return at.In(s.opts.Location).Format(runDateLayout)
}

// ValidRunDate 校验日期格式
func ValidRunDate(raw string) bool {
	_, err := time.Parse(runDateLayout, raw)
	return err == nil
}

// Trigger 手动触发：队列可用时入队，否则同步执行
func (s *ReconcileService) Trigger(ctx context.Context, runDate string, force bool) (*ReconcileReport, error) {
	if runDate == "" {
		runDate = s.RunDate(s.now())
	}
	if !ValidRunDate(runDate) {
		return nil, ErrInvalidInput
	}
	if s.tasks != nil && s.tasks.Enabled() {
		err := s.tasks.EnqueueReconcile(queue.ReconcilePayload{RunDate: runDate, Force: force})
		if err == nil {
			return &ReconcileReport{Queued: true}, nil
		}
		logger.Warnw("reconcile_enqueue_failed_run_inline", "run_date", runDate, "error", err)
	}
	return s.Run(ctx, runDate, force)
}

// Run 执行一次对账。已完成的日期除非 force 否则直接跳过；失败时游标保留，下次从断点继续。
func (s *ReconcileService) Run(ctx context.Context, runDate string, force bool) (*ReconcileReport, error) {
	if runDate == "" {
		runDate = s.RunDate(s.now())
	}
	log := logger.SW("component", "reconcile", "run_date", runDate, "owner", s.owner)
	lockKey := "reconcile:" + runDate
	locked, err := s.locker.Acquire(ctx, lockKey, s.owner, s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		log.Infow("reconcile_lock_busy")
		return nil, ErrReconcileBusy
	}
	defer func() {
		if err := s.locker.Release(context.Background(), lockKey, s.owner); err != nil {
			log.Warnw("reconcile_lock_release_failed", "error", err)
		}
	}()

	now := s.now()
	run, err := s.runs.AcquireLease(runDate, s.owner, now, s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	if run == nil {
		log.Infow("reconcile_lease_busy")
		return nil, ErrReconcileBusy
	}
	if run.Status == constants.ReconcileStatusCompleted {
		if !force {
			log.Infow("reconcile_already_completed")
			return &ReconcileReport{Run: run, Skipped: true, Reason: "already_completed"}, nil
		}
		if run, err = s.runs.Reopen(runDate, s.owner, now, s.opts.LockTTL); err != nil {
			return nil, err
		}
		if run == nil {
			return nil, ErrReconcileBusy
		}
		log.Infow("reconcile_forced_rerun")
	}

	log.Infow("reconcile_started", "cursor", run.CursorID)
	cursor := run.CursorID
	for {
		if err := ctx.Err(); err != nil {
			s.abort(run, err)
			return nil, err
		}
		batch, err := s.records.ListPendingBatch(cursor, s.opts.BatchSize)
		if err != nil {
			s.abort(run, err)
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		progress, err := s.processBatch(run, batch)
		if err != nil {
			log.Errorw("reconcile_batch_failed", "cursor", cursor, "error", err)
			s.abort(run, err)
			return nil, err
		}
		cursor = progress.CursorID
		log.Debugw("reconcile_batch_done",
			"cursor", cursor,
			"processed", progress.Processed,
			"finalized", progress.Finalized,
			"blocked", progress.Blocked,
			"unresolved_review", progress.UnresolvedReview,
		)
	}

	finishedAt := s.now()
	expired, err := s.coupons.ExpireOverdue(finishedAt)
	if err != nil {
		s.abort(run, err)
		return nil, err
	}
	if err := s.runs.Complete(run.ID, s.owner, int(expired), finishedAt); err != nil {
		return nil, err
	}
	final, err := s.runs.GetByDate(runDate)
	if err != nil {
		return nil, err
	}
	log.Infow("reconcile_completed",
		"processed", final.Processed,
		"finalized", final.Finalized,
		"blocked", final.Blocked,
		"unresolved_review", final.UnresolvedReview,
		"expired_coupons", final.ExpiredCoupons,
	)
	return &ReconcileReport{Run: final}, nil
}

// processBatch 单事务处理一批：延迟信号拦截、待复核跳过、其余定稿，并推进游标
func (s *ReconcileService) processBatch(run *models.ReconcileRun, batch []models.RedemptionRecord) (repository.ReconcileProgress, error) {
	progress := repository.ReconcileProgress{CursorID: batch[len(batch)-1].ID, Processed: len(batch)}
	now := s.now()
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		finalize := make([]uint, 0, len(batch))
		for i := range batch {
			record := &batch[i]
			signal, err := s.signals.Check(tx, record)
			if err != nil {
				return err
			}
			if signal != nil {
				blocked, err := s.ledger.BlockRecord(tx, record.ID, "late_"+signal.Kind)
				if err != nil {
					return err
				}
				if blocked {
					progress.Blocked++
				}
				continue
			}
			if record.Decision == constants.FraudActionReview && !record.ReviewCleared {
				progress.UnresolvedReview++
				continue
			}
			finalize = append(finalize, record.ID)
		}
		finalized, err := s.ledger.AdvanceToFinalized(tx, finalize, now)
		if err != nil {
			return err
		}
		progress.Finalized = int(finalized)
		return s.runs.WithTx(tx).SaveProgress(run.ID, s.owner, progress, now, s.opts.LockTTL)
	})
	return progress, err
}

func (s *ReconcileService) abort(run *models.ReconcileRun, cause error) {
	if err := s.runs.Release(run.ID, s.owner, cause.Error(), s.now()); err != nil {
		logger.SW("component", "reconcile", "run_date", run.RunDate).Errorw("reconcile_release_failed", "error", err)
	}
}

// Status 当日运行与最近运行记录
func (s *ReconcileService) Status(limit int) (*models.ReconcileRun, []models.ReconcileRun, error) {
	today, err := s.runs.GetByDate(s.RunDate(s.now()))
	if err != nil {
		return nil, nil, err
	}
	recent, err := s.runs.ListRecent(limit)
	if err != nil {
		return nil, nil, err
	}
	return today, recent, nil
}
