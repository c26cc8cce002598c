package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redeemly/internal/config"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/provider"
	"github.com/redeemly/internal/service"

	"github.com/robfig/cron/v3"
)

const defaultReconcileSchedule = "0 3 * * *"

// ReconcileTrigger 触发一次对账（入队或直接执行）
type ReconcileTrigger interface {
	Trigger(ctx context.Context, runDate string, force bool) (*service.ReconcileReport, error)
}

// Scheduler 夜间对账定时器
type Scheduler struct {
	cron      *cron.Cron
	reconcile ReconcileTrigger
	timeout   time.Duration
}

// NewScheduler 按 reconcile.schedule 创建定时器；队列不可用时对账在本进程内执行
func NewScheduler(cfg config.ReconcileConfig, reconcile ReconcileTrigger) (*Scheduler, error) {
	if reconcile == nil {
		return nil, errors.New("reconcile service is nil")
	}
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = defaultReconcileSchedule
	}
	s := &Scheduler{
		reconcile: reconcile,
		timeout:   time.Duration(cfg.LockTTLSeconds) * time.Second,
	}
	s.cron = cron.New(
		cron.WithLocation(provider.ReconcileLocation(cfg.Timezone)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger.StdLogger()))),
	)
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Name 服务名称
func (s *Scheduler) Name() string {
	return "reconcile-scheduler"
}

// Start 启动定时器，阻塞到 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止定时器并等待进行中的任务
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	report, err := s.reconcile.Trigger(ctx, "", false)
	if err != nil {
		if errors.Is(err, service.ErrReconcileBusy) {
			logger.Infow("worker_reconcile_schedule_busy")
			return
		}
		logger.Errorw("worker_reconcile_schedule_failed", "error", err)
		return
	}
	logger.Infow("worker_reconcile_scheduled", "queued", report.Queued, "skipped", report.Skipped)
}
