package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/provider"
	"github.com/redeemly/internal/queue"
	"github.com/redeemly/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskAffiliateClick, c.handleAffiliateClick)
	mux.HandleFunc(queue.TaskReconcileNightly, c.handleReconcileNightly)
}

func (c *Consumer) handleAffiliateClick(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil {
		logger.Debugw("worker_affiliate_click_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateClickPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_click_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.ShortCode) == "" {
		logger.Debugw("worker_affiliate_click_skip_invalid_payload")
		return nil
	}
	if err := c.RegistryService.RecordClick(payload); err != nil {
		logger.Warnw("worker_affiliate_click_record_failed", "short_code", payload.ShortCode, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleReconcileNightly(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil {
		logger.Debugw("worker_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReconcilePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_reconcile_unmarshal_failed", "error", err)
			return err
		}
	}
	report, err := c.ReconcileService.Run(ctx, payload.RunDate, payload.Force)
	if err != nil {
		if errors.Is(err, service.ErrReconcileBusy) {
			// 另一实例正在处理同一日期
			logger.Infow("worker_reconcile_skip_busy", "run_date", payload.RunDate)
			return nil
		}
		logger.Errorw("worker_reconcile_failed", "run_date", payload.RunDate, "error", err)
		return err
	}
	if report.Run != nil {
		logger.Infow("worker_reconcile_done",
			"run_date", report.Run.RunDate,
			"skipped", report.Skipped,
			"processed", report.Run.Processed,
			"finalized", report.Run.Finalized,
			"blocked", report.Run.Blocked,
		)
	}
	return nil
}
