package app

import (
	"errors"

	"github.com/redeemly/internal/config"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/provider"
	"github.com/redeemly/internal/router"
	"github.com/redeemly/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		httpService := NewHTTPService(addr, engine)
		services = append(services, httpService)
	}

	// 初始化 Worker 服务；队列未启用时只跑定时对账，对账在本进程内执行
	if mode == ModeAll || mode == ModeWorker {
		if cfg.Queue.Enabled {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Warnw("app_queue_disabled_worker_skipped", "mode", mode)
		}
		scheduler, err := worker.NewScheduler(cfg.Reconcile, container.ReconcileService)
		if err != nil {
			return nil, err
		}
		services = append(services, scheduler)
	}

	// 如果没有服务被启动（例如模式错误或配置导致都没起），应该报错或至少打日志
	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
