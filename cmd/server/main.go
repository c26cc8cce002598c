package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/redeemly/internal/app"
	"github.com/redeemly/internal/config"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	if cfg.Auth.Enabled && isWeakSecret(cfg.Auth.JWTSecret) {
		if cfg.Server.Mode == "release" {
			stdLog.Fatalf("看板 JWT secret 过弱或仍为默认值，请在生产环境中配置强随机密钥")
		}
		stdLog.Printf("警告: 看板 JWT secret 过弱或仍为默认值，建议在生产环境中更换")
	}
	if strings.TrimSpace(cfg.POS.CredentialKey) == "" {
		stdLog.Printf("警告: 未配置 pos.credential_key，POS 接入将不可用")
	}

	// 初始化数据库
	if err := ensureSQLiteDir(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		stdLog.Fatalf("创建数据库目录失败: %v", err)
	}
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Server.Mode == "debug"); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	// 自动迁移数据库表
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 解析命令行参数
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func ensureSQLiteDir(driver, dsn string) error {
	if d := strings.ToLower(strings.TrimSpace(driver)); d != "" && d != "sqlite" {
		return nil
	}
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	if strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key") {
		return true
	}
	return false
}
