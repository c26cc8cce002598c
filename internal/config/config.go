package config

import (
	"fmt"
	"strings"

	"github.com/redeemly/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
	Fraud     FraudConfig     `mapstructure:"fraud"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	POS       POSConfig       `mapstructure:"pos"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// AuthConfig 看板接口鉴权配置（令牌由外部认证系统签发）
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	WebhookRateLimit RateLimitConfig `mapstructure:"webhook_rate_limit"`
	ClaimRateLimit   RateLimitConfig `mapstructure:"claim_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// FraudConfig 风控策略配置
type FraudConfig struct {
	WindowMinutes int `mapstructure:"window_minutes"`
	MaxPerWindow  int `mapstructure:"max_per_window"`
}

// ReconcileConfig 夜间对账配置
type ReconcileConfig struct {
	Schedule       string `mapstructure:"schedule"`
	Timezone       string `mapstructure:"timezone"`
	BatchSize      int    `mapstructure:"batch_size"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

// RegistryConfig 优惠码与推广链接配置
type RegistryConfig struct {
	PublicBaseURL string `mapstructure:"public_base_url"`
	CodeLength    int    `mapstructure:"code_length"`
	MaxRetry      int    `mapstructure:"max_retry"`
	FallbackURL   string `mapstructure:"fallback_url"`
}

// POSConfig POS 集成配置
type POSConfig struct {
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	MaxConcurrency int             `mapstructure:"max_concurrency"`
	RatePerSecond  float64         `mapstructure:"rate_per_second"`
	CredentialKey  string          `mapstructure:"credential_key"`
	Square         SquareConfig    `mapstructure:"square"`
	Clover         CloverConfig    `mapstructure:"clover"`
	Toast          ToastConfig     `mapstructure:"toast"`
	Manual         ManualPOSConfig `mapstructure:"manual"`
}

// SquareConfig Square 应用配置
type SquareConfig struct {
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	SignatureKey    string `mapstructure:"signature_key"`
	NotificationURL string `mapstructure:"notification_url"`
	APIBaseURL      string `mapstructure:"api_base_url"`
	OAuthBaseURL    string `mapstructure:"oauth_base_url"`
}

// CloverConfig Clover 应用配置
type CloverConfig struct {
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	WebhookAuthCode string `mapstructure:"webhook_auth_code"`
	APIBaseURL      string `mapstructure:"api_base_url"`
	OAuthBaseURL    string `mapstructure:"oauth_base_url"`
}

// ToastConfig Toast 应用配置
type ToastConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIBaseURL    string `mapstructure:"api_base_url"`
}

// ManualPOSConfig 无 POS 模式配置
type ManualPOSConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	// 本地开发可用 .env 注入环境变量，文件不存在时忽略
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	setDefaults(viper.GetViper())

	// 环境变量支持（例如 server.port -> SERVER_PORT）
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "redeemly.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/redeemly.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "rdm")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.webhook_rate_limit.window_seconds", 60)
	v.SetDefault("security.webhook_rate_limit.max_requests", 600)
	v.SetDefault("security.claim_rate_limit.window_seconds", 60)
	v.SetDefault("security.claim_rate_limit.max_requests", 30)
	v.SetDefault("fraud.window_minutes", 60)
	v.SetDefault("fraud.max_per_window", 3)
	v.SetDefault("reconcile.schedule", "0 3 * * *")
	v.SetDefault("reconcile.timezone", "UTC")
	v.SetDefault("reconcile.batch_size", 200)
	v.SetDefault("reconcile.lock_ttl_seconds", 1800)
	v.SetDefault("registry.public_base_url", "http://localhost:8080")
	v.SetDefault("registry.code_length", 8)
	v.SetDefault("registry.max_retry", 8)
	v.SetDefault("registry.fallback_url", "")
	v.SetDefault("pos.timeout_seconds", 8)
	v.SetDefault("pos.max_concurrency", 16)
	v.SetDefault("pos.rate_per_second", 10)
	v.SetDefault("pos.credential_key", "")
	v.SetDefault("pos.square.client_id", "")
	v.SetDefault("pos.square.client_secret", "")
	v.SetDefault("pos.square.signature_key", "")
	v.SetDefault("pos.square.notification_url", "")
	v.SetDefault("pos.square.api_base_url", "https://connect.squareup.com")
	v.SetDefault("pos.square.oauth_base_url", "https://connect.squareup.com")
	v.SetDefault("pos.clover.client_id", "")
	v.SetDefault("pos.clover.client_secret", "")
	v.SetDefault("pos.clover.webhook_auth_code", "")
	v.SetDefault("pos.clover.api_base_url", "https://api.clover.com")
	v.SetDefault("pos.clover.oauth_base_url", "https://www.clover.com")
	v.SetDefault("pos.toast.client_id", "")
	v.SetDefault("pos.toast.client_secret", "")
	v.SetDefault("pos.toast.webhook_secret", "")
	v.SetDefault("pos.toast.api_base_url", "https://ws-api.toasttab.com")
	v.SetDefault("pos.manual.webhook_secret", "")
}
