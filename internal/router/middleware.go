package router

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redeemly/internal/authz"
	"github.com/redeemly/internal/config"
	handlershared "github.com/redeemly/internal/http/handlers/shared"
	"github.com/redeemly/internal/http/response"
	"github.com/redeemly/internal/i18n"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"
const requestIDHeader = "X-Request-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
			"X-CSRF-Token",
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	sugar := logger.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			log.Errorw("request", "errors", c.Errors.String())
			return
		}
		log.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

// DashboardAuthMiddleware 看板接口 JWT 鉴权，未开启鉴权时直接放行
func DashboardAuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authService.Enabled() {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "error.auth_header_missing")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			abortUnauthorized(c, "error.auth_header_invalid")
			return
		}

		claims, err := authService.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, service.ErrSecretMissing) {
				logger.Errorw("dashboard_auth_secret_missing")
				abortUnauthorized(c, "error.jwt_secret_missing")
				return
			}
			abortUnauthorized(c, "error.token_invalid")
			return
		}
		c.Set(handlershared.DashboardClaimsKey, claims)
		c.Next()
	}
}

// DashboardRBACMiddleware 按令牌角色校验路由策略；admin 直接放行，未开启鉴权时不做限制
func DashboardRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := handlershared.DashboardClaims(c)
		if claims == nil || claims.Role == service.RoleAdmin {
			c.Next()
			return
		}
		if authzService == nil {
			logger.Errorw("dashboard_rbac_service_unavailable")
			abortForbidden(c)
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.EnforceRole(claims.Role, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("dashboard_rbac_enforce_failed",
				"role", claims.Role,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			abortForbidden(c)
			return
		}
		if !allowed {
			logger.Warnw("dashboard_rbac_permission_denied",
				"role", claims.Role,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

func abortForbidden(c *gin.Context) {
	response.Forbidden(c, i18n.T(i18n.ResolveLocale(c), "error.forbidden"))
	c.Abort()
}

func abortUnauthorized(c *gin.Context, key string) {
	msg := i18n.T(i18n.ResolveLocale(c), key)
	response.Unauthorized(c, msg)
	c.Abort()
}
