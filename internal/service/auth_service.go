package service

import (
	"errors"
	"strings"
	"time"

	"github.com/redeemly/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// 看板角色
const (
	RoleAdmin      = "admin"
	RoleBusiness   = "business"
	RoleInfluencer = "influencer"
)

var (
	ErrTokenInvalid  = errors.New("dashboard token invalid")
	ErrSecretMissing = errors.New("dashboard jwt secret missing")
)

// DashboardClaims 看板令牌声明
type DashboardClaims struct {
	Role         string `json:"role"`
	BusinessID   uint   `json:"biz_id,omitempty"`
	InfluencerID uint   `json:"inf_id,omitempty"`
	jwt.RegisteredClaims
}

// AuthService 看板令牌校验；令牌通常由外部账号系统签发，GenerateToken 供运维脚本与测试使用
type AuthService struct {
	cfg config.AuthConfig
	now func() time.Time
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{cfg: cfg, now: utcNow}
}

// Enabled 是否开启鉴权
func (s *AuthService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// GenerateToken 签发 HS256 令牌
func (s *AuthService) GenerateToken(claims DashboardClaims, ttl time.Duration) (string, error) {
	if strings.TrimSpace(s.cfg.JWTSecret) == "" {
		return "", ErrSecretMissing
	}
	now := s.now()
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Issuer == "" {
		claims.Issuer = s.cfg.Issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ParseToken 解析并校验令牌
func (s *AuthService) ParseToken(tokenString string) (*DashboardClaims, error) {
	if strings.TrimSpace(s.cfg.JWTSecret) == "" {
		return nil, ErrSecretMissing
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if issuer := strings.TrimSpace(s.cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	claims := &DashboardClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	switch claims.Role {
	case RoleAdmin, RoleBusiness, RoleInfluencer:
	default:
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
