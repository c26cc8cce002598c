package pos

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/oauth2"
)

var ErrCredentialSeal = errors.New("pos credential seal failed")

const nonceSize = 24

// Credentials 商户在 POS 侧的授权信息
type Credentials struct {
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	TokenType    string            `json:"token_type,omitempty"`
	Expiry       time.Time         `json:"expiry,omitempty"`
	MerchantRef  string            `json:"merchant_ref,omitempty"`
	LocationID   string            `json:"location_id,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// OAuthToken 转换为 oauth2 令牌
func (c Credentials) OAuthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// WithToken 用新令牌覆盖授权字段，空的刷新令牌沿用旧值
func (c Credentials) WithToken(tok *oauth2.Token) Credentials {
	if tok == nil {
		return c
	}
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.TokenType = tok.TokenType
	c.Expiry = tok.Expiry
	return c
}

// Sealer 使用 secretbox 加密存储凭据
type Sealer struct {
	key [32]byte
}

// NewSealer 由配置密钥派生 32 字节加密密钥
func NewSealer(secret string) (*Sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: credential key is empty", ErrConfigInvalid)
	}
	return &Sealer{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal 加密凭据
func (s *Sealer) Seal(creds Credentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialSeal, err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialSeal, err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密凭据，空串返回空凭据
func (s *Sealer) Open(sealed string) (*Credentials, error) {
	sealed = strings.TrimSpace(sealed)
	if sealed == "" {
		return &Credentials{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: malformed payload", ErrCredentialSeal)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("%w: decrypt failed", ErrCredentialSeal)
	}
	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialSeal, err)
	}
	return &creds, nil
}
