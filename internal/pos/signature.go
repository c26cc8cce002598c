package pos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// HMACSHA256 计算 HMAC-SHA256，parts 依次写入
func HMACSHA256(secret string, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	for _, part := range parts {
		_, _ = h.Write(part)
	}
	return h.Sum(nil)
}

// VerifyBase64MAC 以常量时间比较 base64 编码的签名
func VerifyBase64MAC(expected []byte, provided string) bool {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decoded)
}

// VerifyHexMAC 以常量时间比较 hex 编码的签名
func VerifyHexMAC(expected []byte, provided string) bool {
	provided = strings.ToLower(strings.TrimSpace(provided))
	if provided == "" {
		return false
	}
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decoded)
}

// EqualSecret 以常量时间比较共享密钥
func EqualSecret(expected, provided string) bool {
	expected = strings.TrimSpace(expected)
	provided = strings.TrimSpace(provided)
	if expected == "" || provided == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(provided))
}
