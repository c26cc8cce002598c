package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/redeemly/internal/repository"
)

const (
	codeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultCodeLength = 8
	minCodeLength     = 7
	defaultCodeRetry  = 8
)

// CodeIssuer 生成优惠码与推广短码，去掉易混淆字符
type CodeIssuer struct {
	length   int
	maxRetry int
}

// NewCodeIssuer 创建发码器，长度不足 7 时按 7 处理
func NewCodeIssuer(length, maxRetry int) *CodeIssuer {
	if length <= 0 {
		length = defaultCodeLength
	}
	if length < minCodeLength {
		length = minCodeLength
	}
	if maxRetry <= 0 {
		maxRetry = defaultCodeRetry
	}
	return &CodeIssuer{length: length, maxRetry: maxRetry}
}

// Generate 生成一个随机码
func (c *CodeIssuer) Generate() (string, error) {
	var builder strings.Builder
	builder.Grow(c.length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < c.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(codeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}

// Issue 生成码并交给 persist 落库，唯一冲突时重试
func (c *CodeIssuer) Issue(persist func(code string) error) (string, error) {
	for i := 0; i < c.maxRetry; i++ {
		code, err := c.Generate()
		if err != nil {
			return "", err
		}
		if err := persist(code); err != nil {
			if repository.IsUniqueViolation(err) {
				continue
			}
			return "", err
		}
		return code, nil
	}
	return "", ErrCodeExhausted
}

// ValidCode 判断码是否只包含发码字母表字符
func ValidCode(code string) bool {
	if len(code) < minCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
