package qrcode

import (
	"errors"
	"net/url"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

// 二维码内容类型
const (
	KindCoupon = "coupon"
	KindLink   = "link"
)

const (
	defaultSize = 256
	maxSize     = 1024
)

// ErrKindInvalid 二维码类型非法
var ErrKindInvalid = errors.New("qr kind invalid")

// ValidKind 校验二维码类型
func ValidKind(kind string) bool {
	return kind == KindCoupon || kind == KindLink
}

// ImageURL 构造二维码图片地址
func ImageURL(baseURL, kind, code string) string {
	return joinURL(baseURL, "qr", kind, code)
}

// TargetURL 二维码扫码后打开的地址：优惠券查看页或推广跳转
func TargetURL(baseURL, kind, code string) (string, error) {
	switch kind {
	case KindCoupon:
		return joinURL(baseURL, "c", code), nil
	case KindLink:
		return joinURL(baseURL, "a", code), nil
	default:
		return "", ErrKindInvalid
	}
}

// PNG 渲染二维码 PNG
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return goqrcode.Encode(content, goqrcode.Medium, size)
}

func joinURL(baseURL string, parts ...string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return base + "/" + strings.Join(escaped, "/")
}
