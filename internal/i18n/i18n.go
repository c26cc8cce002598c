package i18n

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	LocaleZhCN = "zh-CN"
	LocaleEnUS = "en-US"

	DefaultLocale = LocaleZhCN
)

var messages = map[string]map[string]string{
	LocaleZhCN: zhCN,
	LocaleEnUS: enUS,
}

// ResolveLocale 依次读取 ?lang、X-Locale、Accept-Language
func ResolveLocale(c *gin.Context) string {
	if c == nil {
		return DefaultLocale
	}
	candidates := []string{c.Query("lang"), c.GetHeader("X-Locale")}
	if c.Request != nil {
		for _, part := range strings.Split(c.GetHeader("Accept-Language"), ",") {
			candidates = append(candidates, strings.SplitN(part, ";", 2)[0])
		}
	}
	for _, candidate := range candidates {
		if locale := normalize(candidate); locale != "" {
			return locale
		}
	}
	return DefaultLocale
}

func normalize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "zh"):
		return LocaleZhCN
	case strings.HasPrefix(raw, "en"):
		return LocaleEnUS
	}
	return ""
}

// T 翻译，缺失时回退默认语言，再回退 key 本身
func T(locale, key string) string {
	if table, ok := messages[locale]; ok {
		if msg, ok := table[key]; ok {
			return msg
		}
	}
	if msg, ok := messages[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Sprintf 翻译后格式化
func Sprintf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}
