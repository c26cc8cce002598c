package pos

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DecodeRawMap 解析 JSON 对象
func DecodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode payload failed", ErrResponseInvalid)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is empty", ErrResponseInvalid)
	}
	return raw, nil
}

// HeaderValue 大小写不敏感地读取请求头
func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// ReadString 读取字符串字段，数字会被格式化
func ReadString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	default:
		return ""
	}
}

// ReadInt64 读取整数字段
func ReadInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil || strings.TrimSpace(key) == "" {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatVal, err := typed.Float64()
		if err != nil {
			return 0
		}
		return int64(floatVal)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// ReadFloat 读取浮点字段，不存在时返回 false
func ReadFloat(raw map[string]interface{}, key string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	switch typed := raw[key].(type) {
	case float64:
		return typed, true
	case json.Number:
		parsed, err := typed.Float64()
		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

// ReadMap 读取嵌套对象
func ReadMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	mapped, ok := raw[key].(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

// ReadSlice 读取对象数组，非对象元素会被跳过
func ReadSlice(raw map[string]interface{}, key string) []map[string]interface{} {
	if raw == nil {
		return nil
	}
	items, ok := raw[key].([]interface{})
	if !ok {
		return nil
	}
	result := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if mapped, ok := item.(map[string]interface{}); ok {
			result = append(result, mapped)
		}
	}
	return result
}

// ReadGeo 读取 {lat,lng} 结构
func ReadGeo(raw map[string]interface{}, key string) *Geo {
	node := ReadMap(raw, key)
	if node == nil {
		return nil
	}
	lat, okLat := ReadFloat(node, "lat")
	lng, okLng := ReadFloat(node, "lng")
	if !okLat || !okLng {
		return nil
	}
	return &Geo{Lat: lat, Lng: lng}
}

var refPrefixes = []string{"coupon:", "code:", "ref:", "link:"}

// NormalizeRef 规范化订单备注中的券码/短码
func NormalizeRef(raw string) string {
	ref := strings.TrimSpace(raw)
	lower := strings.ToLower(ref)
	for _, prefix := range refPrefixes {
		if strings.HasPrefix(lower, prefix) {
			ref = strings.TrimSpace(ref[len(prefix):])
			break
		}
	}
	if fields := strings.Fields(ref); len(fields) > 0 {
		ref = fields[0]
	} else {
		return ""
	}
	return strings.ToUpper(ref)
}

// ParseTime 解析 RFC3339 或 Unix 秒/毫秒时间并统一为 UTC，失败时返回 fallback
func ParseTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback.UTC()
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC()
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	return fallback.UTC()
}
