package service

import "time"

// utcNow 服务层统一使用 UTC 时间写库与比较
func utcNow() time.Time {
	return time.Now().UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
