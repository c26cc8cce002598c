package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DedupTTL webhook 去重标记保留时长，超过后由数据库唯一索引兜底
const DedupTTL = 72 * time.Hour

func dedupKey(provider, eventID string) string {
	return fmt.Sprintf("dedup:%s:%s", strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(eventID))
}

// SeenWebhook 快速判断事件是否已处理
func SeenWebhook(ctx context.Context, provider, eventID string) (bool, error) {
	if !Enabled() || strings.TrimSpace(eventID) == "" {
		return false, nil
	}
	n, err := redisClient.Exists(ctx, buildKey(dedupKey(provider, eventID))).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkWebhookSeen 事务提交后写入去重标记
func MarkWebhookSeen(ctx context.Context, provider, eventID, outcome string) error {
	if !Enabled() || strings.TrimSpace(eventID) == "" {
		return nil
	}
	return redisClient.Set(ctx, buildKey(dedupKey(provider, eventID)), outcome, DedupTTL).Err()
}
