package cache

import (
	"time"

	goCache "github.com/patrickmn/go-cache"
)

const (
	defaultMemoryTTL     = 10 * time.Minute
	defaultMemoryCleanup = 30 * time.Minute
)

// Memory 进程内缓存，用于适配器实例等不可序列化对象
type Memory struct {
	cache *goCache.Cache
}

// NewMemory 创建进程内缓存
func NewMemory(ttl, cleanup time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	if cleanup <= 0 {
		cleanup = defaultMemoryCleanup
	}
	return &Memory{cache: goCache.New(ttl, cleanup)}
}

// Get 读取缓存
func (m *Memory) Get(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	return m.cache.Get(key)
}

// Set 写入缓存，使用默认过期时间
func (m *Memory) Set(key string, value interface{}) {
	if m == nil {
		return
	}
	m.cache.SetDefault(key, value)
}

// Delete 删除缓存
func (m *Memory) Delete(key string) {
	if m == nil {
		return
	}
	m.cache.Delete(key)
}

// Len 当前条目数
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	return m.cache.ItemCount()
}
