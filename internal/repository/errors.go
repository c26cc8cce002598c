package repository

import (
	"errors"
	"strings"
)

// ErrLeaseLost 对账租约已被其他实例接管
var ErrLeaseLost = errors.New("reconcile lease lost")

// IsUniqueViolation 判断是否为唯一索引冲突，兼容 sqlite 与 postgres 的错误文本
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
