package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// buildLikeCondition 构建多列 OR 的模糊匹配条件，并返回参数数量。
func buildLikeCondition(db *gorm.DB, columns []string) (string, int) {
	return buildLikeConditionByDialect(dbDialectName(db), columns)
}

func buildLikeConditionByDialect(dialect string, columns []string) (string, int) {
	parts := make([]string, 0, len(columns))
	operator := likeOperatorByDialect(dialect)
	for _, column := range columns {
		trimmed := strings.TrimSpace(column)
		if trimmed == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", trimmed, operator))
	}
	return strings.Join(parts, " OR "), len(parts)
}

// postgres 的 LIKE 区分大小写
func likeOperatorByDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return "ILIKE"
	default:
		return "LIKE"
	}
}

// applyKeyword 对关键字做多列模糊匹配，关键字为空时原样返回。
func applyKeyword(query *gorm.DB, keyword string, columns ...string) *gorm.DB {
	keyword = strings.TrimSpace(keyword)
	if query == nil || keyword == "" {
		return query
	}
	condition, count := buildLikeCondition(query, columns)
	if count == 0 {
		return query
	}
	return query.Where("("+condition+")", repeatLikeArgs("%"+keyword+"%", count)...)
}

// repeatLikeArgs 生成重复的 LIKE 参数列表。
func repeatLikeArgs(like string, count int) []interface{} {
	args := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		args = append(args, like)
	}
	return args
}
