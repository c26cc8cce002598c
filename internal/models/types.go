package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON 通用 JSON 字段类型
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(raw, j)
}

// StringArray 字符串数组类型，用于存储风控原因等
type StringArray []string

// Value 实现 driver.Valuer 接口
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan 实现 sql.Scanner 接口
func (s *StringArray) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*s = StringArray{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
