// Package fraud 实现核销事件的确定性风控判定。
//
// Evaluate 不做任何 I/O，历史数据由调用方按时间窗口查询后传入。
package fraud

import (
	"strings"
	"time"
)

// 决策动作
const (
	ActionAllow  = "allow"
	ActionReview = "review"
	ActionBlock  = "block"
)

// 风控原因
const (
	ReasonNonPositiveAmount = "non_positive_amount"
	ReasonMissingCardToken  = "missing_card_token"
	ReasonMissingDeviceHash = "missing_device_hash"
	ReasonMissingIP         = "missing_ip"
	ReasonMissingGeo        = "missing_geo"
	ReasonVelocityExceeded  = "velocity_limit_exceeded"
)

// Geo 地理位置
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Event 参与风控的事件视图
type Event struct {
	AmountCents int64
	CardToken   string
	DeviceHash  string
	IP          string
	Geo         *Geo
	Timestamp   time.Time
}

// Observation 历史核销观测值
type Observation struct {
	IP        string
	Timestamp time.Time
}

// Policy 风控阈值
type Policy struct {
	WindowMinutes int
	MaxPerWindow  int
}

// Decision 风控决策
type Decision struct {
	Action  string   `json:"action"`
	Reasons []string `json:"reasons"`
}

// Blocked 是否拦截
func (d Decision) Blocked() bool {
	return d.Action == ActionBlock
}

// Window 返回策略的时间窗口
func (p Policy) Window() time.Duration {
	if p.WindowMinutes <= 0 {
		return 0
	}
	return time.Duration(p.WindowMinutes) * time.Minute
}

// Evaluate 按顺序执行风控规则：金额、缺失信号、IP 频次
func Evaluate(event Event, history []Observation, policy Policy) Decision {
	if event.AmountCents <= 0 {
		return Decision{Action: ActionBlock, Reasons: []string{ReasonNonPositiveAmount}}
	}

	reasons := make([]string, 0, 5)
	if strings.TrimSpace(event.CardToken) == "" {
		reasons = append(reasons, ReasonMissingCardToken)
	}
	if strings.TrimSpace(event.DeviceHash) == "" {
		reasons = append(reasons, ReasonMissingDeviceHash)
	}
	ip := strings.TrimSpace(event.IP)
	if ip == "" {
		reasons = append(reasons, ReasonMissingIP)
	}
	if event.Geo == nil {
		reasons = append(reasons, ReasonMissingGeo)
	}

	if ip != "" && policy.MaxPerWindow > 0 && policy.Window() > 0 {
		if CountInWindow(ip, event.Timestamp, history, policy.Window()) >= policy.MaxPerWindow {
			reasons = append(reasons, ReasonVelocityExceeded)
			return Decision{Action: ActionBlock, Reasons: reasons}
		}
	}

	if len(reasons) > 0 {
		return Decision{Action: ActionReview, Reasons: reasons}
	}
	return Decision{Action: ActionAllow, Reasons: []string{}}
}

// CountInWindow 统计 (at-window, at] 内同一 IP 的历史次数
func CountInWindow(ip string, at time.Time, history []Observation, window time.Duration) int {
	ip = strings.TrimSpace(ip)
	if ip == "" || window <= 0 {
		return 0
	}
	from := at.Add(-window)
	count := 0
	for _, item := range history {
		if strings.TrimSpace(item.IP) != ip {
			continue
		}
		if item.Timestamp.After(from) && !item.Timestamp.After(at) {
			count++
		}
	}
	return count
}
