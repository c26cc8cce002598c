package queue

import (
	"encoding/json"
	"time"

	"github.com/redeemly/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskAffiliateClick 推广点击落库任务
	TaskAffiliateClick = constants.TaskAffiliateClick
	// TaskReconcileNightly 夜间对账任务
	TaskReconcileNightly = constants.TaskReconcileNightly
)

// AffiliateClickPayload 推广点击任务载荷
type AffiliateClickPayload struct {
	ShortCode   string    `json:"short_code"`
	VisitorHash string    `json:"visitor_hash"`
	ClientIP    string    `json:"client_ip"`
	UserAgent   string    `json:"user_agent"`
	Referrer    string    `json:"referrer"`
	ClickedAt   time.Time `json:"clicked_at"`
}

// ReconcilePayload 对账任务载荷
type ReconcilePayload struct {
	RunDate string `json:"run_date"`
	Force   bool   `json:"force"`
}

// NewAffiliateClickTask 创建推广点击任务
func NewAffiliateClickTask(payload AffiliateClickPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateClick, body), nil
}

// NewReconcileTask 创建对账任务
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileNightly, body), nil
}
