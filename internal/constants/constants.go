package constants

// POS 提供方常量
const (
	POSProviderSquare = "square"
	POSProviderClover = "clover"
	POSProviderToast  = "toast"
	POSProviderManual = "manual"
)

// POS 连接状态常量
const (
	POSStatusConnected    = "connected"
	POSStatusInvalid      = "invalid"
	POSStatusDisconnected = "disconnected"
)

// 活动状态常量
const (
	OfferStatusActive = "active"
	OfferStatusPaused = "paused"
	OfferStatusEnded  = "ended"
)

// 折扣类型常量
const (
	DiscountTypePercent     = "percent"
	DiscountTypeFixedAmount = "fixed_amount"
)

// 推广链接状态常量
const (
	AffiliateLinkStatusActive = "active"
	AffiliateLinkStatusPaused = "paused"
)

// 优惠券类型常量
const (
	CouponTypeAffiliate   = "AFFILIATE"
	CouponTypeContentMeal = "CONTENT_MEAL"
)

// 优惠券状态常量
const (
	CouponStatusIssued   = "issued"
	CouponStatusActive   = "active"
	CouponStatusRedeemed = "redeemed"
	CouponStatusExpired  = "expired"
)

// 核销记录状态常量
const (
	RedemptionStatusProvisional = "provisional"
	RedemptionStatusBlocked     = "blocked"
	RedemptionStatusPayable     = "payable"
	RedemptionStatusFinalized   = "finalized"
	RedemptionStatusPaid        = "paid"
)

// 风控决策常量
const (
	FraudActionAllow  = "allow"
	FraudActionReview = "review"
	FraudActionBlock  = "block"
)

// Webhook 事件处理结果常量
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeSignal    = "signal"
)

// 延迟信号类型常量
const (
	LateSignalChargeback  = "chargeback"
	LateSignalRefund      = "refund"
	LateSignalFraudReport = "fraud_report"
)

// 对账任务状态常量
const (
	ReconcileStatusRunning   = "running"
	ReconcileStatusCompleted = "completed"
)

// 异步任务常量
const (
	TaskAffiliateClick   = "affiliate:click"
	TaskReconcileNightly = "reconcile:nightly"
)

// 队列常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)
