package service

import (
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LateSignalService 拒付、退款、人工举报等延迟信号
type LateSignalService struct {
	repo    repository.LateSignalRepository
	records repository.RedemptionRepository
	now     func() time.Time
}

// NewLateSignalService 创建延迟信号服务
func NewLateSignalService(repo repository.LateSignalRepository, records repository.RedemptionRepository) *LateSignalService {
	return &LateSignalService{repo: repo, records: records, now: utcNow}
}

// LateSignalInput 信号输入
type LateSignalInput struct {
	Provider   string
	ExternalID string
	Kind       string
	RecordID   uint
	PaymentRef string
	OrderRef   string
	Note       string
	OccurredAt time.Time
}

// ValidSignalKind 校验信号类型
func ValidSignalKind(kind string) bool {
	switch kind {
	case constants.LateSignalChargeback, constants.LateSignalRefund, constants.LateSignalFraudReport:
		return true
	default:
		return false
	}
}

// Record 在事务内登记信号，并尽量关联到已有记录；重复信号返回 created=false
func (s *LateSignalService) Record(tx *gorm.DB, input LateSignalInput) (*models.LateSignal, bool, error) {
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	if !ValidSignalKind(kind) {
		return nil, false, ErrSignalKindInvalid
	}
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	externalID := strings.TrimSpace(input.ExternalID)
	if provider == "" || externalID == "" {
		return nil, false, ErrInvalidInput
	}
	signalRepo := s.repo.WithTx(tx)
	recordRepo := s.records.WithTx(tx)

	var recordID *uint
	if input.RecordID > 0 {
		id := input.RecordID
		recordID = &id
	} else {
		record, err := recordRepo.FindByPaymentRef(provider, input.PaymentRef)
		if err != nil {
			return nil, false, err
		}
		if record == nil {
			if record, err = recordRepo.FindByOrderRef(provider, input.OrderRef); err != nil {
				return nil, false, err
			}
		}
		if record != nil {
			id := record.ID
			recordID = &id
		}
	}
	receivedAt := input.OccurredAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	signal := &models.LateSignal{
		Provider:   provider,
		ExternalID: externalID,
		Kind:       kind,
		RecordID:   recordID,
		PaymentRef: strings.TrimSpace(input.PaymentRef),
		OrderRef:   strings.TrimSpace(input.OrderRef),
		Note:       truncateText(input.Note, 500),
		ReceivedAt: receivedAt,
	}
	created, err := signalRepo.Create(signal)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := signalRepo.GetByKey(provider, externalID)
		return existing, false, err
	}
	logger.SW("component", "late_signal", "provider", provider, "kind", kind).
		Infow("late_signal_recorded", "external_id", externalID, "record_id", recordID)
	return signal, true, nil
}

// Submit 人工提交信号；指定记录时以记录的来源为准
func (s *LateSignalService) Submit(input LateSignalInput) (*models.LateSignal, bool, error) {
	if input.RecordID > 0 {
		record, err := s.records.GetByID(input.RecordID)
		if err != nil {
			return nil, false, err
		}
		if record == nil {
			return nil, false, ErrRecordNotFound
		}
		input.Provider = record.Provider
		if input.PaymentRef == "" {
			input.PaymentRef = record.PaymentRef
		}
		if input.OrderRef == "" {
			input.OrderRef = record.OrderRef
		}
	}
	if strings.TrimSpace(input.ExternalID) == "" {
		input.ExternalID = "admin:" + uuid.NewString()
	}
	var (
		signal  *models.LateSignal
		created bool
	)
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		signal, created, err = s.Record(tx, input)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return signal, created, nil
}

// Check 查找命中记录的信号
func (s *LateSignalService) Check(tx *gorm.DB, record *models.RedemptionRecord) (*models.LateSignal, error) {
	signal, err := s.repo.WithTx(tx).FindForRecord(record)
	if err != nil || signal == nil {
		return signal, err
	}
	if signal.RecordID == nil {
		if err := s.repo.WithTx(tx).AttachRecord(signal.ID, record.ID); err != nil {
			return nil, err
		}
	}
	return signal, nil
}

// List 信号列表
func (s *LateSignalService) List(filter repository.LateSignalListFilter) ([]models.LateSignal, int64, error) {
	return s.repo.List(filter)
}
