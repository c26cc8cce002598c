package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redeemly/internal/cache"
	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/fraud"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/pos/manual"
	"github.com/redeemly/internal/repository"

	"gorm.io/gorm"
)

// 入站处理结果
const (
	IngestProcessed = "processed"
	IngestDuplicate = "duplicate"
	IngestIgnored   = "ignored"
	IngestRejected  = "rejected"
	IngestSignal    = "signal"
	IngestInvalid   = "invalid"
)

// 拒绝原因
const (
	rejectUnknownMerchant   = "unknown_merchant"
	rejectUnknownRef        = "unknown_ref"
	rejectBusinessMismatch  = "business_mismatch"
	rejectLinkInactive      = "link_inactive"
	rejectOfferMissing      = "offer_missing"
	rejectCouponUnavailable = "coupon_not_redeemable"
	rejectSignalInvalid     = "signal_invalid"
)

// ErrIngestTransient 暂时性失败，提供方应重投
var ErrIngestTransient = errors.New("transient ingestion failure")

// IngestResult 入站处理结果
type IngestResult struct {
	Outcome   string          `json:"outcome"`
	Provider  string          `json:"provider"`
	EventID   string          `json:"event_id,omitempty"`
	Synthetic bool            `json:"synthetic,omitempty"`
	RecordID  uint            `json:"record_id,omitempty"`
	Decision  *fraud.Decision `json:"decision,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// RedemptionGateway Webhook 入站：验签、去重、风控、入账
type RedemptionGateway struct {
	posConn  *POSConnectionService
	registry *RegistryService
	ledger   *LedgerService
	signals  *LateSignalService
	markers  repository.WebhookEventRepository
	coupons  repository.CouponRepository
	policy   fraud.Policy
	now      func() time.Time
}

// NewRedemptionGateway 创建入站网关
func NewRedemptionGateway(
	posConn *POSConnectionService,
	registry *RegistryService,
	ledger *LedgerService,
	signals *LateSignalService,
	markers repository.WebhookEventRepository,
	coupons repository.CouponRepository,
	policy fraud.Policy,
) *RedemptionGateway {
	return &RedemptionGateway{
		posConn:  posConn,
		registry: registry,
		ledger:   ledger,
		signals:  signals,
		markers:  markers,
		coupons:  coupons,
		policy:   policy,
		now:      utcNow,
	}
}

// Ingest 处理一次 webhook 投递。返回错误仅表示暂时性失败。
func (g *RedemptionGateway) Ingest(ctx context.Context, provider string, req pos.WebhookRequest) (*IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = g.now()
	}
	log := logger.SW("component", "redemption_gateway", "provider", provider)

	adapter, err := g.posConn.WebhookAdapter(provider)
	if err != nil {
		if errors.Is(err, ErrProviderUnsupported) {
			return &IngestResult{Outcome: IngestInvalid, Provider: provider, Reason: "unknown_provider"}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIngestTransient, err)
	}
	res := adapter.HandleWebhook(ctx, req)
	if !res.Processed {
		if res.Transient {
			log.Warnw("redemption_webhook_transient", "reason", res.Reason)
			return nil, fmt.Errorf("%w: %s", ErrIngestTransient, res.Reason)
		}
		log.Warnw("redemption_webhook_invalid", "reason", res.Reason)
		return &IngestResult{Outcome: IngestInvalid, Provider: provider, Reason: res.Reason}, nil
	}

	result := &IngestResult{Provider: provider}
	result.EventID, result.Synthetic = resolveEventID(provider, res, req)
	seen, err := cache.SeenWebhook(ctx, provider, result.EventID)
	if err != nil {
		log.Warnw("redemption_webhook_dedup_cache_error", "error", err)
	}
	if seen {
		result.Outcome = IngestDuplicate
		log.Debugw("redemption_webhook_duplicate", "event_id", result.EventID, "source", "cache")
		return result, nil
	}

	switch {
	case res.Kind == pos.KindRedemption && res.Event != nil:
		err = g.ingestRedemption(ctx, res, result)
	case res.Kind == pos.KindLateSignal && res.Signal != nil:
		err = g.ingestSignal(res, result)
	default:
		err = g.ingestIgnored(res, result)
	}
	if err != nil {
		log.Errorw("redemption_webhook_store_failed", "event_id", result.EventID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrIngestTransient, err)
	}

	if err := cache.MarkWebhookSeen(ctx, provider, result.EventID, result.Outcome); err != nil {
		log.Warnw("redemption_webhook_dedup_mark_failed", "event_id", result.EventID, "error", err)
	}
	log.Infow("redemption_webhook_"+result.Outcome,
		"event_id", result.EventID,
		"synthetic", result.Synthetic,
		"record_id", result.RecordID,
		"reason", result.Reason,
	)
	return result, nil
}

// resolveEventID 外部事件ID缺失时由签名、时间戳与正文摘要合成
func resolveEventID(provider string, res pos.WebhookResult, req pos.WebhookRequest) (string, bool) {
	if res.Event != nil && strings.TrimSpace(res.Event.ExternalEventID) != "" {
		return strings.TrimSpace(res.Event.ExternalEventID), false
	}
	if id := strings.TrimSpace(res.EventID); id != "" {
		return id, false
	}
	bodySum := sha256.Sum256(req.Body)
	keys := make([]string, 0, len(req.Headers))
	for key := range req.Headers {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "signature") || strings.Contains(lower, "timestamp") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	parts := []string{provider}
	for _, key := range keys {
		parts = append(parts, req.Headers[key])
	}
	parts = append(parts, hex.EncodeToString(bodySum[:]))
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "syn_" + hex.EncodeToString(sum[:]), true
}

func (g *RedemptionGateway) newMarker(res pos.WebhookResult, result *IngestResult, outcome, note string) *models.WebhookEvent {
	return &models.WebhookEvent{
		Provider:        result.Provider,
		ExternalEventID: result.EventID,
		Synthetic:       result.Synthetic,
		EventType:       truncateText(res.EventType, 64),
		Outcome:         outcome,
		Note:            truncateText(note, 250),
		ReceivedAt:      g.now(),
	}
}

func (g *RedemptionGateway) ingestIgnored(res pos.WebhookResult, result *IngestResult) error {
	inserted, err := g.markers.Insert(g.newMarker(res, result, constants.WebhookOutcomeIgnored, res.Reason))
	if err != nil {
		return err
	}
	result.Outcome = IngestIgnored
	if !inserted {
		result.Outcome = IngestDuplicate
	}
	result.Reason = res.Reason
	return nil
}

func (g *RedemptionGateway) ingestSignal(res pos.WebhookResult, result *IngestResult) error {
	sig := res.Signal
	if !ValidSignalKind(sig.Kind) || strings.TrimSpace(sig.ExternalID) == "" {
		result.Reason = rejectSignalInvalid
		return g.rejectWithMarker(res, result)
	}
	return models.DB.Transaction(func(tx *gorm.DB) error {
		inserted, err := g.markers.WithTx(tx).Insert(g.newMarker(res, result, constants.WebhookOutcomeSignal, sig.Kind))
		if err != nil {
			return err
		}
		if !inserted {
			result.Outcome = IngestDuplicate
			return nil
		}
		if _, _, err := g.signals.Record(tx, LateSignalInput{
			Provider:   result.Provider,
			ExternalID: sig.ExternalID,
			Kind:       sig.Kind,
			PaymentRef: sig.PaymentRef,
			OrderRef:   sig.OrderRef,
			Note:       sig.Note,
			OccurredAt: sig.OccurredAt,
		}); err != nil {
			return err
		}
		result.Outcome = IngestSignal
		result.Reason = sig.Kind
		return nil
	})
}

func (g *RedemptionGateway) rejectWithMarker(res pos.WebhookResult, result *IngestResult) error {
	inserted, err := g.markers.Insert(g.newMarker(res, result, constants.WebhookOutcomeRejected, result.Reason))
	if err != nil {
		return err
	}
	result.Outcome = IngestRejected
	if !inserted {
		result.Outcome = IngestDuplicate
	}
	return nil
}

// attribution 事件归因结果
type attribution struct {
	businessID uint
	coupon     *models.Coupon
	link       *models.AffiliateLink
	offer      *models.Offer
}

func (g *RedemptionGateway) attribute(res pos.WebhookResult) (*attribution, string, error) {
	ev := res.Event
	attr := &attribution{}
	merchantRef := strings.TrimSpace(ev.MerchantRef)
	if merchantRef == "" && ev.BizID > 0 && ev.ProviderID == constants.POSProviderManual {
		merchantRef = manual.MerchantRef(ev.BizID)
	}
	conn, err := g.posConn.ResolveBusiness(ev.ProviderID, merchantRef)
	if err != nil {
		return nil, "", err
	}
	if conn == nil || conn.Status == constants.POSStatusDisconnected {
		return nil, rejectUnknownMerchant, nil
	}
	attr.businessID = conn.BusinessID

	coupon, link, err := g.registry.ResolveRef(ev.CouponOrLinkRef)
	if err != nil {
		return nil, "", err
	}
	switch {
	case coupon != nil:
		attr.coupon = coupon
		attr.offer = coupon.Offer
		if coupon.BusinessID != attr.businessID {
			return nil, rejectBusinessMismatch, nil
		}
	case link != nil:
		attr.link = link
		attr.offer = link.Offer
		if link.BusinessID != attr.businessID {
			return nil, rejectBusinessMismatch, nil
		}
		if link.Status != constants.AffiliateLinkStatusActive {
			return nil, rejectLinkInactive, nil
		}
	default:
		return nil, rejectUnknownRef, nil
	}
	if attr.offer == nil {
		return nil, rejectOfferMissing, nil
	}
	return attr, "", nil
}

func (g *RedemptionGateway) ingestRedemption(ctx context.Context, res pos.WebhookResult, result *IngestResult) error {
	ev := *res.Event
	ev.ProviderID = result.Provider
	ev.ExternalEventID = result.EventID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = g.now()
	}
	// sqlite 按文本比较时间，入库前统一为 UTC
	ev.Timestamp = ev.Timestamp.UTC()
	res.Event = &ev

	attr, reject, err := g.attribute(res)
	if err != nil {
		return err
	}
	if reject != "" {
		result.Reason = reject
		return g.rejectWithMarker(res, result)
	}

	// 历史在写事务外读取，同 IP 并发事件可能同时低于阈值，允许这一误差
	history, err := g.ledger.History(ev.IP, ev.Timestamp, g.policy.Window())
	if err != nil {
		return err
	}
	var geo *fraud.Geo
	if ev.Geo != nil {
		geo = &fraud.Geo{Lat: ev.Geo.Lat, Lng: ev.Geo.Lng}
	}
	decision := fraud.Evaluate(fraud.Event{
		AmountCents: ev.OrderTotalCents,
		CardToken:   ev.CardFingerprint,
		DeviceHash:  ev.DeviceHash,
		IP:          ev.IP,
		Geo:         geo,
		Timestamp:   ev.Timestamp,
	}, history, g.policy)

	entry := LedgerEntry{
		Event:        ev,
		BusinessID:   attr.businessID,
		InfluencerID: attr.offerInfluencer(),
		OfferID:      attr.offer.ID,
		SplitPct:     attr.offer.SplitPct,
	}
	if attr.coupon != nil {
		id := attr.coupon.ID
		entry.CouponID = &id
		entry.DiscountCents = attr.coupon.DiscountCents
		entry.ErrorNote = attr.coupon.DiscountError
	}
	if attr.link != nil {
		id := attr.link.ID
		entry.LinkID = &id
	}

	return models.DB.Transaction(func(tx *gorm.DB) error {
		markers := g.markers.WithTx(tx)
		marker := g.newMarker(res, result, constants.WebhookOutcomeProcessed, decision.Action)
		inserted, err := markers.Insert(marker)
		if err != nil {
			return err
		}
		if !inserted {
			result.Outcome = IngestDuplicate
			return nil
		}
		if attr.coupon != nil {
			affected, err := g.coupons.WithTx(tx).Redeem(attr.coupon.ID, ev.Timestamp)
			if err != nil {
				return err
			}
			if affected == 0 {
				result.Outcome = IngestRejected
				result.Reason = rejectCouponUnavailable
				return markers.UpdateOutcome(marker.ID, constants.WebhookOutcomeRejected, nil, rejectCouponUnavailable)
			}
		}
		record, created, err := g.ledger.Create(tx, entry, decision)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("ledger record missing after insert")
		}
		result.RecordID = record.ID
		result.Decision = &decision
		result.Outcome = IngestProcessed
		if !created {
			result.Outcome = IngestDuplicate
		}
		recordID := record.ID
		return markers.UpdateOutcome(marker.ID, constants.WebhookOutcomeProcessed, &recordID, decision.Action)
	})
}

func (a *attribution) offerInfluencer() uint {
	if a.coupon != nil {
		return a.coupon.InfluencerID
	}
	if a.link != nil {
		return a.link.InfluencerID
	}
	return 0
}
