package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/logger"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/pos"
	"github.com/redeemly/internal/qrcode"
	"github.com/redeemly/internal/queue"
	"github.com/redeemly/internal/repository"

	"github.com/hibiken/asynq"
)

const clickDedupeWindow = 10 * time.Minute

// ClickQueue 点击落库的异步通道
type ClickQueue interface {
	Enabled() bool
	EnqueueAffiliateClick(payload queue.AffiliateClickPayload, opts ...asynq.Option) error
}

// RegistryOptions 发码与链接配置
type RegistryOptions struct {
	PublicBaseURL string
	FallbackURL   string
	CodeLength    int
	MaxRetry      int
}

// RegistryService 优惠券与推广链接登记
type RegistryService struct {
	offerRepo     repository.OfferRepository
	couponRepo    repository.CouponRepository
	affiliateRepo repository.AffiliateRepository
	posConn       *POSConnectionService
	clicks        ClickQueue
	issuer        *CodeIssuer
	opts          RegistryOptions
	now           func() time.Time
	goAsync       func(func())
}

// NewRegistryService 创建登记服务
func NewRegistryService(
	offerRepo repository.OfferRepository,
	couponRepo repository.CouponRepository,
	affiliateRepo repository.AffiliateRepository,
	posConn *POSConnectionService,
	clicks ClickQueue,
	opts RegistryOptions,
) *RegistryService {
	return &RegistryService{
		offerRepo:     offerRepo,
		couponRepo:    couponRepo,
		affiliateRepo: affiliateRepo,
		posConn:       posConn,
		clicks:        clicks,
		issuer:        NewCodeIssuer(opts.CodeLength, opts.MaxRetry),
		opts:          opts,
		now:           utcNow,
		goAsync:       func(fn func()) { go fn() },
	}
}

// IssueCouponInput 发券输入
type IssueCouponInput struct {
	OfferID       uint
	InfluencerID  uint
	Type          string
	SpendCapCents *int64
	ExpiresAt     *time.Time
}

// IssuedCoupon 发券结果
type IssuedCoupon struct {
	Coupon *models.Coupon `json:"coupon"`
	Code   string         `json:"code"`
	QRURL  string         `json:"qr_url"`
	URL    string         `json:"url"`
}

// IssueLinkInput 推广链接输入
type IssueLinkInput struct {
	OfferID      uint
	InfluencerID uint
	UTMSource    string
	UTMMedium    string
	UTMCampaign  string
}

// IssuedLink 推广链接结果
type IssuedLink struct {
	Link      *models.AffiliateLink `json:"link"`
	ShortCode string                `json:"short_code"`
	ShortURL  string                `json:"short_url"`
	QRURL     string                `json:"qr_url"`
	Created   bool                  `json:"created"`
}

// CouponView 优惠券查看结果
type CouponView struct {
	Coupon     *models.Coupon `json:"coupon"`
	QRURL      string         `json:"qr_url"`
	Redeemable bool           `json:"redeemable"`
}

// ClickInput 点击信息
type ClickInput struct {
	ShortCode string
	ClientIP  string
	UserAgent string
	Referrer  string
}

// ApplyDiscountInput 折扣推送输入
type ApplyDiscountInput struct {
	BizID           uint
	Code            string
	OrderRef        string
	OrderTotalCents int64
	Currency        string
}

// ApplyDiscountResult 折扣推送结果
type ApplyDiscountResult struct {
	CouponID uint   `json:"coupon_id"`
	Code     string `json:"code"`
	Provider string `json:"provider"`
	pos.DiscountResult
}

func (s *RegistryService) activeOffer(offerID uint, now time.Time) (*models.Offer, error) {
	offer, err := s.offerRepo.GetByID(offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrOfferNotFound
	}
	if offer.Status != constants.OfferStatusActive || !offer.InWindow(now) {
		return nil, ErrOfferInactive
	}
	return offer, nil
}

// IssueCoupon 发放单次核销优惠券
func (s *RegistryService) IssueCoupon(input IssueCouponInput) (*IssuedCoupon, error) {
	if input.OfferID == 0 || input.InfluencerID == 0 {
		return nil, ErrInvalidInput
	}
	couponType := strings.ToUpper(strings.TrimSpace(input.Type))
	if couponType == "" {
		couponType = constants.CouponTypeAffiliate
	}
	if couponType != constants.CouponTypeAffiliate && couponType != constants.CouponTypeContentMeal {
		return nil, ErrCouponTypeInvalid
	}
	now := s.now()
	offer, err := s.activeOffer(input.OfferID, now)
	if err != nil {
		return nil, err
	}
	expiresAt := utcPtr(input.ExpiresAt)
	if expiresAt == nil && offer.EndAt != nil {
		end := *offer.EndAt
		expiresAt = &end
	}

	var coupon *models.Coupon
	code, err := s.issuer.Issue(func(code string) error {
		candidate := &models.Coupon{
			Code:          code,
			Type:          couponType,
			BusinessID:    offer.BusinessID,
			InfluencerID:  input.InfluencerID,
			OfferID:       offer.ID,
			Status:        constants.CouponStatusIssued,
			SpendCapCents: input.SpendCapCents,
			ExpiresAt:     expiresAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.couponRepo.Create(candidate); err != nil {
			return err
		}
		coupon = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	coupon.Offer = offer
	logger.SW("component", "registry", "offer_id", offer.ID, "influencer_id", input.InfluencerID).
		Infow("coupon_issued", "coupon_id", coupon.ID, "type", couponType)
	return &IssuedCoupon{
		Coupon: coupon,
		Code:   code,
		QRURL:  qrcode.ImageURL(s.opts.PublicBaseURL, qrcode.KindCoupon, code),
		URL:    mustTarget(s.opts.PublicBaseURL, qrcode.KindCoupon, code),
	}, nil
}

// ClaimCoupon 达人领券：发放并立即激活
func (s *RegistryService) ClaimCoupon(offerID, influencerID uint) (*IssuedCoupon, error) {
	issued, err := s.IssueCoupon(IssueCouponInput{
		OfferID:      offerID,
		InfluencerID: influencerID,
		Type:         constants.CouponTypeAffiliate,
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	if _, err := s.couponRepo.Activate(issued.Coupon.ID, now); err != nil {
		return nil, err
	}
	issued.Coupon.Status = constants.CouponStatusActive
	issued.Coupon.ActivatedAt = &now
	return issued, nil
}

// ViewCoupon 查看优惠券，首次查看时激活
func (s *RegistryService) ViewCoupon(code string) (*CouponView, error) {
	coupon, err := s.couponRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	now := s.now()
	if coupon.Status == constants.CouponStatusIssued && !coupon.IsExpiredAt(now) {
		affected, err := s.couponRepo.Activate(coupon.ID, now)
		if err != nil {
			return nil, err
		}
		if affected > 0 {
			coupon.Status = constants.CouponStatusActive
			coupon.ActivatedAt = &now
		}
	}
	redeemable := (coupon.Status == constants.CouponStatusIssued || coupon.Status == constants.CouponStatusActive) &&
		!coupon.IsExpiredAt(now)
	return &CouponView{
		Coupon:     coupon,
		QRURL:      qrcode.ImageURL(s.opts.PublicBaseURL, qrcode.KindCoupon, coupon.Code),
		Redeemable: redeemable,
	}, nil
}

// IssueAffiliateLink 创建推广链接，同一达人同一活动只有一条
func (s *RegistryService) IssueAffiliateLink(input IssueLinkInput) (*IssuedLink, error) {
	if input.OfferID == 0 || input.InfluencerID == 0 {
		return nil, ErrInvalidInput
	}
	existing, err := s.affiliateRepo.GetLinkByPair(input.InfluencerID, input.OfferID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.linkResult(existing, false), nil
	}
	now := s.now()
	offer, err := s.activeOffer(input.OfferID, now)
	if err != nil {
		return nil, err
	}

	var link *models.AffiliateLink
	created := false
	_, err = s.issuer.Issue(func(code string) error {
		candidate := &models.AffiliateLink{
			BusinessID:   offer.BusinessID,
			InfluencerID: input.InfluencerID,
			OfferID:      offer.ID,
			ShortCode:    code,
			UTMSource:    strings.TrimSpace(input.UTMSource),
			UTMMedium:    strings.TrimSpace(input.UTMMedium),
			UTMCampaign:  strings.TrimSpace(input.UTMCampaign),
			Status:       constants.AffiliateLinkStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.affiliateRepo.CreateLink(candidate); err != nil {
			if repository.IsUniqueViolation(err) {
				// 并发创建同一 (达人, 活动) 时直接复用已存在的链接
				if raced, lookupErr := s.affiliateRepo.GetLinkByPair(input.InfluencerID, input.OfferID); lookupErr == nil && raced != nil {
					link = raced
					return nil
				}
			}
			return err
		}
		link = candidate
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.SW("component", "registry", "offer_id", offer.ID, "influencer_id", input.InfluencerID).
		Infow("affiliate_link_issued", "link_id", link.ID, "short_code", link.ShortCode)
	return s.linkResult(link, created), nil
}

func (s *RegistryService) linkResult(link *models.AffiliateLink, created bool) *IssuedLink {
	return &IssuedLink{
		Link:      link,
		ShortCode: link.ShortCode,
		ShortURL:  mustTarget(s.opts.PublicBaseURL, qrcode.KindLink, link.ShortCode),
		QRURL:     qrcode.ImageURL(s.opts.PublicBaseURL, qrcode.KindLink, link.ShortCode),
		Created:   created,
	}
}

// ResolveRedirect 解析短码跳转地址；链接不可用时返回兜底地址与错误
func (s *RegistryService) ResolveRedirect(token string) (string, *models.AffiliateLink, error) {
	link, err := s.affiliateRepo.GetLinkByShortCode(strings.ToUpper(strings.TrimSpace(token)))
	if err != nil {
		return s.opts.FallbackURL, nil, err
	}
	if link == nil {
		return s.opts.FallbackURL, nil, ErrLinkNotFound
	}
	if link.Status != constants.AffiliateLinkStatusActive {
		return s.opts.FallbackURL, link, ErrLinkInactive
	}
	landing := ""
	if link.Offer != nil {
		landing = strings.TrimSpace(link.Offer.LandingURL)
	}
	if landing == "" {
		landing = s.opts.FallbackURL
	}
	return appendUTM(landing, link), link, nil
}

func appendUTM(landing string, link *models.AffiliateLink) string {
	parsed, err := url.Parse(landing)
	if err != nil || parsed.Scheme == "" {
		return landing
	}
	query := parsed.Query()
	setIfPresent := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			query.Set(key, value)
		}
	}
	setIfPresent("utm_source", link.UTMSource)
	setIfPresent("utm_medium", link.UTMMedium)
	setIfPresent("utm_campaign", link.UTMCampaign)
	query.Set("ref", link.ShortCode)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// TrackClick 异步记录点击，队列不可用时退化为 goroutine
func (s *RegistryService) TrackClick(input ClickInput) {
	payload := queue.AffiliateClickPayload{
		ShortCode:   strings.ToUpper(strings.TrimSpace(input.ShortCode)),
		VisitorHash: VisitorHash(input.ClientIP, input.UserAgent),
		ClientIP:    input.ClientIP,
		UserAgent:   input.UserAgent,
		Referrer:    input.Referrer,
		ClickedAt:   s.now(),
	}
	if s.clicks != nil && s.clicks.Enabled() {
		err := s.clicks.EnqueueAffiliateClick(payload)
		if err == nil {
			return
		}
		logger.Warnw("affiliate_click_enqueue_failed", "short_code", payload.ShortCode, "error", err)
	}
	s.goAsync(func() {
		if err := s.RecordClick(payload); err != nil {
			logger.Warnw("affiliate_click_record_failed", "short_code", payload.ShortCode, "error", err)
		}
	})
}

// RecordClick 写入点击记录，同一访客短时间内只记一次
func (s *RegistryService) RecordClick(payload queue.AffiliateClickPayload) error {
	link, err := s.affiliateRepo.GetLinkByShortCode(payload.ShortCode)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}
	clickedAt := payload.ClickedAt
	if clickedAt.IsZero() {
		clickedAt = s.now()
	}
	duplicated, err := s.affiliateRepo.HasRecentClick(link.ID, payload.VisitorHash, clickedAt.Add(-clickDedupeWindow))
	if err != nil {
		return err
	}
	if duplicated {
		return nil
	}
	return s.affiliateRepo.CreateClick(&models.AffiliateClick{
		LinkID:      link.ID,
		ShortCode:   link.ShortCode,
		VisitorHash: payload.VisitorHash,
		Referrer:    truncateText(payload.Referrer, 1024),
		ClientIP:    payload.ClientIP,
		UserAgent:   truncateText(payload.UserAgent, 1024),
		ClickedAt:   clickedAt,
		CreatedAt:   s.now(),
	})
}

// ResolveRef 按引用查找优惠券，找不到时再按推广短码查找
func (s *RegistryService) ResolveRef(ref string) (*models.Coupon, *models.AffiliateLink, error) {
	ref = pos.NormalizeRef(ref)
	if ref == "" {
		return nil, nil, nil
	}
	coupon, err := s.couponRepo.GetByCode(ref)
	if err != nil {
		return nil, nil, err
	}
	if coupon != nil {
		return coupon, nil, nil
	}
	link, err := s.affiliateRepo.GetLinkByShortCode(ref)
	if err != nil {
		return nil, nil, err
	}
	return nil, link, nil
}

// ApplyDiscount 通过商家 POS 推送折扣；不自动重试，重复调用即人工重试
func (s *RegistryService) ApplyDiscount(ctx context.Context, input ApplyDiscountInput) (*ApplyDiscountResult, error) {
	if input.BizID == 0 || strings.TrimSpace(input.OrderRef) == "" || input.OrderTotalCents <= 0 {
		return nil, ErrInvalidInput
	}
	coupon, err := s.couponRepo.GetByCode(input.Code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if coupon.BusinessID != input.BizID {
		return nil, ErrCouponBusiness
	}
	now := s.now()
	if coupon.Status != constants.CouponStatusIssued && coupon.Status != constants.CouponStatusActive {
		return nil, ErrCouponNotRedeemable
	}
	if coupon.IsExpiredAt(now) {
		return nil, ErrCouponExpired
	}
	offer := coupon.Offer
	if offer == nil {
		if offer, err = s.offerRepo.GetByID(coupon.OfferID); err != nil {
			return nil, err
		}
		if offer == nil {
			return nil, ErrOfferNotFound
		}
	}
	if input.OrderTotalCents < offer.MinSpendCents {
		return nil, ErrMinSpendNotMet
	}
	adapter, conn, err := s.posConn.AdapterForBusiness(ctx, input.BizID)
	if err != nil {
		return nil, err
	}

	log := logger.SW("component", "registry", "coupon_id", coupon.ID, "biz_id", input.BizID, "provider", conn.Provider)
	if strings.TrimSpace(coupon.OrderRef) != "" {
		log.Infow("coupon_discount_manual_retry", "previous_order_ref", coupon.OrderRef, "previous_error", coupon.DiscountError)
	}
	maxDiscount := offer.MaxDiscountCents
	if coupon.SpendCapCents != nil && (maxDiscount == nil || *coupon.SpendCapCents < *maxDiscount) {
		maxDiscount = coupon.SpendCapCents
	}
	result := adapter.ApplyCouponDiscount(ctx, pos.DiscountRequest{
		OrderRef:         strings.TrimSpace(input.OrderRef),
		Code:             coupon.Code,
		DiscountType:     offer.DiscountType,
		DiscountValue:    offer.DiscountValue,
		MaxDiscountCents: maxDiscount,
		OrderTotalCents:  input.OrderTotalCents,
		Currency:         input.Currency,
	})
	applied := int64(0)
	if result.Success {
		applied = result.DiscountAmount
	}
	if err := s.couponRepo.SaveDiscountResult(coupon.ID, strings.TrimSpace(input.OrderRef), applied, result.Error, now); err != nil {
		return nil, err
	}
	if result.Success {
		log.Infow("coupon_discount_applied", "order_ref", input.OrderRef, "discount_cents", applied)
	} else {
		log.Warnw("coupon_discount_failed", "order_ref", input.OrderRef, "error", result.Error)
	}
	return &ApplyDiscountResult{
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		Provider:       conn.Provider,
		DiscountResult: result,
	}, nil
}

// VisitorHash 由 IP 与 UA 计算访客标识
func VisitorHash(ip, userAgent string) string {
	ip = strings.TrimSpace(ip)
	userAgent = strings.TrimSpace(userAgent)
	if ip == "" && userAgent == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:16])
}

func mustTarget(baseURL, kind, code string) string {
	target, err := qrcode.TargetURL(baseURL, kind, code)
	if err != nil {
		return ""
	}
	return target
}

func truncateText(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
