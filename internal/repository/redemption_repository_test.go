package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupLedgerRepositoryTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func newTestRecord(eventID string, amount int64, split string, status string, at time.Time) *models.RedemptionRecord {
	return &models.RedemptionRecord{
		RecordNo:        "rec_" + eventID,
		Provider:        constants.POSProviderManual,
		ExternalEventID: eventID,
		BusinessID:      1,
		InfluencerID:    7,
		OfferID:         3,
		AmountCents:     amount,
		SplitPct:        decimal.RequireFromString(split),
		Decision:        constants.FraudActionAllow,
		Reasons:         models.StringArray{},
		Status:          status,
		ClientIP:        "10.0.0.1",
		EventAt:         at,
	}
}

func TestRedemptionRepositoryCreateIsIdempotent(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRedemptionRepository(db)
	now := time.Now().UTC()

	created, err := repo.Create(newTestRecord("evt_1", 1000, "10", constants.RedemptionStatusProvisional, now))
	if err != nil || !created {
		t.Fatalf("first create failed: created=%v err=%v", created, err)
	}
	dup := newTestRecord("evt_1", 5000, "10", constants.RedemptionStatusProvisional, now)
	dup.RecordNo = "rec_other"
	created, err = repo.Create(dup)
	if err != nil {
		t.Fatalf("duplicate create returned error: %v", err)
	}
	if created {
		t.Fatalf("duplicate create should report created=false")
	}
	var count int64
	db.Model(&models.RedemptionRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestRedemptionRepositoryForwardOnlyTransitions(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRedemptionRepository(db)
	now := time.Now().UTC()

	allow := newTestRecord("evt_allow", 1000, "10", constants.RedemptionStatusProvisional, now)
	review := newTestRecord("evt_review", 1000, "10", constants.RedemptionStatusProvisional, now)
	review.Decision = constants.FraudActionReview
	blocked := newTestRecord("evt_block", 1000, "10", constants.RedemptionStatusBlocked, now)
	for _, rec := range []*models.RedemptionRecord{allow, review, blocked} {
		if _, err := repo.Create(rec); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	affected, err := repo.AdvanceToFinalized([]uint{allow.ID, review.ID, blocked.ID}, now)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected only the allow record to finalize, got %d", affected)
	}
	affected, _ = repo.AdvanceToFinalized([]uint{allow.ID}, now.Add(time.Hour))
	if affected != 0 {
		t.Fatalf("second advance should be a no-op, got %d", affected)
	}

	if n, _ := repo.ClearReview(review.ID, now); n != 1 {
		t.Fatalf("clear review expected 1 row, got %d", n)
	}
	if n, _ := repo.AdvanceToFinalized([]uint{review.ID}, now); n != 1 {
		t.Fatalf("cleared review should finalize, got %d", n)
	}

	if n, _ := repo.Block(allow.ID, "late_chargeback", now); n != 0 {
		t.Fatalf("finalized record must not be blocked, got %d", n)
	}
	if n, _ := repo.MarkPaid([]uint{allow.ID, blocked.ID}, now); n != 1 {
		t.Fatalf("mark paid expected 1 row, got %d", n)
	}
	got, err := repo.GetByID(allow.ID)
	if err != nil || got == nil {
		t.Fatalf("get record failed: %v", err)
	}
	if got.Status != constants.RedemptionStatusPaid || got.PaidAt == nil {
		t.Fatalf("unexpected record state: %+v", got)
	}
}

func TestRedemptionRepositorySumPayableFloorsPerRow(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRedemptionRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []*models.RedemptionRecord{
		newTestRecord("evt_a", 999, "15", constants.RedemptionStatusFinalized, base),
		newTestRecord("evt_b", 999, "15", constants.RedemptionStatusFinalized, base.Add(time.Hour)),
		newTestRecord("evt_c", 2000, "10", constants.RedemptionStatusProvisional, base),
		newTestRecord("evt_d", 5000, "20", constants.RedemptionStatusFinalized, base.AddDate(0, 1, 0)),
	}
	rows[1].InfluencerID = 8
	for _, rec := range rows {
		if _, err := repo.Create(rec); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	to := base.AddDate(0, 0, 7)
	agg, err := repo.SumPayable(PayoutFilter{From: &base, To: &to})
	if err != nil {
		t.Fatalf("sum payable failed: %v", err)
	}
	// 999 * 15% = 149.85 → 149, 两行合计 298
	if agg.PayableCents != 298 || agg.Records != 2 || agg.AmountCents != 1998 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}

	groups, err := repo.SumPayableGrouped(PayoutFilter{}, "influencer")
	if err != nil {
		t.Fatalf("grouped sum failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	for _, g := range groups {
		switch g.Key {
		case 7:
			if g.PayableCents != 149+1000 {
				t.Fatalf("influencer 7 payable mismatch: %+v", g)
			}
		case 8:
			if g.PayableCents != 149 {
				t.Fatalf("influencer 8 payable mismatch: %+v", g)
			}
		default:
			t.Fatalf("unexpected group key: %d", g.Key)
		}
	}
}

func TestRedemptionRepositoryListObservationsByIP(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRedemptionRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	inside := newTestRecord("evt_in", 100, "10", constants.RedemptionStatusProvisional, now.Add(-10*time.Minute))
	outside := newTestRecord("evt_out", 100, "10", constants.RedemptionStatusProvisional, now.Add(-2*time.Hour))
	other := newTestRecord("evt_other", 100, "10", constants.RedemptionStatusProvisional, now.Add(-time.Minute))
	other.ClientIP = "10.0.0.2"
	for _, rec := range []*models.RedemptionRecord{inside, outside, other} {
		if _, err := repo.Create(rec); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	obs, err := repo.ListObservationsByIP("10.0.0.1", now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("list observations failed: %v", err)
	}
	if len(obs) != 1 || obs[0].ClientIP != "10.0.0.1" {
		t.Fatalf("unexpected observations: %+v", obs)
	}
}

func TestLateSignalRepositoryFindForRecord(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	records := NewRedemptionRepository(db)
	signals := NewLateSignalRepository(db)
	now := time.Now().UTC()

	rec := newTestRecord("evt_sig", 1000, "10", constants.RedemptionStatusProvisional, now)
	rec.PaymentRef = "pay_1"
	if _, err := records.Create(rec); err != nil {
		t.Fatalf("create record failed: %v", err)
	}
	found, err := signals.FindForRecord(rec)
	if err != nil || found != nil {
		t.Fatalf("expected no signal, got %+v err=%v", found, err)
	}

	sig := &models.LateSignal{
		Provider:   constants.POSProviderManual,
		ExternalID: "cb_1",
		Kind:       constants.LateSignalChargeback,
		PaymentRef: "pay_1",
		ReceivedAt: now,
	}
	created, err := signals.Create(sig)
	if err != nil || !created {
		t.Fatalf("create signal failed: created=%v err=%v", created, err)
	}
	created, err = signals.Create(&models.LateSignal{
		Provider: constants.POSProviderManual, ExternalID: "cb_1", Kind: constants.LateSignalChargeback, ReceivedAt: now,
	})
	if err != nil || created {
		t.Fatalf("duplicate signal should be ignored: created=%v err=%v", created, err)
	}

	found, err = signals.FindForRecord(rec)
	if err != nil || found == nil || found.ID != sig.ID {
		t.Fatalf("expected signal by payment ref, got %+v err=%v", found, err)
	}
}

func TestReconcileRunRepositoryLease(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewReconcileRunRepository(db)
	now := time.Now().UTC()
	ttl := 10 * time.Minute

	run, err := repo.AcquireLease("2026-03-01", "worker-a", now, ttl)
	if err != nil || run == nil {
		t.Fatalf("acquire lease failed: %v", err)
	}
	other, err := repo.AcquireLease("2026-03-01", "worker-b", now, ttl)
	if err != nil {
		t.Fatalf("contended acquire failed: %v", err)
	}
	if other != nil {
		t.Fatalf("second owner should not take a live lease")
	}
	if err := repo.SaveProgress(run.ID, "worker-b", ReconcileProgress{CursorID: 5}, now, ttl); err != ErrLeaseLost {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if err := repo.SaveProgress(run.ID, "worker-a", ReconcileProgress{CursorID: 5, Processed: 3, Finalized: 2}, now, ttl); err != nil {
		t.Fatalf("save progress failed: %v", err)
	}

	later := now.Add(ttl + time.Minute)
	taken, err := repo.AcquireLease("2026-03-01", "worker-b", later, ttl)
	if err != nil || taken == nil {
		t.Fatalf("expired lease should be taken over: %v", err)
	}
	if taken.CursorID != 5 || taken.Processed != 3 {
		t.Fatalf("cursor should survive takeover: %+v", taken)
	}
	if err := repo.Complete(taken.ID, "worker-b", 1, later); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	done, err := repo.AcquireLease("2026-03-01", "worker-a", later, ttl)
	if err != nil || done == nil || done.Status != constants.ReconcileStatusCompleted {
		t.Fatalf("completed run should be returned as-is: %+v err=%v", done, err)
	}
	reopened, err := repo.Reopen("2026-03-01", "worker-a", later, ttl)
	if err != nil || reopened == nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Status != constants.ReconcileStatusRunning || reopened.CursorID != 0 {
		t.Fatalf("reopened run should restart from zero: %+v", reopened)
	}
}

func TestRedemptionRepositoryListByKeyword(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRedemptionRepository(db)
	now := time.Now().UTC()

	first := newTestRecord("evt_kw_1", 1000, "10", constants.RedemptionStatusProvisional, now)
	first.OrderRef = "ORD-ALPHA-1"
	second := newTestRecord("evt_kw_2", 1000, "10", constants.RedemptionStatusProvisional, now)
	second.OrderRef = "ORD-BETA-2"
	for _, record := range []*models.RedemptionRecord{first, second} {
		if _, err := repo.Create(record); err != nil {
			t.Fatalf("create record failed: %v", err)
		}
	}

	rows, total, err := repo.List(RedemptionListFilter{Page: 1, PageSize: 10, Keyword: "alpha"})
	if err != nil {
		t.Fatalf("list by keyword failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ExternalEventID != "evt_kw_1" {
		t.Fatalf("keyword should match one record, total=%d rows=%+v", total, rows)
	}
	_, total, err = repo.List(RedemptionListFilter{Page: 1, PageSize: 10})
	if err != nil || total != 2 {
		t.Fatalf("empty keyword should list all: total=%d err=%v", total, err)
	}
}
