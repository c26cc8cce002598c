package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redeemly/internal/config"
	"github.com/redeemly/internal/constants"
	"github.com/redeemly/internal/models"
	"github.com/redeemly/internal/provider"
	"github.com/redeemly/internal/queue"
	"github.com/redeemly/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupConsumerTest(t *testing.T) *Consumer {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	cfg := &config.Config{
		Reconcile: config.ReconcileConfig{BatchSize: 10, Timezone: "UTC"},
		Registry:  config.RegistryConfig{PublicBaseURL: "https://rdm.example"},
	}
	return NewConsumer(provider.NewContainer(cfg))
}

func TestConsumerSkipsNil(t *testing.T) {
	var c *Consumer
	if err := c.handleAffiliateClick(context.Background(), nil); err != nil {
		t.Fatalf("nil consumer should skip: %v", err)
	}
	if err := c.handleReconcileNightly(context.Background(), nil); err != nil {
		t.Fatalf("nil consumer should skip: %v", err)
	}
}

func TestHandleAffiliateClickRejectsBadPayload(t *testing.T) {
	c := setupConsumerTest(t)
	task := asynq.NewTask(queue.TaskAffiliateClick, []byte("{bad"))
	if err := c.handleAffiliateClick(context.Background(), task); err == nil {
		t.Fatalf("malformed payload should fail")
	}
	empty, err := queue.NewAffiliateClickTask(queue.AffiliateClickPayload{})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := c.handleAffiliateClick(context.Background(), empty); err != nil {
		t.Fatalf("payload without short code should be skipped: %v", err)
	}
}

func TestHandleReconcileNightlyCompletesRun(t *testing.T) {
	c := setupConsumerTest(t)
	task, err := queue.NewReconcileTask(queue.ReconcilePayload{RunDate: "2026-10-18"})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := c.handleReconcileNightly(context.Background(), task); err != nil {
		t.Fatalf("reconcile task failed: %v", err)
	}
	_, recent, err := c.ReconcileService.Status(5)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(recent) != 1 || recent[0].RunDate != "2026-10-18" {
		t.Fatalf("unexpected recent runs: %+v", recent)
	}
	if run := recent[0]; run.Status != constants.ReconcileStatusCompleted {
		t.Fatalf("run status want completed got %s", run.Status)
	}
}

type fakeTrigger struct {
	calls int
	err   error
}

func (f *fakeTrigger) Trigger(ctx context.Context, runDate string, force bool) (*service.ReconcileReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &service.ReconcileReport{Queued: true}, nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler(config.ReconcileConfig{Schedule: "not a cron"}, &fakeTrigger{}); err == nil {
		t.Fatalf("invalid schedule should fail")
	}
	if _, err := NewScheduler(config.ReconcileConfig{}, nil); err == nil {
		t.Fatalf("nil trigger should fail")
	}
}

func TestSchedulerRunOnceTolerantOfBusy(t *testing.T) {
	trigger := &fakeTrigger{err: service.ErrReconcileBusy}
	s, err := NewScheduler(config.ReconcileConfig{Schedule: "*/5 * * * *", LockTTLSeconds: 5}, trigger)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	s.runOnce()
	trigger.err = errors.New("boom")
	s.runOnce()
	trigger.err = nil
	s.runOnce()
	if trigger.calls != 3 {
		t.Fatalf("trigger calls want 3 got %d", trigger.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
