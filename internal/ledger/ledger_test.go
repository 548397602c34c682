package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns:    2,
		MaxOpenConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
	db, err := repository.InitDB(cfg)
	if err != nil {
		t.Fatalf("failed to init test database: %v", err)
	}
	return db
}

func testLedger(t *testing.T, db *gorm.DB) *Ledger {
	t.Helper()
	return New(repository.NewOperationRepository(db), &config.LedgerConfig{ErrorLogLimit: 5})
}

func submitMajor(t *testing.T, led *Ledger, universe string, total int) *domain.Operation {
	t.Helper()
	op, err := led.Submit(context.Background(), SubmitRequest{
		Type:       domain.OperationFitScoring,
		Context:    domain.OperationContext{FitScoring: &domain.FitScoringContext{UniverseID: universe, ScoreKind: "composite"}},
		TotalItems: total,
		StartedBy:  "test",
	})
	if err != nil {
		t.Fatalf("submit major failed: %v", err)
	}
	return op
}

func submitMinor(t *testing.T, led *Ledger, total int) *domain.Operation {
	t.Helper()
	op, err := led.Submit(context.Background(), SubmitRequest{
		Type:       domain.OperationCriteriaExtraction,
		Context:    domain.OperationContext{CriteriaExtraction: &domain.CriteriaExtractionContext{BuyerIDs: []string{"b1"}}},
		TotalItems: total,
		StartedBy:  "test",
	})
	if err != nil {
		t.Fatalf("submit minor failed: %v", err)
	}
	return op
}

func TestClassify(t *testing.T) {
	tests := []struct {
		opType domain.OperationType
		class  domain.OperationClass
	}{
		{domain.OperationDealEnrichment, domain.ClassMajor},
		{domain.OperationBuyerEnrichment, domain.ClassMajor},
		{domain.OperationFitScoring, domain.ClassMajor},
		{domain.OperationCriteriaExtraction, domain.ClassMinor},
		{domain.OperationGuideGeneration, domain.ClassMinor},
	}
	for _, tt := range tests {
		if got := Classify(tt.opType); got != tt.class {
			t.Errorf("Classify(%s) = %s, want %s", tt.opType, got, tt.class)
		}
	}
}

func TestSingleRunningMajor(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	first := submitMajor(t, led, "u1", 1)
	second := submitMajor(t, led, "u2", 1)

	if first.Status != domain.OperationRunning {
		t.Errorf("first major status = %s, want running", first.Status)
	}
	if second.Status != domain.OperationQueued {
		t.Errorf("second major status = %s, want queued", second.Status)
	}
	if second.QueuePosition <= first.QueuePosition {
		t.Errorf("queue positions not increasing: %d then %d", first.QueuePosition, second.QueuePosition)
	}

	// Admission passes while a major runs change nothing.
	if _, err := led.TryAdmit(ctx); err != nil {
		t.Fatalf("try admit failed: %v", err)
	}
	got, err := led.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OperationQueued {
		t.Errorf("second major admitted while first still running")
	}

	// Completing the first unblocks the second.
	if _, err := led.Progress(ctx, first.ID, 1, 0); err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	got, err = led.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OperationRunning {
		t.Errorf("second major status after first completed = %s, want running", got.Status)
	}
}

func TestMinorsRunImmediately(t *testing.T) {
	led := testLedger(t, testDB(t))

	submitMajor(t, led, "u1", 10)

	for i := 0; i < 3; i++ {
		minor := submitMinor(t, led, 1)
		if minor.Status != domain.OperationRunning {
			t.Errorf("minor %d status = %s, want running alongside the major", i, minor.Status)
		}
	}
}

func TestMajorsAdmitInQueueOrder(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	ops := make([]*domain.Operation, 3)
	for i := range ops {
		ops[i] = submitMajor(t, led, fmt.Sprintf("u%d", i), 1)
	}

	// ops[0] runs; complete each in turn and check the next one admitted is
	// the earliest queued position.
	for i := 0; i < len(ops); i++ {
		got, err := led.Get(ctx, ops[i].ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Status != domain.OperationRunning {
			t.Fatalf("major %d status = %s, want running in submit order", i, got.Status)
		}
		if _, err := led.Progress(ctx, ops[i].ID, 1, 0); err != nil {
			t.Fatalf("progress failed: %v", err)
		}
	}
}

func TestProgressCountersAreExact(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	const total = 100
	op := submitMajor(t, led, "u1", total)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		failed := i%10 == 0
		go func(failed bool) {
			defer wg.Done()
			var err error
			if failed {
				_, err = led.Progress(ctx, op.ID, 0, 1)
			} else {
				_, err = led.Progress(ctx, op.ID, 1, 0)
			}
			if err != nil {
				t.Errorf("progress failed: %v", err)
			}
		}(failed)
	}
	wg.Wait()

	got, err := led.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CompletedItems != 90 || got.FailedItems != 10 {
		t.Errorf("counters = (%d, %d), want (90, 10)", got.CompletedItems, got.FailedItems)
	}
	if got.Status != domain.OperationCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestProgressOvershootRejected(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	op := submitMajor(t, led, "u1", 2)

	if _, err := led.Progress(ctx, op.ID, 1, 0); err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	// +2 would exceed total_items=2, so the whole delta is dropped.
	if _, err := led.Progress(ctx, op.ID, 2, 0); err != nil {
		t.Fatalf("progress failed: %v", err)
	}

	got, err := led.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CompletedItems != 1 {
		t.Errorf("completed_items = %d, want 1 after rejected overshoot", got.CompletedItems)
	}
	if got.Status != domain.OperationRunning {
		t.Errorf("status = %s, want still running", got.Status)
	}
}

func TestPauseReleasesMajorSlot(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	first := submitMajor(t, led, "u1", 5)
	second := submitMajor(t, led, "u2", 5)

	if err := led.Pause(ctx, first.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	got, err := led.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OperationRunning {
		t.Errorf("second major status after pause = %s, want running", got.Status)
	}

	// Resume queues the first major again; it waits for the slot.
	if err := led.Resume(ctx, first.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	got, err = led.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OperationQueued {
		t.Errorf("resumed major status = %s, want queued behind running major", got.Status)
	}
	if got.QueuePosition != first.QueuePosition {
		t.Errorf("resumed major queue position = %d, want original %d", got.QueuePosition, first.QueuePosition)
	}
}

func TestCancelFromEveryNonTerminalStatus(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	running := submitMajor(t, led, "u1", 5)
	queued := submitMajor(t, led, "u2", 5)

	if err := led.Cancel(ctx, queued.ID); err != nil {
		t.Fatalf("cancel queued failed: %v", err)
	}
	if err := led.Pause(ctx, running.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := led.Cancel(ctx, running.ID); err != nil {
		t.Fatalf("cancel paused failed: %v", err)
	}

	// Cancelling a terminal operation is refused.
	err := led.Cancel(ctx, running.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel of cancelled operation error = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionErrors(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	op := submitMajor(t, led, "u1", 1)

	if err := led.Resume(ctx, op.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume of running operation error = %v, want ErrInvalidTransition", err)
	}
	if err := led.Pause(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pause of unknown operation error = %v, want ErrNotFound", err)
	}
}

func TestErrorLogIsBounded(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t)) // limit 5

	op := submitMinor(t, led, 100)

	for i := 0; i < 12; i++ {
		if err := led.ReportError(ctx, op.ID, fmt.Sprintf("item %d failed", i)); err != nil {
			t.Fatalf("report error failed: %v", err)
		}
	}

	entries, err := led.Errors(ctx, op.ID)
	if err != nil {
		t.Fatalf("errors failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("error log has %d entries, want 5", len(entries))
	}
	// The newest entries survive pruning.
	if entries[len(entries)-1].Message != "item 11 failed" {
		t.Errorf("newest entry = %q, want item 11", entries[len(entries)-1].Message)
	}
	if entries[0].Message != "item 7 failed" {
		t.Errorf("oldest surviving entry = %q, want item 7", entries[0].Message)
	}
}

func TestAbortPolicyFailsOperationOnFirstError(t *testing.T) {
	ctx := context.Background()
	led := testLedger(t, testDB(t))

	op, err := led.Submit(ctx, SubmitRequest{
		Type:        domain.OperationGuideGeneration,
		Context:     domain.OperationContext{GuideGeneration: &domain.GuideGenerationContext{DealID: "d1"}},
		OnItemError: domain.OnItemErrorAbort,
		TotalItems:  10,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := led.ReportError(ctx, op.ID, "render blew up"); err != nil {
		t.Fatalf("report error failed: %v", err)
	}

	got, err := led.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OperationFailed {
		t.Errorf("status = %s, want failed under abort policy", got.Status)
	}
}

func TestSubmitValidation(t *testing.T) {
	led := testLedger(t, testDB(t))

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{
			name: "context type mismatch",
			req: SubmitRequest{
				Type:    domain.OperationDealEnrichment,
				Context: domain.OperationContext{FitScoring: &domain.FitScoringContext{UniverseID: "u1", ScoreKind: "composite"}},
			},
		},
		{
			name: "empty context",
			req:  SubmitRequest{Type: domain.OperationDealEnrichment},
		},
		{
			name: "negative total",
			req: SubmitRequest{
				Type:       domain.OperationDealEnrichment,
				Context:    domain.OperationContext{DealEnrichment: &domain.DealEnrichmentContext{DealIDs: []string{"d1"}}},
				TotalItems: -1,
			},
		},
		{
			name: "unknown on_item_error",
			req: SubmitRequest{
				Type:        domain.OperationDealEnrichment,
				Context:     domain.OperationContext{DealEnrichment: &domain.DealEnrichmentContext{DealIDs: []string{"d1"}}},
				OnItemError: "explode",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := led.Submit(context.Background(), tt.req); err == nil {
				t.Error("Submit succeeded, want validation error")
			}
		})
	}
}
