package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func record(i int, status domain.ExecutionStatus) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID:        fmt.Sprintf("exec-%02d", i),
		Status:    status,
		CreatedAt: base.Add(time.Duration(i) * time.Second),
	}
}

func TestExecutionStore_RecentNewestFirst(t *testing.T) {
	s := NewExecutionStore(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.SaveExecution(ctx, record(i, domain.StatusSucceeded)); err != nil {
			t.Fatalf("SaveExecution() error = %v", err)
		}
	}

	got, err := s.RecentExecutions(ctx, 3)
	if err != nil {
		t.Fatalf("RecentExecutions() error = %v", err)
	}
	want := []string{"exec-04", "exec-03", "exec-02"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestExecutionStore_UpsertReplaces(t *testing.T) {
	s := NewExecutionStore(10)
	ctx := context.Background()

	rec := record(1, domain.StatusPending)
	_ = s.SaveExecution(ctx, rec)
	rec.Status = domain.StatusExecuting
	_ = s.SaveExecution(ctx, rec)

	got, _ := s.RecentExecutions(ctx, 0)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Status != domain.StatusExecuting {
		t.Errorf("status = %s, want executing", got[0].Status)
	}
}

func TestExecutionStore_EvictsOldestTerminal(t *testing.T) {
	s := NewExecutionStore(3)
	ctx := context.Background()

	_ = s.SaveExecution(ctx, record(0, domain.StatusExecuting))
	_ = s.SaveExecution(ctx, record(1, domain.StatusFailed))
	_ = s.SaveExecution(ctx, record(2, domain.StatusSucceeded))
	_ = s.SaveExecution(ctx, record(3, domain.StatusSucceeded))

	got, _ := s.RecentExecutions(ctx, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, r := range got {
		if r.ID == "exec-01" {
			t.Error("oldest terminal record should have been evicted")
		}
	}
	if got[len(got)-1].ID != "exec-00" {
		t.Errorf("in-flight record evicted, last = %s", got[len(got)-1].ID)
	}
}
