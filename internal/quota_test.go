package internal

import (
	"errors"
	"testing"
	"time"
)

func TestQuotaLedger_ReserveFailsFastAtBudget(t *testing.T) {
	ledger := NewQuotaLedger(10, 0)

	for i := 0; i < 10; i++ {
		if err := ledger.Reserve("videos.list", 1); err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
	}
	err := ledger.Reserve("videos.list", 1)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	// The failing reservation must not consume units.
	if ledger.Used() != 10 {
		t.Fatalf("expected 10 used, got %d", ledger.Used())
	}
}

func TestQuotaLedger_ReserveHonorsReserve(t *testing.T) {
	ledger := NewQuotaLedger(10, 4)

	if err := ledger.Reserve("subscriptions.list", 6); err != nil {
		t.Fatalf("reserve within budget: %v", err)
	}
	if err := ledger.Reserve("subscriptions.list", 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected reserve to be protected, got %v", err)
	}
	if ledger.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", ledger.Remaining())
	}
}

func TestQuotaLedger_WindowResetsAfter24Hours(t *testing.T) {
	current := time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC)
	ledger := NewQuotaLedger(5, 0)
	ledger.now = func() time.Time { return current }
	ledger.windowStart = current

	for i := 0; i < 5; i++ {
		if err := ledger.Reserve("videos.list", 1); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	if err := ledger.Reserve("videos.list", 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	current = current.Add(25 * time.Hour)
	if err := ledger.Reserve("videos.list", 1); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}
	if ledger.Used() != 1 {
		t.Fatalf("expected 1 used after reset, got %d", ledger.Used())
	}
}

func TestQuotaLedger_CostAccumulates(t *testing.T) {
	ledger := NewQuotaLedger(100, 0)
	ledger.AddCost(0.01)
	ledger.AddCost(0.0025)

	if got := ledger.Cost(); got < 0.0124 || got > 0.0126 {
		t.Fatalf("expected ~0.0125, got %f", got)
	}
}
