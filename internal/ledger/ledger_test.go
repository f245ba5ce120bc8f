package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/storage/memory"
)

func fixedClock() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }

func TestSetCurrentReplacesPrevious(t *testing.T) {
	store := memory.New()
	l := New(store, "ILS", fixedClock)
	ctx := context.Background()

	first, err := l.SetCurrent(ctx, "owner-1", decimal.NewFromInt(5000), time.Time{}, "")
	if err != nil {
		t.Fatalf("first set: %v", err)
	}
	if first.Currency != "ILS" {
		t.Errorf("currency = %s, want base ILS", first.Currency)
	}

	second, err := l.SetCurrent(ctx, "owner-1", decimal.RequireFromString("6200.456"), time.Time{}, "usd")
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if !second.Amount.Equal(decimal.RequireFromString("6200.46")) {
		t.Errorf("amount = %s, want 6200.46", second.Amount)
	}

	current, err := l.Current(ctx, "owner-1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.ID != second.ID {
		t.Errorf("current = %s, want %s", current.ID, second.ID)
	}

	history, err := l.History(ctx, "owner-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].ID != second.ID || history[1].IsCurrent {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestSetCurrentValidation(t *testing.T) {
	l := New(memory.New(), "ILS", fixedClock)

	tests := []struct {
		name     string
		owner    string
		currency string
	}{
		{"missing owner", "", "ILS"},
		{"bad currency", "owner-1", "SHEKEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SetCurrent(context.Background(), tt.owner, decimal.NewFromInt(1), time.Time{}, tt.currency)
			if !core.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestConcurrentSetCurrentLeavesOneCurrent(t *testing.T) {
	store := memory.New()
	l := New(store, "ILS", fixedClock)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.SetCurrent(ctx, "owner-1", decimal.NewFromInt(int64(1000*(i+1))), time.Time{}, "ILS"); err != nil {
				t.Errorf("set current: %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, _ := l.History(ctx, "owner-1")
	currents := 0
	for _, s := range history {
		if s.IsCurrent {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("expected exactly one current snapshot, got %d", currents)
	}
}

// Two ledgers over one store model two processes: the app-level lock no
// longer helps and the store's compare-and-swap has to reject the loser.
func TestCompareAndSwapAcrossLedgers(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	a := New(store, "ILS", fixedClock)

	if _, err := a.SetCurrent(ctx, "owner-1", decimal.NewFromInt(1), time.Time{}, "ILS"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	stale, _ := store.CurrentBalance(ctx, "owner-1")

	if _, err := a.SetCurrent(ctx, "owner-1", decimal.NewFromInt(2), time.Time{}, "ILS"); err != nil {
		t.Fatalf("second: %v", err)
	}

	err := store.ReplaceCurrentBalance(ctx, stale.ID, core.BalanceSnapshot{ID: "late", OwnerID: "owner-1", Amount: decimal.NewFromInt(3)})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var conflict *core.ConflictError
	if !errors.As(err, &conflict) || conflict.Resource != "balance" {
		t.Errorf("unexpected conflict error %v", err)
	}
}

func TestCurrentNotFound(t *testing.T) {
	l := New(memory.New(), "ILS", fixedClock)
	if _, err := l.Current(context.Background(), "nobody"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
