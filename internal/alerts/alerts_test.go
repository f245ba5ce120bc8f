package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func period(label, closing, income, expenses string) core.ForecastPeriod {
	return core.ForecastPeriod{
		Label:          label,
		ClosingBalance: d(closing),
		TotalIncome:    d(income),
		TotalExpenses:  d(expenses),
	}
}

func TestEvaluate(t *testing.T) {
	g := NewGenerator(memory.New(), DefaultThresholds(), "ILS")

	tests := []struct {
		name   string
		period core.ForecastPeriod
		want   []core.Severity
	}{
		{"healthy", period("2025-01", "1000", "5000", "4000"), nil},
		{"warning", period("2025-01", "-1", "5000", "4000"), []core.Severity{core.SeverityWarning}},
		{"exactly critical threshold is a warning", period("2025-01", "-5000", "0", "0"), []core.Severity{core.SeverityWarning}},
		{"critical", period("2025-01", "-5000.01", "0", "0"), []core.Severity{core.SeverityCritical}},
		{"high expenses only", period("2025-01", "100", "0", "10000.01"), []core.Severity{core.SeverityInfo}},
		{"expenses at threshold", period("2025-01", "100", "0", "10000"), nil},
		{"critical and high expenses", period("2025-01", "-9000", "1000", "20000"), []core.Severity{core.SeverityCritical, core.SeverityInfo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Evaluate("owner-1", []core.ForecastPeriod{tt.period})
			if len(got) != len(tt.want) {
				t.Fatalf("got %d alerts, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, a := range got {
				if a.Severity != tt.want[i] {
					t.Errorf("alert %d severity = %s, want %s", i, a.Severity, tt.want[i])
				}
			}
		})
	}
}

func TestRegenerateIsIdempotentAndKeepsUserState(t *testing.T) {
	store := memory.New()
	g := NewGenerator(store, DefaultThresholds(), "ILS")
	ctx := context.Background()
	periods := []core.ForecastPeriod{
		period("2025-02", "-100", "0", "100"),
		period("2025-03", "-6000", "0", "15000"),
	}

	first, err := g.Regenerate(ctx, "owner-1", periods)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(first.Alerts) != 3 || len(first.Created) != 3 {
		t.Fatalf("first run: %d alerts, %d created", len(first.Alerts), len(first.Created))
	}

	if _, err := g.MarkRead(ctx, "owner-1", first.Alerts[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := g.Dismiss(ctx, "owner-1", first.Alerts[1].ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	second, err := g.Regenerate(ctx, "owner-1", periods)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(second.Created) != 0 {
		t.Errorf("second run created %d alerts", len(second.Created))
	}

	list, _ := g.List(ctx, "owner-1")
	if len(list) != 3 {
		t.Fatalf("stored alerts = %d, want 3", len(list))
	}
	byID := map[string]core.Alert{}
	for _, a := range list {
		byID[a.ID] = a
	}
	if !byID[first.Alerts[0].ID].IsRead {
		t.Error("read flag lost on regeneration")
	}
	if !byID[first.Alerts[1].ID].IsDismissed {
		t.Error("dismissed flag lost on regeneration")
	}
	if ActiveCount(list) != 2 || UnreadCount(list) != 1 {
		t.Errorf("active=%d unread=%d", ActiveCount(list), UnreadCount(list))
	}
}

func TestRegenerateUpdatesSeverityInPlace(t *testing.T) {
	store := memory.New()
	g := NewGenerator(store, DefaultThresholds(), "ILS")
	ctx := context.Background()

	first, _ := g.Regenerate(ctx, "owner-1", []core.ForecastPeriod{period("2025-02", "-100", "0", "0")})
	second, _ := g.Regenerate(ctx, "owner-1", []core.ForecastPeriod{period("2025-02", "-8000", "0", "0")})

	if second.Alerts[0].ID != first.Alerts[0].ID {
		t.Error("alert with the same key got a new id")
	}
	if second.Alerts[0].Severity != core.SeverityCritical {
		t.Errorf("severity = %s, want critical", second.Alerts[0].Severity)
	}
}

func TestRegenerateLeavesResolvedAlerts(t *testing.T) {
	store := memory.New()
	g := NewGenerator(store, DefaultThresholds(), "ILS")
	ctx := context.Background()

	if _, err := g.Regenerate(ctx, "owner-1", []core.ForecastPeriod{period("2025-02", "-100", "0", "0")}); err != nil {
		t.Fatalf("first regenerate: %v", err)
	}
	res, err := g.Regenerate(ctx, "owner-1", []core.ForecastPeriod{period("2025-02", "500", "0", "0")})
	if err != nil {
		t.Fatalf("second regenerate: %v", err)
	}
	if len(res.Alerts) != 0 {
		t.Errorf("resolved condition re-triggered %d alerts", len(res.Alerts))
	}

	list, err := g.List(ctx, "owner-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("resolved alert should stay until deleted, got %d", len(list))
	}
}

func TestConcurrentRegenerateCreatesNoDuplicates(t *testing.T) {
	store := memory.New()
	g := NewGenerator(store, DefaultThresholds(), "ILS")
	ctx := context.Background()
	periods := []core.ForecastPeriod{period("2025-02", "-100", "0", "0")}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Regenerate(ctx, "owner-1", periods); err != nil {
				t.Errorf("regenerate: %v", err)
			}
		}()
	}
	wg.Wait()

	list, _ := g.List(ctx, "owner-1")
	if len(list) != 1 {
		t.Errorf("expected one alert, got %d", len(list))
	}
}

func TestDeleteAndOwnerScope(t *testing.T) {
	store := memory.New()
	g := NewGenerator(store, DefaultThresholds(), "ILS")
	ctx := context.Background()

	res, _ := g.Regenerate(ctx, "owner-1", []core.ForecastPeriod{period("2025-02", "-100", "0", "0")})
	id := res.Alerts[0].ID

	if _, err := g.MarkRead(ctx, "owner-2", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("other owner could touch alert: %v", err)
	}
	if err := g.Delete(ctx, "owner-1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := g.Delete(ctx, "owner-1", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}

	again, _ := g.Regenerate(ctx, "owner-1", []core.ForecastPeriod{period("2025-02", "-100", "0", "0")})
	if len(again.Created) != 1 {
		t.Error("deleted alert should be raised again as new")
	}
}
