package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/forecast"
)

func TestExporterAppendsRows(t *testing.T) {
	e := New()
	e.now = func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }

	p := forecast.Projection{
		OwnerID:      "owner-1",
		BaseCurrency: "ILS",
		Periods: []core.ForecastPeriod{
			{Label: "2025-01", ClosingBalance: decimal.NewFromInt(100)},
			{Label: "2025-02", ClosingBalance: decimal.NewFromInt(-50)},
		},
	}

	ref, err := e.ExportForecast(context.Background(), p)
	if err != nil || ref != "mem:1-2" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	ref, err = e.ExportForecast(context.Background(), p)
	if err != nil || ref != "mem:3-4" {
		t.Fatalf("unexpected second export: ref=%q err=%v", ref, err)
	}

	rows := e.Rows()
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[1][2] != "2025-02" || rows[1][7] != "-50.00" {
		t.Errorf("unexpected row: %v", rows[1])
	}
	if rows[0][0] != "2025-01-15T12:00:00Z" {
		t.Errorf("exported at = %q", rows[0][0])
	}
}

func TestExporterRequiresOwner(t *testing.T) {
	if _, err := New().ExportForecast(context.Background(), forecast.Projection{}); err == nil {
		t.Fatal("expected error for missing owner")
	}
}
