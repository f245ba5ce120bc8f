package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"cashflow/internal/amqp"
	"cashflow/internal/core"
	"cashflow/internal/forecast"
	"cashflow/internal/services"
	sheetsmem "cashflow/internal/sheets/memory"
)

type fakeProjector struct {
	fail map[string]bool
}

func (p *fakeProjector) Project(_ context.Context, ownerID string, months int) (forecast.Projection, error) {
	if p.fail[ownerID] {
		return forecast.Projection{}, errors.New("boom")
	}
	proj := forecast.Projection{OwnerID: ownerID, BaseCurrency: "ILS"}
	for i := 0; i < months; i++ {
		proj.Periods = append(proj.Periods, core.ForecastPeriod{Label: "p", ClosingBalance: decimal.NewFromInt(int64(i))})
	}
	return proj, nil
}

func TestExportWorker_HandleForecastRefreshed(t *testing.T) {
	exporter := sheetsmem.New()
	w := NewExportWorker(&fakeProjector{}, exporter)

	msg := amqp.NewForecastRefreshedMessage("owner-1", 3)
	if err := w.HandleForecastRefreshed(context.Background(), msg); err != nil {
		t.Fatalf("HandleForecastRefreshed() error = %v", err)
	}

	rows := exporter.Rows()
	if len(rows) != 3 {
		t.Fatalf("exported rows = %d, want 3", len(rows))
	}
	if rows[0][1] != "owner-1" {
		t.Errorf("owner column = %q", rows[0][1])
	}
}

func TestExportWorker_ProjectionErrorIsReturned(t *testing.T) {
	w := NewExportWorker(&fakeProjector{fail: map[string]bool{"bad": true}}, sheetsmem.New())

	err := w.HandleForecastRefreshed(context.Background(), amqp.NewForecastRefreshedMessage("bad", 3))
	if err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestExportWorker_ExportAllContinuesAfterFailure(t *testing.T) {
	exporter := sheetsmem.New()
	w := NewExportWorker(&fakeProjector{fail: map[string]bool{"bad": true}}, exporter)

	if err := w.ExportAll(context.Background(), []string{"a", "bad", "b"}, 2); err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if got := len(exporter.Rows()); got != 4 {
		t.Errorf("exported rows = %d, want 4", got)
	}
}

type fakeRefresher struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]bool
	month int
}

func (r *fakeRefresher) RefreshAlerts(_ context.Context, ownerID string, months int) (services.RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ownerID)
	r.month = months
	if r.fail[ownerID] {
		return services.RefreshResult{}, errors.New("boom")
	}
	return services.RefreshResult{Created: []core.Alert{{OwnerID: ownerID}}}, nil
}

type ownerList []string

func (o ownerList) Owners(context.Context) ([]string, error) { return o, nil }

type failingOwners struct{}

func (failingOwners) Owners(context.Context) ([]string, error) { return nil, errors.New("db down") }

func TestAlertScheduler_RunOnce(t *testing.T) {
	tests := []struct {
		name      string
		lister    OwnerLister
		fixed     []string
		fail      map[string]bool
		wantSeen  []string
		wantStats RunStats
		wantErr   bool
	}{
		{
			name:      "owners from store",
			lister:    ownerList{"a", "b", "c"},
			wantSeen:  []string{"a", "b", "c"},
			wantStats: RunStats{Owners: 3, Created: 3},
		},
		{
			name:      "fixed owners take precedence",
			lister:    ownerList{"a", "b", "c"},
			fixed:     []string{"z"},
			wantSeen:  []string{"z"},
			wantStats: RunStats{Owners: 1, Created: 1},
		},
		{
			name:      "failure is isolated",
			lister:    ownerList{"a", "b"},
			fail:      map[string]bool{"a": true},
			wantSeen:  []string{"a", "b"},
			wantStats: RunStats{Owners: 2, Created: 1, Failed: 1},
		},
		{
			name:    "owner listing fails",
			lister:  failingOwners{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRefresher{fail: tt.fail}
			s := NewAlertScheduler(r, tt.lister, tt.fixed, 6)

			stats, err := s.RunOnce(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunOnce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if stats != tt.wantStats {
				t.Errorf("stats = %+v, want %+v", stats, tt.wantStats)
			}
			sort.Strings(r.seen)
			if len(r.seen) != len(tt.wantSeen) {
				t.Fatalf("refreshed %v, want %v", r.seen, tt.wantSeen)
			}
			for i := range tt.wantSeen {
				if r.seen[i] != tt.wantSeen[i] {
					t.Errorf("refreshed %v, want %v", r.seen, tt.wantSeen)
				}
			}
			if r.month != 6 {
				t.Errorf("months = %d, want 6", r.month)
			}
		})
	}
}
