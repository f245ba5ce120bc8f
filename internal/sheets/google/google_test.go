package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/forecast"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExportForecast_NotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	_, err := c.ExportForecast(context.Background(), forecast.Projection{OwnerID: "owner-1"})
	if err == nil || err.Error() != "sheets service not initialized" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"Forecast", "2025 Forecast"},
		{" Forecast ", "2025 Forecast"},
		{"2024 Forecast", "2024 Forecast"},
		{"", ""},
		{"12345", "2025 12345"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, 2025); got != tt.want {
			t.Errorf("yearPrefixedName(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestColumnName(t *testing.T) {
	for n, want := range map[int]string{1: "A", 10: "J", 26: "Z", 27: "AA", 52: "AZ"} {
		if got := columnName(n); got != want {
			t.Errorf("columnName(%d) = %q, want %q", n, got, want)
		}
	}
}

// fakeSheets serves the two Values endpoints the exporter uses.
type fakeSheets struct {
	mu      sync.Mutex
	rows    int
	gets    int
	updates []string
	values  [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		f.gets++
		values := make([][]any, f.rows)
		for i := range values {
			values[i] = []any{"x"}
		}
		json.NewEncoder(w).Encode(map[string]any{"values": values})
	case http.MethodPut:
		if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
			http.Error(w, "missing valueInputOption", http.StatusBadRequest)
			return
		}
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates = append(f.updates, r.URL.Path)
		f.values = append(f.values, vr.Values...)
		f.rows += len(vr.Values)
		json.NewEncoder(w).Encode(map[string]any{"updatedRows": len(vr.Values)})
	default:
		http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	c := New(svc, "sheet-id", "")
	c.now = func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }
	return c
}

func projection() forecast.Projection {
	return forecast.Projection{
		OwnerID:      "owner-1",
		BaseCurrency: "ILS",
		Periods: []core.ForecastPeriod{
			{Label: "2025-01", ClosingBalance: decimal.NewFromInt(3000)},
			{Label: "2025-02", ClosingBalance: decimal.NewFromInt(1000)},
		},
	}
}

func TestExportForecast_WritesHeaderOnEmptySheet(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	ref, err := c.ExportForecast(context.Background(), projection())
	if err != nil {
		t.Fatalf("ExportForecast() error = %v", err)
	}
	if ref != "2025 Forecast!A1:J3" {
		t.Errorf("ref = %q, want 2025 Forecast!A1:J3", ref)
	}
	if len(fake.values) != 3 {
		t.Fatalf("written rows = %d, want 3", len(fake.values))
	}
	if fake.values[0][0] != "Exported At" {
		t.Errorf("first row should be the header, got %v", fake.values[0])
	}
	if fake.values[2][2] != "2025-02" || fake.values[2][7] != "1000.00" {
		t.Errorf("unexpected period row: %v", fake.values[2])
	}
}

func TestExportForecast_AppendsBelowExistingRows(t *testing.T) {
	fake := &fakeSheets{rows: 5}
	c := newTestClient(t, fake)

	ref, err := c.ExportForecast(context.Background(), projection())
	if err != nil {
		t.Fatalf("ExportForecast() error = %v", err)
	}
	if ref != "2025 Forecast!A6:J7" {
		t.Errorf("ref = %q, want 2025 Forecast!A6:J7", ref)
	}

	ref, err = c.ExportForecast(context.Background(), projection())
	if err != nil {
		t.Fatalf("second ExportForecast() error = %v", err)
	}
	if ref != "2025 Forecast!A8:J9" {
		t.Errorf("ref = %q, want 2025 Forecast!A8:J9", ref)
	}
	if fake.gets != 1 {
		t.Errorf("row count reads = %d, want 1 (second export served from cache)", fake.gets)
	}
}
