package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/currency"
	"cashflow/internal/forecast"
	applog "cashflow/internal/log"
	"cashflow/internal/middleware/ratelimit"
	"cashflow/internal/services"
	"cashflow/internal/storage/memory"
)

const owner = "owner-1"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func now() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func newTestServer(t *testing.T, engine Engine, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s, err := NewServer(":0", engine, opts)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(s.limiter.Stop)
	return s
}

// newEngine returns an engine over an in-memory store seeded with a 5000
// balance, 10000 monthly income and 12000 monthly rent.
func newEngine(t *testing.T) *services.Engine {
	t.Helper()
	ctx := context.Background()
	store := memory.New().WithClock(now)
	provider := &currency.StaticProvider{Table: currency.RateTable{
		Base:  "USD",
		Rates: map[string]decimal.Decimal{"USD": d("1"), "ILS": d("3.6"), "EUR": d("0.9")},
		AsOf:  now(),
	}}
	conv := currency.NewConverter(provider, "ILS", currency.WithClock(now))
	e := services.NewEngine(store, conv, nil, services.Options{BaseCurrency: "ILS", Now: now})

	if _, err := e.SetCurrentBalance(ctx, owner, d("5000"), time.Time{}, "ILS"); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	for _, f := range []core.RecurringCommitment{
		{ID: "salary", OwnerID: owner, Name: "Salary", Amount: d("10000"), Currency: "ILS", Direction: core.Income, DayOfMonth: 1, StartDate: core.NewDate(2024, 1, 1)},
		{ID: "rent", OwnerID: owner, Name: "Rent", Amount: d("12000"), Currency: "ILS", Direction: core.Expense, DayOfMonth: 1, StartDate: core.NewDate(2024, 1, 1)},
	} {
		if err := store.SaveFixed(ctx, f); err != nil {
			t.Fatalf("save fixed: %v", err)
		}
	}
	return e
}

func do(t *testing.T, s *Server, method, path, ownerID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if ownerID != "" {
		req.Header.Set(OwnerHeader, ownerID)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{})

	if rr := do(t, s, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rr.Code)
	}

	failing := newTestServer(t, &stubEngine{err: errors.New("database is locked")}, Options{})
	if rr := do(t, failing, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing store status = %d, want 503", rr.Code)
	}
}

func TestMiddlewareChain(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{})

	rr := do(t, s, http.MethodGet, "/forecast", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing owner status = %d, want 401", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	if rr := do(t, s, http.MethodGet, "/nope", owner, ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rr.Code)
	}
}

func TestForecast(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{})

	rr := do(t, s, http.MethodGet, "/forecast?months=4", owner, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	got := decode[monthlyForecastResponse](t, rr)

	if got.CurrentBalance != "5000.00" || got.BaseCurrency != "ILS" {
		t.Errorf("current balance = %s %s", got.CurrentBalance, got.BaseCurrency)
	}
	if len(got.Months) != 4 {
		t.Fatalf("months = %d, want 4", len(got.Months))
	}
	wantClosing := []string{"3000.00", "1000.00", "-1000.00", "-3000.00"}
	for i, m := range got.Months {
		if m.ClosingBalance != wantClosing[i] {
			t.Errorf("month %s closing = %s, want %s", m.Label, m.ClosingBalance, wantClosing[i])
		}
	}
	if got.Months[1].OpeningBalance != got.Months[0].ClosingBalance {
		t.Error("opening balance must chain from previous closing balance")
	}
	if !got.HasNegativeMonths || got.FirstNegativeMonth == nil || *got.FirstNegativeMonth != "2025-03" {
		t.Errorf("negative months = %v %v", got.HasNegativeMonths, got.FirstNegativeMonth)
	}
	if got.RatesStale {
		t.Error("rates should be fresh")
	}
}

func TestForecast_Horizon(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{DefaultMonths: 3})

	tests := []struct {
		name   string
		path   string
		status int
		count  int
	}{
		{"default", "/forecast", http.StatusOK, 3},
		{"max", "/forecast?months=60", http.StatusOK, 60},
		{"zero", "/forecast?months=0", http.StatusUnprocessableEntity, 0},
		{"too long", "/forecast?months=61", http.StatusUnprocessableEntity, 0},
		{"not a number", "/forecast?months=six", http.StatusUnprocessableEntity, 0},
		{"weekly", "/forecast/weekly?weeks=2", http.StatusOK, 2},
		{"weekly negative", "/forecast/weekly?weeks=-1", http.StatusUnprocessableEntity, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, tt.path, owner, "")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status != http.StatusOK {
				body := decode[errorResponse](t, rr)
				if body.Error == "" {
					t.Error("validation error should carry a message")
				}
				return
			}
			var raw map[string]json.RawMessage
			json.Unmarshal(rr.Body.Bytes(), &raw)
			key := "months"
			if strings.HasPrefix(tt.path, "/forecast/weekly") {
				key = "weeks"
				if _, ok := raw["has_negative_weeks"]; !ok {
					t.Error("weekly response should report has_negative_weeks")
				}
			}
			var periods []periodResponse
			json.Unmarshal(raw[key], &periods)
			if len(periods) != tt.count {
				t.Errorf("%s = %d, want %d", key, len(periods), tt.count)
			}
		})
	}
}

func TestAlertsLifecycle(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{})

	rr := do(t, s, http.MethodPost, "/alerts/refresh?months=4", owner, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rr.Code, rr.Body.String())
	}
	refreshed := decode[refreshResponse](t, rr)
	if refreshed.Created != 2 || len(refreshed.Alerts) != 2 {
		t.Fatalf("refresh = %+v, want 2 created", refreshed)
	}

	list := decode[alertListResponse](t, do(t, s, http.MethodGet, "/alerts", owner, ""))
	if len(list.Alerts) != 2 || list.UnreadCount != 2 {
		t.Fatalf("list = %d alerts, unread %d", len(list.Alerts), list.UnreadCount)
	}
	first := list.Alerts[0]
	if first.Type != string(core.AlertNegativeCashflow) || first.Severity != string(core.SeverityWarning) {
		t.Errorf("unexpected alert %+v", first)
	}

	if rr := do(t, s, http.MethodPost, "/alerts/"+first.ID+"/read", owner, ""); rr.Code != http.StatusOK {
		t.Fatalf("read status = %d", rr.Code)
	}
	list = decode[alertListResponse](t, do(t, s, http.MethodGet, "/alerts", owner, ""))
	if list.UnreadCount != 1 {
		t.Errorf("unread after read = %d, want 1", list.UnreadCount)
	}

	rr = do(t, s, http.MethodPost, "/alerts/"+first.ID+"/dismiss", owner, "")
	if rr.Code != http.StatusOK || !decode[alertResponse](t, rr).IsDismissed {
		t.Fatalf("dismiss status = %d body %s", rr.Code, rr.Body.String())
	}

	sum := decode[summaryResponse](t, do(t, s, http.MethodGet, "/forecast/summary?months=4", owner, ""))
	if sum.AlertsCount != 1 || sum.EndBalance != "-3000.00" || !sum.HasNegativeMonths {
		t.Errorf("summary = %+v", sum)
	}

	t.Run("foreign owner", func(t *testing.T) {
		if rr := do(t, s, http.MethodPost, "/alerts/"+first.ID+"/read", "owner-2", ""); rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rr.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if rr := do(t, s, http.MethodDelete, "/alerts/"+first.ID, owner, ""); rr.Code != http.StatusNoContent {
			t.Fatalf("delete status = %d", rr.Code)
		}
		if rr := do(t, s, http.MethodDelete, "/alerts/"+first.ID, owner, ""); rr.Code != http.StatusNotFound {
			t.Errorf("second delete status = %d, want 404", rr.Code)
		}
	})
}

func TestBalance(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{})

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"valid", `{"amount":"1234.5","currency":"ils","effective_date":"2025-01-10"}`, http.StatusOK, ""},
		{"missing amount", `{"currency":"ILS"}`, http.StatusUnprocessableEntity, "amount"},
		{"malformed currency", `{"amount":"10","currency":"dollars"}`, http.StatusUnprocessableEntity, "currency"},
		{"bad date", `{"amount":"10","effective_date":"10/01/2025"}`, http.StatusUnprocessableEntity, "effective_date"},
		{"unknown field", `{"amount":"10","note":"x"}`, http.StatusUnprocessableEntity, "body"},
		{"empty body", ``, http.StatusUnprocessableEntity, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPut, "/balance", owner, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if tt.field != "" {
				if got := decode[errorResponse](t, rr).Field; got != tt.field {
					t.Errorf("field = %q, want %q", got, tt.field)
				}
			}
		})
	}

	cur := decode[balanceResponse](t, do(t, s, http.MethodGet, "/balance", owner, ""))
	if cur.Amount != "1234.50" || cur.Currency != "ILS" || !cur.IsCurrent {
		t.Errorf("current = %+v", cur)
	}

	history := decode[struct {
		Snapshots []balanceResponse `json:"snapshots"`
	}](t, do(t, s, http.MethodGet, "/balance/history", owner, ""))
	if len(history.Snapshots) != 2 {
		t.Fatalf("history = %d snapshots, want 2", len(history.Snapshots))
	}
	current := 0
	for _, snap := range history.Snapshots {
		if snap.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Errorf("current snapshots = %d, want exactly 1", current)
	}

	if rr := do(t, s, http.MethodGet, "/balance", "owner-2", ""); rr.Code != http.StatusNotFound {
		t.Errorf("balance of unknown owner status = %d, want 404", rr.Code)
	}
}

func TestLoans(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{})

	rr := do(t, s, http.MethodPost, "/loans", owner,
		`{"name":"Car","original_amount":"50000","monthly_payment":"2500","annual_interest_rate":"0","total_payments":20,"currency":"ILS","start_date":"2025-01-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	loan := decode[loanResponse](t, rr)
	if loan.ID == "" || loan.RemainingBalance != "50000.00" || loan.DayOfMonth != 1 {
		t.Errorf("created loan = %+v", loan)
	}

	rr = do(t, s, http.MethodPost, "/loans/"+loan.ID+"/payments", owner, `{"amount":"2500"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("payment status = %d, body %s", rr.Code, rr.Body.String())
	}
	paid := decode[loanResponse](t, rr)
	if paid.PaymentsMade != 1 || paid.RemainingBalance != "47500.00" {
		t.Errorf("after payment = %+v", paid)
	}

	rr = do(t, s, http.MethodPost, "/loans/"+loan.ID+"/payments", owner, `{"amount":"47501"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("overpayment status = %d, want 422", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "47500") {
		t.Errorf("overpayment should report the remaining balance: %s", rr.Body.String())
	}

	sched := decode[struct {
		Entries []scheduleEntryResponse `json:"entries"`
	}](t, do(t, s, http.MethodGet, "/loans/"+loan.ID+"/schedule", owner, ""))
	if len(sched.Entries) != 20 {
		t.Errorf("schedule entries = %d, want 20", len(sched.Entries))
	}

	invalid := []struct {
		name string
		body string
	}{
		{"payment too small", `{"name":"Bad","original_amount":"100000","monthly_payment":"100","annual_interest_rate":"12","total_payments":12,"start_date":"2025-01-01"}`},
		{"no payments", `{"name":"Bad","original_amount":"1000","monthly_payment":"100","annual_interest_rate":"0","total_payments":0,"start_date":"2025-01-01"}`},
		{"no name", `{"original_amount":"1000","monthly_payment":"100","annual_interest_rate":"0","total_payments":10,"start_date":"2025-01-01"}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, s, http.MethodPost, "/loans", owner, tt.body); rr.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (%s)", rr.Code, rr.Body.String())
			}
		})
	}

	if rr := do(t, s, http.MethodGet, "/loans/missing/schedule", owner, ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown loan status = %d, want 404", rr.Code)
	}
}

// stubEngine fails every call it overrides with err.
type stubEngine struct {
	Engine
	err error
}

func (s *stubEngine) Ready(context.Context) error { return s.err }

func (s *stubEngine) Project(context.Context, string, int) (forecast.Projection, error) {
	return forecast.Projection{}, s.err
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", core.NewValidationError("months", "bad"), http.StatusUnprocessableEntity},
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"conflict", core.NewConflictError("balance", "lost race"), http.StatusConflict},
		{"degraded", &core.DegradedDataError{Reason: "no exchange rates"}, http.StatusServiceUnavailable},
		{"internal", errors.New("disk on fire at /var/lib/cashflow.db"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			s := newTestServer(t, &stubEngine{err: tt.err}, Options{Logger: applog.New(applog.Config{Output: &logs})})

			rr := do(t, s, http.MethodGet, "/forecast", owner, "")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status != http.StatusInternalServerError {
				return
			}

			body := decode[errorResponse](t, rr)
			if body.Error != "internal error" || body.CorrelationID == "" {
				t.Errorf("body = %+v", body)
			}
			if strings.Contains(rr.Body.String(), "disk on fire") {
				t.Error("internal error details leaked to the client")
			}
			if !strings.Contains(logs.String(), body.CorrelationID) {
				t.Error("correlation id should be logged with the error")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, newEngine(t), Options{RateLimit: ratelimit.Config{RequestsPerMinute: 2}})

	for i := 0; i < 2; i++ {
		if rr := do(t, s, http.MethodGet, "/alerts", owner, ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rr.Code)
		}
	}
	if rr := do(t, s, http.MethodGet, "/alerts", owner, ""); rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/alerts", "owner-2", ""); rr.Code != http.StatusOK {
		t.Errorf("other owner status = %d, want 200", rr.Code)
	}
}

func TestNewServer_InvalidProxy(t *testing.T) {
	if _, err := NewServer(":0", &stubEngine{}, Options{TrustedProxies: []string{"nope"}}); err == nil {
		t.Error("expected error for invalid trusted proxy")
	}
}
