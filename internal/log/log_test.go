package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_ComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf}).WithComponent(ComponentForecast)

	logger.Info("hidden")
	logger.Warn("shown", FieldOwnerID, "owner-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "component=forecast") || !strings.Contains(out, "owner_id=owner-1") {
		t.Errorf("unexpected output: %s", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component should be logged once: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("missing logger should fall back to the default")
	}

	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentHTTP})

	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("request id missing: %s", buf.String())
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{core.NewValidationError("months", "out of range"), ErrorTypeValidation},
		{fmt.Errorf("get: %w", core.ErrNotFound), ErrorTypeNotFound},
		{core.NewConflictError("balance", "lost race"), ErrorTypeConflict},
		{&core.DegradedDataError{Reason: "no rates"}, ErrorTypeDegraded},
		{errors.New("boom"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Output: &buf}))

	sl.LogAlertRaised(context.Background(), core.Alert{
		OwnerID:     "owner-1",
		Type:        core.AlertNegativeCashflow,
		Severity:    core.SeverityWarning,
		PeriodLabel: "2025-03",
		Amount:      decimal.NewFromInt(-3000),
	})
	sl.LogError(context.Background(), "refresh failed", core.ErrNotFound, ComponentAlerts, OpRegenerate, nil)

	out := buf.String()
	for _, want := range []string{"alert_type=negative_cashflow", "period=2025-03", "amount=-3000.00", "error_type=not_found_error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
