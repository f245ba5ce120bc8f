package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildPeriods_Monthly(t *testing.T) {
	now := time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)
	periods, err := BuildPeriods(Month, now, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(periods) != 14 {
		t.Fatalf("expected 14 periods, got %d", len(periods))
	}
	if periods[0].Label != "2025-01" || !periods[0].Start.Equal(NewDate(2025, 1, 1)) || !periods[0].End.Equal(NewDate(2025, 1, 31)) {
		t.Fatalf("unexpected first period %+v", periods[0])
	}
	if periods[1].End != NewDate(2025, 2, 28) {
		t.Fatalf("february should end on the 28th, got %s", periods[1].End)
	}
	if periods[13].Label != "2026-02" {
		t.Fatalf("unexpected last label %s", periods[13].Label)
	}
}

func TestBuildPeriods_Weekly(t *testing.T) {
	now := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC) // Wednesday
	periods, err := BuildPeriods(Week, now, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !periods[0].Start.Equal(NewDate(2025, 1, 13)) || !periods[0].End.Equal(NewDate(2025, 1, 19)) {
		t.Fatalf("unexpected first week %+v", periods[0])
	}
	if periods[0].Label != "2025-W03" {
		t.Fatalf("unexpected label %s", periods[0].Label)
	}
	if !periods[2].Start.Equal(NewDate(2025, 1, 27)) {
		t.Fatalf("unexpected third week start %s", periods[2].Start)
	}
}

func TestValidateHorizon(t *testing.T) {
	for _, h := range []int{-1, 0, 61} {
		err := ValidateHorizon(h)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("horizon %d: expected validation error, got %v", h, err)
		}
	}
	for _, h := range []int{1, 60} {
		if err := ValidateHorizon(h); err != nil {
			t.Fatalf("horizon %d: unexpected error %v", h, err)
		}
	}
}

func TestDueDateClampsToMonthEnd(t *testing.T) {
	if got := DueDate(2024, time.February, 31); !got.Equal(NewDate(2024, 2, 29)) {
		t.Fatalf("leap year clamp: got %s", got)
	}
	if got := AddMonthsClamped(NewDate(2025, 1, 31), 1); !got.Equal(NewDate(2025, 2, 28)) {
		t.Fatalf("AddMonthsClamped: got %s", got)
	}
	if got := AddMonthsClamped(NewDate(2025, 1, 31), 2); !got.Equal(NewDate(2025, 3, 31)) {
		t.Fatalf("AddMonthsClamped keeps anchor day: got %s", got)
	}
}

func TestInstallmentValidate(t *testing.T) {
	good := Installment{ID: "i1", TotalAmount: decimal.NewFromInt(7000), NumberOfPayments: 6, DayOfMonth: 10, StartDate: NewDate(2025, 1, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.PaymentsCompleted = 7
	if err := bad.Validate(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	bad = good
	bad.NumberOfPayments = 0
	if err := bad.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoanCheckIntegrity(t *testing.T) {
	l := Loan{ID: "l1", TotalPayments: 12, PaymentsMade: 13, RemainingBalance: decimal.Zero}
	if err := l.CheckIntegrity(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestRecurringCommitmentPauseResume(t *testing.T) {
	rc := RecurringCommitment{Amount: decimal.NewFromInt(10), Direction: Expense, DayOfMonth: 1, StartDate: NewDate(2025, 1, 1)}
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	rc.Pause(at)
	if !rc.Paused || !rc.PausedAt.Equal(at) {
		t.Fatalf("expected paused at %s", at)
	}
	rc.Resume(at.AddDate(0, 1, 0))
	if rc.Paused || rc.ResumedAt.IsZero() {
		t.Fatalf("expected resumed")
	}
	if err := rc.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestBillingCycleMonths(t *testing.T) {
	cases := map[BillingCycle]int{Monthly: 1, Quarterly: 3, SemiAnnual: 6, Annual: 12}
	for c, want := range cases {
		got, err := c.Months()
		if err != nil || got != want {
			t.Fatalf("%s: got %d, %v", c, got, err)
		}
	}
	if _, err := BillingCycle("biweekly").Months(); !errors.Is(err, ErrInvalidCycle) {
		t.Fatalf("expected ErrInvalidCycle, got %v", err)
	}
}
