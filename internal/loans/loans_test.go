package loans

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func clock() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }

func newLoan() core.Loan {
	return core.Loan{
		OwnerID:            "owner-1",
		Name:               "Car",
		OriginalAmount:     d("50000"),
		MonthlyPayment:     d("2500"),
		AnnualInterestRate: d("0"),
		TotalPayments:      20,
		StartDate:          core.NewDate(2025, 1, 10),
	}
}

func TestCreateLoan(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)

	l, err := svc.Create(context.Background(), newLoan())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.ID == "" || l.Currency != "ILS" || l.DayOfMonth != 10 {
		t.Errorf("unexpected defaults %+v", l)
	}
	if !l.RemainingBalance.Equal(d("50000")) || l.PaymentsMade != 0 {
		t.Errorf("remaining=%s made=%d", l.RemainingBalance, l.PaymentsMade)
	}
}

func TestCreateLoanRejectsPaymentBelowInterest(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)
	loan := newLoan()
	loan.OriginalAmount = d("100000")
	loan.AnnualInterestRate = d("12")
	loan.MonthlyPayment = d("1000")

	_, err := svc.Create(context.Background(), loan)
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "interest") {
		t.Errorf("message should mention interest: %v", err)
	}
}

func TestRecordPayment(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)
	ctx := context.Background()
	l, _ := svc.Create(ctx, newLoan())

	got, err := svc.RecordPayment(ctx, "owner-1", l.ID, d("2500"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got.PaymentsMade != 1 || !got.RemainingBalance.Equal(d("47500")) {
		t.Errorf("made=%d remaining=%s, want 1 and 47500", got.PaymentsMade, got.RemainingBalance)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		setup    func(*core.Loan)
		amount   string
		contains string
	}{
		{"zero amount", nil, "0", "greater than zero"},
		{"exceeds remaining", nil, "60000", "50000.00 ILS"},
		{"short final payment", func(l *core.Loan) { l.TotalPayments = 1; l.MonthlyPayment = d("50000") }, "100", "final payment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(memory.New(), "ILS", clock)
			loan := newLoan()
			if tt.setup != nil {
				tt.setup(&loan)
			}
			l, err := svc.Create(ctx, loan)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			_, err = svc.RecordPayment(ctx, "owner-1", l.ID, d(tt.amount))
			if !core.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestRecordPaymentPaysOffExactly(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)
	ctx := context.Background()
	loan := newLoan()
	loan.OriginalAmount = d("5000")
	loan.TotalPayments = 2
	l, _ := svc.Create(ctx, loan)

	for i := 0; i < 2; i++ {
		if _, err := svc.RecordPayment(ctx, "owner-1", l.ID, d("2500")); err != nil {
			t.Fatalf("payment %d: %v", i+1, err)
		}
	}
	got, _ := svc.Get(ctx, "owner-1", l.ID)
	if !got.RemainingBalance.IsZero() || got.PaymentsMade != 2 {
		t.Errorf("remaining=%s made=%d", got.RemainingBalance, got.PaymentsMade)
	}

	if _, err := svc.RecordPayment(ctx, "owner-1", l.ID, d("1")); !core.IsValidation(err) {
		t.Errorf("expected fully paid rejection, got %v", err)
	}
}

func TestConcurrentPaymentsAreNotLost(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)
	ctx := context.Background()
	l, _ := svc.Create(ctx, newLoan())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordPayment(ctx, "owner-1", l.ID, d("1000")); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := svc.Get(ctx, "owner-1", l.ID)
	if got.PaymentsMade != 10 || !got.RemainingBalance.Equal(d("40000")) {
		t.Errorf("made=%d remaining=%s, want 10 and 40000", got.PaymentsMade, got.RemainingBalance)
	}
}

func TestRecordPaymentUnknownLoan(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)
	_, err := svc.RecordPayment(context.Background(), "owner-1", "missing", d("1"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSchedule(t *testing.T) {
	svc := NewService(memory.New(), "ILS", clock)
	ctx := context.Background()
	loan := newLoan()
	loan.OriginalAmount = d("100000")
	loan.AnnualInterestRate = d("3.5")
	loan.TotalPayments = 48
	l, err := svc.Create(ctx, loan)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	entries, err := svc.Schedule(ctx, "owner-1", l.ID)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(entries) != 48 {
		t.Fatalf("entries = %d, want 48", len(entries))
	}
	if !entries[47].RemainingBalance.IsZero() {
		t.Errorf("final balance = %s, want 0", entries[47].RemainingBalance)
	}
}
