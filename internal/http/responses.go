package http

import (
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/forecast"
	"cashflow/internal/schedule"
)

// Money is rendered as a fixed two-decimal string.
func money(d decimal.Decimal) string {
	return d.StringFixed(core.MoneyPlaces)
}

func moneyMap(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = money(v)
	}
	return out
}

type periodResponse struct {
	Label            string            `json:"label"`
	Start            string            `json:"start"`
	End              string            `json:"end"`
	OpeningBalance   string            `json:"opening_balance"`
	IncomeBreakdown  map[string]string `json:"income_breakdown"`
	ExpenseBreakdown map[string]string `json:"expense_breakdown"`
	TotalIncome      string            `json:"total_income"`
	TotalExpenses    string            `json:"total_expenses"`
	NetChange        string            `json:"net_change"`
	ClosingBalance   string            `json:"closing_balance"`
}

func toPeriods(in []core.ForecastPeriod) []periodResponse {
	out := make([]periodResponse, 0, len(in))
	for _, p := range in {
		out = append(out, periodResponse{
			Label:            p.Label,
			Start:            formatDate(p.Start),
			End:              formatDate(p.End),
			OpeningBalance:   money(p.OpeningBalance),
			IncomeBreakdown:  moneyMap(p.IncomeBreakdown),
			ExpenseBreakdown: moneyMap(p.ExpenseBreakdown),
			TotalIncome:      money(p.TotalIncome),
			TotalExpenses:    money(p.TotalExpenses),
			NetChange:        money(p.NetChange),
			ClosingBalance:   money(p.ClosingBalance),
		})
	}
	return out
}

type monthlyForecastResponse struct {
	CurrentBalance     string           `json:"current_balance"`
	BaseCurrency       string           `json:"base_currency"`
	Months             []periodResponse `json:"months"`
	HasNegativeMonths  bool             `json:"has_negative_months"`
	FirstNegativeMonth *string          `json:"first_negative_month"`
	RatesStale         bool             `json:"rates_stale"`
	RatesAsOf          *time.Time       `json:"rates_as_of,omitempty"`
}

type weeklyForecastResponse struct {
	CurrentBalance    string           `json:"current_balance"`
	BaseCurrency      string           `json:"base_currency"`
	Weeks             []periodResponse `json:"weeks"`
	HasNegativeWeeks  bool             `json:"has_negative_weeks"`
	FirstNegativeWeek *string          `json:"first_negative_week"`
	RatesStale        bool             `json:"rates_stale"`
	RatesAsOf         *time.Time       `json:"rates_as_of,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toMonthly(p forecast.Projection) monthlyForecastResponse {
	return monthlyForecastResponse{
		CurrentBalance:     money(p.CurrentBalance),
		BaseCurrency:       p.BaseCurrency,
		Months:             toPeriods(p.Periods),
		HasNegativeMonths:  p.HasNegativePeriods,
		FirstNegativeMonth: optional(p.FirstNegativePeriod),
		RatesStale:         p.RatesStale,
		RatesAsOf:          p.RatesAsOf,
	}
}

func toWeekly(p forecast.Projection) weeklyForecastResponse {
	return weeklyForecastResponse{
		CurrentBalance:    money(p.CurrentBalance),
		BaseCurrency:      p.BaseCurrency,
		Weeks:             toPeriods(p.Periods),
		HasNegativeWeeks:  p.HasNegativePeriods,
		FirstNegativeWeek: optional(p.FirstNegativePeriod),
		RatesStale:        p.RatesStale,
		RatesAsOf:         p.RatesAsOf,
	}
}

type summaryResponse struct {
	TotalExpectedIncome   string `json:"total_expected_income"`
	TotalExpectedExpenses string `json:"total_expected_expenses"`
	NetProjected          string `json:"net_projected"`
	EndBalance            string `json:"end_balance"`
	HasNegativeMonths     bool   `json:"has_negative_months"`
	AlertsCount           int    `json:"alerts_count"`
	RatesStale            bool   `json:"rates_stale"`
}

func toSummary(s forecast.Summary) summaryResponse {
	return summaryResponse{
		TotalExpectedIncome:   money(s.TotalExpectedIncome),
		TotalExpectedExpenses: money(s.TotalExpectedExpenses),
		NetProjected:          money(s.NetProjected),
		EndBalance:            money(s.EndBalance),
		HasNegativeMonths:     s.HasNegativeMonths,
		AlertsCount:           s.AlertsCount,
		RatesStale:            s.RatesStale,
	}
}

type alertResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Period      string    `json:"period"`
	Message     string    `json:"message"`
	Amount      string    `json:"amount"`
	IsRead      bool      `json:"is_read"`
	IsDismissed bool      `json:"is_dismissed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAlert(a core.Alert) alertResponse {
	return alertResponse{
		ID:          a.ID,
		Type:        string(a.Type),
		Severity:    string(a.Severity),
		Period:      a.PeriodLabel,
		Message:     a.Message,
		Amount:      money(a.Amount),
		IsRead:      a.IsRead,
		IsDismissed: a.IsDismissed,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAlerts(in []core.Alert) []alertResponse {
	out := make([]alertResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAlert(a))
	}
	return out
}

type balanceResponse struct {
	ID            string    `json:"id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	EffectiveDate time.Time `json:"effective_date"`
	IsCurrent     bool      `json:"is_current"`
	CreatedAt     time.Time `json:"created_at"`
}

func toBalance(b core.BalanceSnapshot) balanceResponse {
	return balanceResponse{
		ID:            b.ID,
		Amount:        money(b.Amount),
		Currency:      b.Currency,
		EffectiveDate: b.EffectiveDate,
		IsCurrent:     b.IsCurrent,
		CreatedAt:     b.CreatedAt,
	}
}

type loanResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	OriginalAmount     string `json:"original_amount"`
	MonthlyPayment     string `json:"monthly_payment"`
	AnnualInterestRate string `json:"annual_interest_rate"`
	TotalPayments      int    `json:"total_payments"`
	PaymentsMade       int    `json:"payments_made"`
	RemainingBalance   string `json:"remaining_balance"`
	Currency           string `json:"currency"`
	StartDate          string `json:"start_date"`
	DayOfMonth         int    `json:"day_of_month"`
}

func toLoan(l core.Loan) loanResponse {
	return loanResponse{
		ID:                 l.ID,
		Name:               l.Name,
		OriginalAmount:     money(l.OriginalAmount),
		MonthlyPayment:     money(l.MonthlyPayment),
		AnnualInterestRate: l.AnnualInterestRate.String(),
		TotalPayments:      l.TotalPayments,
		PaymentsMade:       l.PaymentsMade,
		RemainingBalance:   money(l.RemainingBalance),
		Currency:           l.Currency,
		StartDate:          formatDate(l.StartDate),
		DayOfMonth:         l.DayOfMonth,
	}
}

type scheduleEntryResponse struct {
	Number           int    `json:"number"`
	Payment          string `json:"payment"`
	Principal        string `json:"principal"`
	Interest         string `json:"interest"`
	RemainingBalance string `json:"remaining_balance"`
}

func toSchedule(in []schedule.AmortizationEntry) []scheduleEntryResponse {
	out := make([]scheduleEntryResponse, 0, len(in))
	for _, e := range in {
		out = append(out, scheduleEntryResponse{
			Number:           e.Number,
			Payment:          money(e.Payment),
			Principal:        money(e.Principal),
			Interest:         money(e.Interest),
			RemainingBalance: money(e.RemainingBalance),
		})
	}
	return out
}
