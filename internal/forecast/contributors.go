package forecast

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/schedule"
)

// Breakdown keys.
const (
	SourceFixed          = "fixed"
	SourceInstallment    = "installment"
	SourceLoan           = "loan"
	SourceSubscription   = "subscription"
	SourceExpectedIncome = "expected_income"
	SourceTransaction    = "transaction"
)

// Contribution is the amount one commitment adds to one period, in the
// commitment's own currency.
type Contribution struct {
	Source    string
	Direction core.Direction
	Amount    decimal.Decimal
	Currency  string
}

// Contributor is implemented by every commitment kind the aggregator knows.
// The set is closed: new kinds are added in this package next to the others.
type Contributor interface {
	Contribute(p core.Period) (Contribution, bool)
	contributor()
}

// Contributors turns the records of one owner into their contributor
// variants, rejecting records that contradict their own invariants.
func Contributors(c core.Commitments) ([]Contributor, error) {
	out := make([]Contributor, 0, len(c.Fixed)+len(c.Installments)+len(c.Loans)+
		len(c.Subscriptions)+len(c.ExpectedIncome)+len(c.Transactions))

	for _, f := range c.Fixed {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("fixed item %s: %w", f.ID, err)
		}
		out = append(out, fixedItem{f})
	}
	for _, in := range c.Installments {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("installment %s: %w", in.ID, err)
		}
		plan, err := schedule.SplitInstallment(in.TotalAmount, in.NumberOfPayments)
		if err != nil {
			return nil, fmt.Errorf("installment %s: %w", in.ID, err)
		}
		out = append(out, installmentItem{in: in, plan: plan})
	}
	for _, l := range c.Loans {
		if err := l.CheckIntegrity(); err != nil {
			return nil, err
		}
		if l.StartDate.IsZero() || l.DayOfMonth < 1 || l.DayOfMonth > 31 {
			return nil, core.NewIntegrityError("loan", l.ID, "missing start date or payment day")
		}
		out = append(out, loanItem{l})
	}
	for _, s := range c.Subscriptions {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("subscription %s: %w", s.ID, err)
		}
		cycle, _ := s.BillingCycle.Months()
		out = append(out, subscriptionItem{sub: s, cycle: cycle})
	}
	for _, ei := range c.ExpectedIncome {
		out = append(out, expectedIncomeItem{ei})
	}
	for _, tx := range c.Transactions {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		out = append(out, transactionItem{tx})
	}
	return out, nil
}

// monthsIn lists the first day of every calendar month overlapping p. A
// week can straddle two months.
func monthsIn(p core.Period) []time.Time {
	first := core.MonthStart(p.Start)
	last := core.MonthStart(p.End)
	months := []time.Time{first}
	for m := first.AddDate(0, 1, 0); !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// paymentIndex returns the 1-based index of the monthly payment due inside
// p. Payment k falls on the k-th clamped occurrence of day strictly after
// start.
func paymentIndex(start time.Time, day int, p core.Period) (int, bool) {
	start = core.DateOf(start)
	firstMonth := core.MonthStart(start)
	if !core.DueDate(start.Year(), start.Month(), day).After(start) {
		firstMonth = firstMonth.AddDate(0, 1, 0)
	}
	for _, m := range monthsIn(p) {
		due := core.DueDate(m.Year(), m.Month(), day)
		if !p.Contains(due) {
			continue
		}
		k := core.MonthsBetween(firstMonth, m) + 1
		if k >= 1 {
			return k, true
		}
	}
	return 0, false
}

type fixedItem struct{ c core.RecurringCommitment }

func (fixedItem) contributor() {}

func (f fixedItem) Contribute(p core.Period) (Contribution, bool) {
	c := f.c
	if c.Paused {
		return Contribution{}, false
	}
	if core.DateOf(c.StartDate).After(p.End) {
		return Contribution{}, false
	}
	if !c.EndDate.IsZero() && core.DateOf(c.EndDate).Before(p.Start) {
		return Contribution{}, false
	}
	for _, m := range monthsIn(p) {
		if p.Contains(core.DueDate(m.Year(), m.Month(), c.DayOfMonth)) {
			return Contribution{Source: SourceFixed, Direction: c.Direction, Amount: c.Amount, Currency: c.Currency}, true
		}
	}
	return Contribution{}, false
}

type installmentItem struct {
	in   core.Installment
	plan []decimal.Decimal
}

func (installmentItem) contributor() {}

func (i installmentItem) Contribute(p core.Period) (Contribution, bool) {
	k, ok := paymentIndex(i.in.StartDate, i.in.DayOfMonth, p)
	if !ok || k <= i.in.PaymentsCompleted || k > i.in.NumberOfPayments {
		return Contribution{}, false
	}
	return Contribution{Source: SourceInstallment, Direction: core.Expense, Amount: i.plan[k-1], Currency: i.in.Currency}, true
}

type loanItem struct{ l core.Loan }

func (loanItem) contributor() {}

// Payments already recorded are settled and never projected again.
func (li loanItem) Contribute(p core.Period) (Contribution, bool) {
	if !li.l.RemainingBalance.IsPositive() {
		return Contribution{}, false
	}
	k, ok := paymentIndex(li.l.StartDate, li.l.DayOfMonth, p)
	if !ok || k <= li.l.PaymentsMade || k > li.l.TotalPayments {
		return Contribution{}, false
	}
	return Contribution{Source: SourceLoan, Direction: core.Expense, Amount: li.l.MonthlyPayment, Currency: li.l.Currency}, true
}

type subscriptionItem struct {
	sub   core.Subscription
	cycle int
}

func (subscriptionItem) contributor() {}

// Renewal j falls on NextRenewalDate advanced by j cycles. A subscription
// that is inactive or will not auto-renew lapses and charges nothing.
func (s subscriptionItem) Contribute(p core.Period) (Contribution, bool) {
	if !s.sub.Active || !s.sub.AutoRenew {
		return Contribution{}, false
	}
	anchor := core.DateOf(s.sub.NextRenewalDate)
	j := core.MonthsBetween(anchor, p.Start)/s.cycle - 1
	if j < 0 {
		j = 0
	}
	for ; ; j++ {
		renewal := core.AddMonthsClamped(anchor, j*s.cycle)
		if renewal.After(p.End) {
			return Contribution{}, false
		}
		if p.Contains(renewal) {
			return Contribution{Source: SourceSubscription, Direction: core.Expense, Amount: s.sub.Amount, Currency: s.sub.Currency}, true
		}
	}
}

type expectedIncomeItem struct{ ei core.ExpectedIncome }

func (expectedIncomeItem) contributor() {}

// Monthly overrides land in the period holding the first day of their month.
func (e expectedIncomeItem) Contribute(p core.Period) (Contribution, bool) {
	if !p.Contains(core.MonthStart(e.ei.Month)) {
		return Contribution{}, false
	}
	return Contribution{Source: SourceExpectedIncome, Direction: core.Income, Amount: e.ei.Amount, Currency: e.ei.Currency}, true
}

type transactionItem struct{ tx core.Transaction }

func (transactionItem) contributor() {}

func (t transactionItem) Contribute(p core.Period) (Contribution, bool) {
	if !p.Contains(t.tx.Date) {
		return Contribution{}, false
	}
	return Contribution{Source: SourceTransaction, Direction: t.tx.Direction, Amount: t.tx.Amount, Currency: t.tx.Currency}, true
}
