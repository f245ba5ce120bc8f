// Package alerts derives severity-tiered alerts from forecast periods and
// stores them idempotently.
package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/keylock"
)

// Store persists alerts. UpsertAlert inserts a new alert with both user
// flags false, or updates severity, message and amount of the alert with the
// same key while leaving is_read and is_dismissed untouched. The boolean
// reports an insert.
type Store interface {
	UpsertAlert(ctx context.Context, a core.Alert) (core.Alert, bool, error)
	ListAlerts(ctx context.Context, ownerID string) ([]core.Alert, error)
	GetAlert(ctx context.Context, ownerID, id string) (core.Alert, error)
	MarkAlertRead(ctx context.Context, ownerID, id string) error
	DismissAlert(ctx context.Context, ownerID, id string) error
	DeleteAlert(ctx context.Context, ownerID, id string) error
}

// Thresholds are expressed in base currency units.
type Thresholds struct {
	Critical    decimal.Decimal
	HighExpense decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical:    decimal.NewFromInt(-5000),
		HighExpense: decimal.NewFromInt(10000),
	}
}

type Generator struct {
	store      Store
	thresholds Thresholds
	base       string
	locks      *keylock.Locker
}

func NewGenerator(store Store, t Thresholds, baseCurrency string) *Generator {
	return &Generator{store: store, thresholds: t, base: baseCurrency, locks: keylock.New()}
}

// Result of one regeneration.
type Result struct {
	Alerts  []core.Alert // every alert triggered by this run
	Created []core.Alert // the subset that did not exist before
}

// Evaluate returns the alerts the periods trigger without storing them.
// Per period a critical or warning negative_cashflow alert is raised first,
// then an independent info high_expenses alert.
func (g *Generator) Evaluate(ownerID string, periods []core.ForecastPeriod) []core.Alert {
	var out []core.Alert
	for _, p := range periods {
		switch {
		case p.ClosingBalance.LessThan(g.thresholds.Critical):
			out = append(out, core.Alert{
				OwnerID:     ownerID,
				Type:        core.AlertNegativeCashflow,
				Severity:    core.SeverityCritical,
				PeriodLabel: p.Label,
				Amount:      p.ClosingBalance,
				Message: fmt.Sprintf("Projected balance for %s is %s, below the critical threshold of %s",
					p.Label, core.FormatAmount(p.ClosingBalance, g.base), core.FormatAmount(g.thresholds.Critical, g.base)),
			})
		case p.ClosingBalance.IsNegative():
			out = append(out, core.Alert{
				OwnerID:     ownerID,
				Type:        core.AlertNegativeCashflow,
				Severity:    core.SeverityWarning,
				PeriodLabel: p.Label,
				Amount:      p.ClosingBalance,
				Message:     fmt.Sprintf("Projected balance for %s is negative: %s", p.Label, core.FormatAmount(p.ClosingBalance, g.base)),
			})
		}

		if excess := p.TotalExpenses.Sub(p.TotalIncome); excess.GreaterThan(g.thresholds.HighExpense) {
			out = append(out, core.Alert{
				OwnerID:     ownerID,
				Type:        core.AlertHighExpenses,
				Severity:    core.SeverityInfo,
				PeriodLabel: p.Label,
				Amount:      excess,
				Message: fmt.Sprintf("Expenses for %s exceed income by %s",
					p.Label, core.FormatAmount(excess, g.base)),
			})
		}
	}
	return out
}

// Regenerate evaluates the periods and upserts every triggered alert.
// Alerts whose condition no longer holds are left as they are.
func (g *Generator) Regenerate(ctx context.Context, ownerID string, periods []core.ForecastPeriod) (Result, error) {
	var res Result
	for _, a := range g.Evaluate(ownerID, periods) {
		stored, created, err := g.upsert(ctx, a)
		if err != nil {
			return res, fmt.Errorf("upsert alert %s: %w", a.Key(), err)
		}
		res.Alerts = append(res.Alerts, stored)
		if created {
			res.Created = append(res.Created, stored)
			slog.InfoContext(ctx, "Alert raised",
				"owner_id", ownerID,
				"alert_type", stored.Type,
				"severity", stored.Severity,
				"period", stored.PeriodLabel)
		}
	}
	return res, nil
}

func (g *Generator) upsert(ctx context.Context, a core.Alert) (core.Alert, bool, error) {
	unlock := g.locks.Lock(a.Key())
	defer unlock()
	return g.store.UpsertAlert(ctx, a)
}

func (g *Generator) List(ctx context.Context, ownerID string) ([]core.Alert, error) {
	return g.store.ListAlerts(ctx, ownerID)
}

func (g *Generator) MarkRead(ctx context.Context, ownerID, id string) (core.Alert, error) {
	if err := g.store.MarkAlertRead(ctx, ownerID, id); err != nil {
		return core.Alert{}, err
	}
	return g.store.GetAlert(ctx, ownerID, id)
}

func (g *Generator) Dismiss(ctx context.Context, ownerID, id string) (core.Alert, error) {
	if err := g.store.DismissAlert(ctx, ownerID, id); err != nil {
		return core.Alert{}, err
	}
	return g.store.GetAlert(ctx, ownerID, id)
}

// Delete removes an alert. This is the only way an alert goes away.
func (g *Generator) Delete(ctx context.Context, ownerID, id string) error {
	if err := g.store.DeleteAlert(ctx, ownerID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Alert deleted", "owner_id", ownerID, "alert_id", id)
	return nil
}

// ActiveCount counts alerts that have not been dismissed.
func ActiveCount(list []core.Alert) int {
	n := 0
	for _, a := range list {
		if !a.IsDismissed {
			n++
		}
	}
	return n
}

// UnreadCount counts alerts that are neither read nor dismissed.
func UnreadCount(list []core.Alert) int {
	n := 0
	for _, a := range list {
		if !a.IsRead && !a.IsDismissed {
			n++
		}
	}
	return n
}
