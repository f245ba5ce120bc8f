// Package services wires the forecast, alert, ledger and loan components
// into the Engine used by the HTTP API and the workers.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/alerts"
	"cashflow/internal/amqp"
	"cashflow/internal/core"
	"cashflow/internal/forecast"
	"cashflow/internal/ledger"
	"cashflow/internal/loans"
	"cashflow/internal/schedule"
)

// Store is the persistence the engine runs on.
type Store interface {
	forecast.Source
	ledger.Store
	alerts.Store
	loans.Store
	Ping(ctx context.Context) error
	Close() error
}

// Publisher emits engine events. A nil Publisher disables publication.
type Publisher interface {
	PublishForecastRefreshed(ctx context.Context, msg *amqp.ForecastRefreshedMessage) error
	PublishAlertRaised(ctx context.Context, msg *amqp.AlertRaisedMessage) error
	Close() error
}

type Options struct {
	BaseCurrency string
	Thresholds   alerts.Thresholds
	Now          func() time.Time
}

type Engine struct {
	store     Store
	publisher Publisher
	base      string

	forecast *forecast.Aggregator
	ledger   *ledger.Ledger
	alerts   *alerts.Generator
	loans    *loans.Service
}

func NewEngine(store Store, rates forecast.RateSource, publisher Publisher, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base := strings.ToUpper(opts.BaseCurrency)
	if opts.Thresholds == (alerts.Thresholds{}) {
		opts.Thresholds = alerts.DefaultThresholds()
	}

	l := ledger.New(store, base, opts.Now)
	return &Engine{
		store:     store,
		publisher: publisher,
		base:      base,
		forecast:  forecast.NewAggregator(store, l, rates, base, opts.Now),
		ledger:    l,
		alerts:    alerts.NewGenerator(store, opts.Thresholds, base),
		loans:     loans.NewService(store, base, opts.Now),
	}
}

func (e *Engine) BaseCurrency() string { return e.base }

func (e *Engine) Project(ctx context.Context, ownerID string, months int) (forecast.Projection, error) {
	if err := requireOwner(ownerID); err != nil {
		return forecast.Projection{}, err
	}
	return e.forecast.Project(ctx, ownerID, months)
}

func (e *Engine) ProjectWeekly(ctx context.Context, ownerID string, weeks int) (forecast.Projection, error) {
	if err := requireOwner(ownerID); err != nil {
		return forecast.Projection{}, err
	}
	return e.forecast.ProjectWeekly(ctx, ownerID, weeks)
}

// Summarize aggregates a monthly projection. AlertsCount counts stored
// alerts that are not dismissed.
func (e *Engine) Summarize(ctx context.Context, ownerID string, months int) (forecast.Summary, error) {
	proj, err := e.Project(ctx, ownerID, months)
	if err != nil {
		return forecast.Summary{}, err
	}
	list, err := e.alerts.List(ctx, ownerID)
	if err != nil {
		return forecast.Summary{}, fmt.Errorf("list alerts: %w", err)
	}

	s := forecast.Summarize(proj)
	s.AlertsCount = alerts.ActiveCount(list)
	return s, nil
}

// RefreshResult is the outcome of one alert regeneration.
type RefreshResult struct {
	Projection forecast.Projection
	Alerts     []core.Alert
	Created    []core.Alert
}

// RefreshAlerts projects months ahead, regenerates the owner's alerts and
// publishes the resulting events. Publication failures are logged only.
func (e *Engine) RefreshAlerts(ctx context.Context, ownerID string, months int) (RefreshResult, error) {
	proj, err := e.Project(ctx, ownerID, months)
	if err != nil {
		return RefreshResult{}, err
	}

	res, err := e.alerts.Regenerate(ctx, ownerID, proj.Periods)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("regenerate alerts: %w", err)
	}

	if err := e.publishRefreshed(ctx, proj, months); err != nil {
		slog.ErrorContext(ctx, "Failed to publish forecast refreshed event",
			"owner_id", ownerID, "error", err)
	}
	for _, a := range res.Created {
		if err := e.publishAlert(ctx, a); err != nil {
			slog.ErrorContext(ctx, "Failed to publish alert raised event",
				"owner_id", ownerID, "alert_type", a.Type, "period", a.PeriodLabel, "error", err)
		}
	}

	return RefreshResult{Projection: proj, Alerts: res.Alerts, Created: res.Created}, nil
}

func (e *Engine) publishRefreshed(ctx context.Context, proj forecast.Projection, months int) error {
	if e.publisher == nil {
		slog.DebugContext(ctx, "Publisher not configured, skipping forecast event")
		return nil
	}

	msg := amqp.NewForecastRefreshedMessage(proj.OwnerID, months)
	msg.HasNegativeMonths = proj.HasNegativePeriods
	msg.FirstNegativeMonth = proj.FirstNegativePeriod
	msg.Currency = proj.BaseCurrency
	end := proj.CurrentBalance
	if n := len(proj.Periods); n > 0 {
		end = proj.Periods[n-1].ClosingBalance
	}
	msg.EndBalance = end.StringFixed(core.MoneyPlaces)
	return e.publisher.PublishForecastRefreshed(ctx, msg)
}

func (e *Engine) publishAlert(ctx context.Context, a core.Alert) error {
	if e.publisher == nil {
		return nil
	}
	return e.publisher.PublishAlertRaised(ctx, amqp.NewAlertRaisedMessage(a))
}

func (e *Engine) ListAlerts(ctx context.Context, ownerID string) ([]core.Alert, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return e.alerts.List(ctx, ownerID)
}

func (e *Engine) MarkAlertRead(ctx context.Context, ownerID, alertID string) (core.Alert, error) {
	return e.alerts.MarkRead(ctx, ownerID, alertID)
}

func (e *Engine) DismissAlert(ctx context.Context, ownerID, alertID string) (core.Alert, error) {
	return e.alerts.Dismiss(ctx, ownerID, alertID)
}

func (e *Engine) DeleteAlert(ctx context.Context, ownerID, alertID string) error {
	return e.alerts.Delete(ctx, ownerID, alertID)
}

func (e *Engine) SetCurrentBalance(ctx context.Context, ownerID string, amount decimal.Decimal, effective time.Time, currency string) (core.BalanceSnapshot, error) {
	return e.ledger.SetCurrent(ctx, ownerID, amount, effective, currency)
}

func (e *Engine) CurrentBalance(ctx context.Context, ownerID string) (core.BalanceSnapshot, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.BalanceSnapshot{}, err
	}
	return e.ledger.Current(ctx, ownerID)
}

func (e *Engine) BalanceHistory(ctx context.Context, ownerID string) ([]core.BalanceSnapshot, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return e.ledger.History(ctx, ownerID)
}

func (e *Engine) CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	return e.loans.Create(ctx, l)
}

func (e *Engine) RecordLoanPayment(ctx context.Context, ownerID, loanID string, amount decimal.Decimal) (core.Loan, error) {
	return e.loans.RecordPayment(ctx, ownerID, loanID, amount)
}

func (e *Engine) LoanSchedule(ctx context.Context, ownerID, loanID string) ([]schedule.AmortizationEntry, error) {
	return e.loans.Schedule(ctx, ownerID, loanID)
}

// Ready reports whether the store answers.
func (e *Engine) Ready(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Close closes both storage and publisher connections.
func (e *Engine) Close() error {
	var errs []error

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close engine: %w", errors.Join(errs...))
	}
	return nil
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.NewValidationError("owner_id", "owner is required")
	}
	return nil
}
