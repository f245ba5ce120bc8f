package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

const getCurrentBalance = `
SELECT id, owner_id, amount, currency, effective_date, is_current, created_at
FROM balance_snapshots
WHERE owner_id = ? AND is_current = 1`

func (q *Queries) GetCurrentBalance(ctx context.Context, ownerID string) (core.BalanceSnapshot, error) {
	return scanSnapshot(q.db.QueryRowContext(ctx, getCurrentBalance, ownerID))
}

const listBalanceHistory = `
SELECT id, owner_id, amount, currency, effective_date, is_current, created_at
FROM balance_snapshots
WHERE owner_id = ?
ORDER BY rowid DESC`

func (q *Queries) ListBalanceHistory(ctx context.Context, ownerID string) ([]core.BalanceSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, listBalanceHistory, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.BalanceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const clearCurrentBalance = `
UPDATE balance_snapshots SET is_current = 0
WHERE id = ? AND is_current = 1`

func (q *Queries) ClearCurrentBalance(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, clearCurrentBalance, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertBalanceSnapshot = `
INSERT INTO balance_snapshots (id, owner_id, amount, currency, effective_date, is_current, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertBalanceSnapshot(ctx context.Context, s core.BalanceSnapshot) error {
	_, err := q.db.ExecContext(ctx, insertBalanceSnapshot,
		s.ID, s.OwnerID, s.Amount.String(), s.Currency, formatDate(s.EffectiveDate), s.IsCurrent, formatTimestamp(s.CreatedAt))
	return err
}

const listOwners = `SELECT DISTINCT owner_id FROM balance_snapshots ORDER BY owner_id`

func (q *Queries) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const upsertAlert = `
INSERT INTO alerts (id, owner_id, type, severity, period_label, message, amount, is_read, is_dismissed, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
ON CONFLICT (owner_id, type, period_label) DO UPDATE SET
    severity   = excluded.severity,
    message    = excluded.message,
    amount     = excluded.amount,
    updated_at = excluded.updated_at
RETURNING id, owner_id, type, severity, period_label, message, amount, is_read, is_dismissed, created_at, updated_at`

func (q *Queries) UpsertAlert(ctx context.Context, a core.Alert) (core.Alert, error) {
	return scanAlert(q.db.QueryRowContext(ctx, upsertAlert,
		a.ID, a.OwnerID, string(a.Type), string(a.Severity), a.PeriodLabel, a.Message, a.Amount.String(),
		formatTimestamp(a.CreatedAt), formatTimestamp(a.UpdatedAt)))
}

const alertColumns = `id, owner_id, type, severity, period_label, message, amount, is_read, is_dismissed, created_at, updated_at`

const listAlerts = `SELECT ` + alertColumns + ` FROM alerts WHERE owner_id = ? ORDER BY period_label, type`

func (q *Queries) ListAlerts(ctx context.Context, ownerID string) ([]core.Alert, error) {
	rows, err := q.db.QueryContext(ctx, listAlerts, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const getAlert = `SELECT ` + alertColumns + ` FROM alerts WHERE owner_id = ? AND id = ?`

func (q *Queries) GetAlert(ctx context.Context, ownerID, id string) (core.Alert, error) {
	return scanAlert(q.db.QueryRowContext(ctx, getAlert, ownerID, id))
}

const markAlertRead = `UPDATE alerts SET is_read = 1, updated_at = ? WHERE owner_id = ? AND id = ?`

const dismissAlert = `UPDATE alerts SET is_dismissed = 1, updated_at = ? WHERE owner_id = ? AND id = ?`

const deleteAlert = `DELETE FROM alerts WHERE owner_id = ? AND id = ?`

func (q *Queries) MarkAlertRead(ctx context.Context, ownerID, id string, at time.Time) (int64, error) {
	return q.exec(ctx, markAlertRead, formatTimestamp(at), ownerID, id)
}

func (q *Queries) DismissAlert(ctx context.Context, ownerID, id string, at time.Time) (int64, error) {
	return q.exec(ctx, dismissAlert, formatTimestamp(at), ownerID, id)
}

func (q *Queries) DeleteAlert(ctx context.Context, ownerID, id string) (int64, error) {
	return q.exec(ctx, deleteAlert, ownerID, id)
}

const loanColumns = `id, owner_id, name, original_amount, monthly_payment, annual_interest_rate, total_payments,
    payments_made, remaining_balance, currency, start_date, day_of_month, updated_at`

const insertLoan = `INSERT INTO loans (` + loanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertLoan(ctx context.Context, l core.Loan) error {
	_, err := q.db.ExecContext(ctx, insertLoan,
		l.ID, l.OwnerID, l.Name, l.OriginalAmount.String(), l.MonthlyPayment.String(), l.AnnualInterestRate.String(),
		l.TotalPayments, l.PaymentsMade, l.RemainingBalance.String(), l.Currency, formatDate(l.StartDate),
		l.DayOfMonth, formatTimestamp(l.UpdatedAt))
	return err
}

const getLoan = `SELECT ` + loanColumns + ` FROM loans WHERE owner_id = ? AND id = ?`

func (q *Queries) GetLoan(ctx context.Context, ownerID, id string) (core.Loan, error) {
	return scanLoan(q.db.QueryRowContext(ctx, getLoan, ownerID, id))
}

const listLoans = `SELECT ` + loanColumns + ` FROM loans WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListLoans(ctx context.Context, ownerID string) ([]core.Loan, error) {
	rows, err := q.db.QueryContext(ctx, listLoans, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const updateLoanPayments = `
UPDATE loans SET payments_made = ?, remaining_balance = ?, updated_at = ?
WHERE owner_id = ? AND id = ?`

func (q *Queries) UpdateLoanPayments(ctx context.Context, l core.Loan) (int64, error) {
	return q.exec(ctx, updateLoanPayments, l.PaymentsMade, l.RemainingBalance.String(), formatTimestamp(l.UpdatedAt), l.OwnerID, l.ID)
}

const upsertFixed = `
INSERT INTO recurring_commitments (id, owner_id, name, amount, currency, direction, day_of_month, start_date, end_date, paused, paused_at, resumed_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name, amount = excluded.amount, currency = excluded.currency, direction = excluded.direction,
    day_of_month = excluded.day_of_month, start_date = excluded.start_date, end_date = excluded.end_date,
    paused = excluded.paused, paused_at = excluded.paused_at, resumed_at = excluded.resumed_at`

func (q *Queries) UpsertFixed(ctx context.Context, c core.RecurringCommitment) error {
	_, err := q.db.ExecContext(ctx, upsertFixed,
		c.ID, c.OwnerID, c.Name, c.Amount.String(), c.Currency, string(c.Direction), c.DayOfMonth,
		formatDate(c.StartDate), nullDate(c.EndDate), c.Paused, nullTimestamp(c.PausedAt), nullTimestamp(c.ResumedAt),
		formatTimestamp(c.CreatedAt))
	return err
}

const listFixed = `
SELECT id, owner_id, name, amount, currency, direction, day_of_month, start_date, end_date, paused, paused_at, resumed_at, created_at
FROM recurring_commitments WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListFixed(ctx context.Context, ownerID string) ([]core.RecurringCommitment, error) {
	rows, err := q.db.QueryContext(ctx, listFixed, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.RecurringCommitment
	for rows.Next() {
		var (
			c                                 core.RecurringCommitment
			amount, direction, start, created string
			end, pausedAt, resumedAt          sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &amount, &c.Currency, &direction, &c.DayOfMonth,
			&start, &end, &c.Paused, &pausedAt, &resumedAt, &created); err != nil {
			return nil, err
		}
		c.Direction = core.Direction(direction)
		var perr parseErrors
		c.Amount = perr.decimal(amount)
		c.StartDate = perr.date(start)
		c.EndDate = perr.nullDate(end)
		c.PausedAt = perr.nullTimestamp(pausedAt)
		c.ResumedAt = perr.nullTimestamp(resumedAt)
		c.CreatedAt = perr.timestamp(created)
		if perr.err != nil {
			return nil, fmt.Errorf("fixed item %s: %w", c.ID, perr.err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const upsertInstallment = `
INSERT INTO installments (id, owner_id, name, total_amount, number_of_payments, monthly_amount, payments_completed, currency, start_date, day_of_month)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name, total_amount = excluded.total_amount, number_of_payments = excluded.number_of_payments,
    monthly_amount = excluded.monthly_amount, payments_completed = excluded.payments_completed,
    currency = excluded.currency, start_date = excluded.start_date, day_of_month = excluded.day_of_month`

func (q *Queries) UpsertInstallment(ctx context.Context, in core.Installment) error {
	_, err := q.db.ExecContext(ctx, upsertInstallment,
		in.ID, in.OwnerID, in.Name, in.TotalAmount.String(), in.NumberOfPayments, in.MonthlyAmount.String(),
		in.PaymentsCompleted, in.Currency, formatDate(in.StartDate), in.DayOfMonth)
	return err
}

const listInstallments = `
SELECT id, owner_id, name, total_amount, number_of_payments, monthly_amount, payments_completed, currency, start_date, day_of_month
FROM installments WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListInstallments(ctx context.Context, ownerID string) ([]core.Installment, error) {
	rows, err := q.db.QueryContext(ctx, listInstallments, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Installment
	for rows.Next() {
		var (
			in                    core.Installment
			total, monthly, start string
		)
		if err := rows.Scan(&in.ID, &in.OwnerID, &in.Name, &total, &in.NumberOfPayments, &monthly,
			&in.PaymentsCompleted, &in.Currency, &start, &in.DayOfMonth); err != nil {
			return nil, err
		}
		var perr parseErrors
		in.TotalAmount = perr.decimal(total)
		in.MonthlyAmount = perr.decimal(monthly)
		in.StartDate = perr.date(start)
		if perr.err != nil {
			return nil, fmt.Errorf("installment %s: %w", in.ID, perr.err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

const upsertSubscription = `
INSERT INTO subscriptions (id, owner_id, name, amount, currency, billing_cycle, next_renewal_date, auto_renew, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name, amount = excluded.amount, currency = excluded.currency,
    billing_cycle = excluded.billing_cycle, next_renewal_date = excluded.next_renewal_date,
    auto_renew = excluded.auto_renew, active = excluded.active`

func (q *Queries) UpsertSubscription(ctx context.Context, s core.Subscription) error {
	_, err := q.db.ExecContext(ctx, upsertSubscription,
		s.ID, s.OwnerID, s.Name, s.Amount.String(), s.Currency, string(s.BillingCycle),
		formatDate(s.NextRenewalDate), s.AutoRenew, s.Active)
	return err
}

const listSubscriptions = `
SELECT id, owner_id, name, amount, currency, billing_cycle, next_renewal_date, auto_renew, active
FROM subscriptions WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListSubscriptions(ctx context.Context, ownerID string) ([]core.Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptions, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		var (
			s                    core.Subscription
			amount, cycle, renew string
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &amount, &s.Currency, &cycle, &renew, &s.AutoRenew, &s.Active); err != nil {
			return nil, err
		}
		s.BillingCycle = core.BillingCycle(cycle)
		var perr parseErrors
		s.Amount = perr.decimal(amount)
		s.NextRenewalDate = perr.date(renew)
		if perr.err != nil {
			return nil, fmt.Errorf("subscription %s: %w", s.ID, perr.err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const upsertExpectedIncome = `
INSERT INTO expected_income (id, owner_id, month, amount, currency, note)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, month) DO UPDATE SET
    amount = excluded.amount, currency = excluded.currency, note = excluded.note`

func (q *Queries) UpsertExpectedIncome(ctx context.Context, ei core.ExpectedIncome) error {
	_, err := q.db.ExecContext(ctx, upsertExpectedIncome,
		ei.ID, ei.OwnerID, formatDate(core.MonthStart(ei.Month)), ei.Amount.String(), ei.Currency, ei.Note)
	return err
}

const listExpectedIncome = `
SELECT id, owner_id, month, amount, currency, note
FROM expected_income WHERE owner_id = ? ORDER BY month`

func (q *Queries) ListExpectedIncome(ctx context.Context, ownerID string) ([]core.ExpectedIncome, error) {
	rows, err := q.db.QueryContext(ctx, listExpectedIncome, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ExpectedIncome
	for rows.Next() {
		var (
			ei            core.ExpectedIncome
			month, amount string
		)
		if err := rows.Scan(&ei.ID, &ei.OwnerID, &month, &amount, &ei.Currency, &ei.Note); err != nil {
			return nil, err
		}
		var perr parseErrors
		ei.Month = perr.date(month)
		ei.Amount = perr.decimal(amount)
		if perr.err != nil {
			return nil, fmt.Errorf("expected income %s: %w", ei.ID, perr.err)
		}
		out = append(out, ei)
	}
	return out, rows.Err()
}

const insertTransaction = `
INSERT INTO transactions (id, owner_id, description, amount, currency, direction, date)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		tx.ID, tx.OwnerID, tx.Description, tx.Amount.String(), tx.Currency, string(tx.Direction), formatDate(tx.Date))
	return err
}

const listTransactions = `
SELECT id, owner_id, description, amount, currency, direction, date
FROM transactions WHERE owner_id = ? ORDER BY date, id`

func (q *Queries) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx                    core.Transaction
			amount, dir, dateText string
		)
		if err := rows.Scan(&tx.ID, &tx.OwnerID, &tx.Description, &amount, &tx.Currency, &dir, &dateText); err != nil {
			return nil, err
		}
		tx.Direction = core.Direction(dir)
		var perr parseErrors
		tx.Amount = perr.decimal(amount)
		tx.Date = perr.date(dateText)
		if perr.err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, perr.err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

const upsertRates = `
INSERT INTO rate_snapshots (base, as_of, rates, fetched_at) VALUES (?, ?, ?, ?)
ON CONFLICT (base, as_of) DO UPDATE SET rates = excluded.rates, fetched_at = excluded.fetched_at`

func (q *Queries) UpsertRates(ctx context.Context, base string, asOf time.Time, ratesJSON string, fetchedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertRates, base, formatDate(asOf), ratesJSON, formatTimestamp(fetchedAt))
	return err
}

// GetLatestRates prefers a table in the requested base, then the most recent
// table of any base.
const getLatestRates = `
SELECT base, as_of, rates FROM rate_snapshots
ORDER BY (base = ?) DESC, as_of DESC, fetched_at DESC
LIMIT 1`

func (q *Queries) GetLatestRates(ctx context.Context, base string) (string, string, string, error) {
	var b, asOf, rates string
	err := q.db.QueryRowContext(ctx, getLatestRates, base).Scan(&b, &asOf, &rates)
	return b, asOf, rates, err
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSnapshot(row scanner) (core.BalanceSnapshot, error) {
	var (
		s                        core.BalanceSnapshot
		amount, eff, createdText string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &amount, &s.Currency, &eff, &s.IsCurrent, &createdText); err != nil {
		return core.BalanceSnapshot{}, notFound(err)
	}
	var perr parseErrors
	s.Amount = perr.decimal(amount)
	s.EffectiveDate = perr.date(eff)
	s.CreatedAt = perr.timestamp(createdText)
	if perr.err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("balance snapshot %s: %w", s.ID, perr.err)
	}
	return s, nil
}

func scanAlert(row scanner) (core.Alert, error) {
	var (
		a                        core.Alert
		typ, sev, amount         string
		createdText, updatedText string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &typ, &sev, &a.PeriodLabel, &a.Message, &amount,
		&a.IsRead, &a.IsDismissed, &createdText, &updatedText); err != nil {
		return core.Alert{}, notFound(err)
	}
	a.Type = core.AlertType(typ)
	a.Severity = core.Severity(sev)
	var perr parseErrors
	a.Amount = perr.decimal(amount)
	a.CreatedAt = perr.timestamp(createdText)
	a.UpdatedAt = perr.timestamp(updatedText)
	if perr.err != nil {
		return core.Alert{}, fmt.Errorf("alert %s: %w", a.ID, perr.err)
	}
	return a, nil
}

func scanLoan(row scanner) (core.Loan, error) {
	var (
		l                                  core.Loan
		original, payment, rate, remaining string
		start, updated                     string
	)
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &original, &payment, &rate, &l.TotalPayments,
		&l.PaymentsMade, &remaining, &l.Currency, &start, &l.DayOfMonth, &updated); err != nil {
		return core.Loan{}, notFound(err)
	}
	var perr parseErrors
	l.OriginalAmount = perr.decimal(original)
	l.MonthlyPayment = perr.decimal(payment)
	l.AnnualInterestRate = perr.decimal(rate)
	l.RemainingBalance = perr.decimal(remaining)
	l.StartDate = perr.date(start)
	l.UpdatedAt = perr.timestamp(updated)
	if perr.err != nil {
		return core.Loan{}, fmt.Errorf("loan %s: %w", l.ID, perr.err)
	}
	return l, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// parseErrors keeps the first conversion error so scanners can parse every
// column and check once.
type parseErrors struct{ err error }

func (p *parseErrors) decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d
}

func (p *parseErrors) date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse date %q: %w", s, err)
	}
	return t
}

func (p *parseErrors) nullDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return p.date(s.String)
}

func (p *parseErrors) timestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t
}

func (p *parseErrors) nullTimestamp(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return p.timestamp(s.String)
}

func formatDate(t time.Time) string {
	return core.DateOf(t).Format(dateLayout)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatDate(t)
}

func nullTimestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTimestamp(t)
}
