package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"cashflow/internal/core"
	"cashflow/internal/currency"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// DSN builds the connection string. Write transactions start with BEGIN
// IMMEDIATE so a read-modify-write holds the write lock from its first read.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn in a write transaction and commits when it returns nil.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CurrentBalance implements ledger.Store.
func (r *SQLiteRepository) CurrentBalance(ctx context.Context, ownerID string) (core.BalanceSnapshot, error) {
	return r.queries.GetCurrentBalance(ctx, ownerID)
}

func (r *SQLiteRepository) BalanceHistory(ctx context.Context, ownerID string) ([]core.BalanceSnapshot, error) {
	history, err := r.queries.ListBalanceHistory(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list balance history: %w", err)
	}
	return history, nil
}

// ReplaceCurrentBalance swaps the current snapshot inside one transaction.
// The partial unique index on (owner_id) WHERE is_current = 1 rejects a
// second current row even if two writers pass the id check.
func (r *SQLiteRepository) ReplaceCurrentBalance(ctx context.Context, expectedCurrentID string, next core.BalanceSnapshot) error {
	next.IsCurrent = true
	return r.withTx(ctx, func(q *Queries) error {
		current, err := q.GetCurrentBalance(ctx, next.OwnerID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			if expectedCurrentID != "" {
				return core.NewConflictError("balance", "current snapshot was replaced concurrently")
			}
		case err != nil:
			return fmt.Errorf("get current balance: %w", err)
		default:
			if current.ID != expectedCurrentID {
				return core.NewConflictError("balance", "current snapshot was replaced concurrently")
			}
			n, err := q.ClearCurrentBalance(ctx, current.ID)
			if err != nil {
				return fmt.Errorf("clear current balance: %w", err)
			}
			if n != 1 {
				return core.NewConflictError("balance", "current snapshot was replaced concurrently")
			}
		}

		if err := q.InsertBalanceSnapshot(ctx, next); err != nil {
			if isUniqueViolation(err) {
				return core.NewConflictError("balance", "another current snapshot exists")
			}
			return fmt.Errorf("insert balance snapshot: %w", err)
		}
		return nil
	})
}

// Owners lists every owner with at least one balance snapshot.
func (r *SQLiteRepository) Owners(ctx context.Context) ([]string, error) {
	return r.queries.ListOwners(ctx)
}

// UpsertAlert implements alerts.Store. The conflict clause never touches
// is_read or is_dismissed.
func (r *SQLiteRepository) UpsertAlert(ctx context.Context, a core.Alert) (core.Alert, bool, error) {
	now := r.now().UTC()
	candidate := uuid.NewString()
	if a.ID != "" {
		candidate = a.ID
	}
	a.ID = candidate
	a.CreatedAt = now
	a.UpdatedAt = now

	stored, err := r.queries.UpsertAlert(ctx, a)
	if err != nil {
		return core.Alert{}, false, fmt.Errorf("upsert alert: %w", err)
	}
	return stored, stored.ID == candidate, nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, ownerID string) ([]core.Alert, error) {
	list, err := r.queries.ListAlerts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return list, nil
}

func (r *SQLiteRepository) GetAlert(ctx context.Context, ownerID, id string) (core.Alert, error) {
	return r.queries.GetAlert(ctx, ownerID, id)
}

func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, ownerID, id string) error {
	return affected(r.queries.MarkAlertRead(ctx, ownerID, id, r.now()))
}

func (r *SQLiteRepository) DismissAlert(ctx context.Context, ownerID, id string) error {
	return affected(r.queries.DismissAlert(ctx, ownerID, id, r.now()))
}

func (r *SQLiteRepository) DeleteAlert(ctx context.Context, ownerID, id string) error {
	return affected(r.queries.DeleteAlert(ctx, ownerID, id))
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CreateLoan implements loans.Store.
func (r *SQLiteRepository) CreateLoan(ctx context.Context, l core.Loan) error {
	if err := r.queries.InsertLoan(ctx, l); err != nil {
		if isUniqueViolation(err) {
			return core.NewConflictError("loan", "loan "+l.ID+" already exists")
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, ownerID, id string) (core.Loan, error) {
	return r.queries.GetLoan(ctx, ownerID, id)
}

// UpdateLoan reads, modifies and writes a loan inside one IMMEDIATE
// transaction, so no other writer can interleave between read and write.
func (r *SQLiteRepository) UpdateLoan(ctx context.Context, ownerID, id string, fn func(*core.Loan) error) (core.Loan, error) {
	var out core.Loan
	err := r.withTx(ctx, func(q *Queries) error {
		l, err := q.GetLoan(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := fn(&l); err != nil {
			return err
		}
		if _, err := q.UpdateLoanPayments(ctx, l); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		out = l
		return nil
	})
	return out, err
}

// Commitments implements forecast.Source.
func (r *SQLiteRepository) Commitments(ctx context.Context, ownerID string) (core.Commitments, error) {
	var (
		c   core.Commitments
		err error
	)
	if c.Fixed, err = r.queries.ListFixed(ctx, ownerID); err != nil {
		return c, fmt.Errorf("list fixed items: %w", err)
	}
	if c.Installments, err = r.queries.ListInstallments(ctx, ownerID); err != nil {
		return c, fmt.Errorf("list installments: %w", err)
	}
	if c.Loans, err = r.queries.ListLoans(ctx, ownerID); err != nil {
		return c, fmt.Errorf("list loans: %w", err)
	}
	if c.Subscriptions, err = r.queries.ListSubscriptions(ctx, ownerID); err != nil {
		return c, fmt.Errorf("list subscriptions: %w", err)
	}
	if c.ExpectedIncome, err = r.queries.ListExpectedIncome(ctx, ownerID); err != nil {
		return c, fmt.Errorf("list expected income: %w", err)
	}
	if c.Transactions, err = r.queries.ListTransactions(ctx, ownerID); err != nil {
		return c, fmt.Errorf("list transactions: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) SaveFixed(ctx context.Context, c core.RecurringCommitment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	return r.queries.UpsertFixed(ctx, c)
}

func (r *SQLiteRepository) SaveInstallment(ctx context.Context, in core.Installment) error {
	return r.queries.UpsertInstallment(ctx, in)
}

func (r *SQLiteRepository) SaveSubscription(ctx context.Context, s core.Subscription) error {
	return r.queries.UpsertSubscription(ctx, s)
}

func (r *SQLiteRepository) SaveExpectedIncome(ctx context.Context, ei core.ExpectedIncome) error {
	return r.queries.UpsertExpectedIncome(ctx, ei)
}

func (r *SQLiteRepository) SaveTransaction(ctx context.Context, tx core.Transaction) error {
	return r.queries.InsertTransaction(ctx, tx)
}

// SaveRates implements currency.RateStore.
func (r *SQLiteRepository) SaveRates(ctx context.Context, t currency.RateTable) error {
	raw, err := json.Marshal(t.Rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	if err := r.queries.UpsertRates(ctx, t.Base, t.AsOf, string(raw), r.now()); err != nil {
		return fmt.Errorf("save rates: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LatestRates(ctx context.Context, base string) (currency.RateTable, error) {
	b, asOf, raw, err := r.queries.GetLatestRates(ctx, base)
	if err != nil {
		return currency.RateTable{}, notFound(err)
	}
	t := currency.RateTable{Base: b, Rates: map[string]decimal.Decimal{}}
	if err := json.Unmarshal([]byte(raw), &t.Rates); err != nil {
		return currency.RateTable{}, fmt.Errorf("decode rates: %w", err)
	}
	if t.AsOf, err = time.Parse(dateLayout, asOf); err != nil {
		return currency.RateTable{}, fmt.Errorf("parse rates date: %w", err)
	}
	return t, nil
}
