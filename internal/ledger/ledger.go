// Package ledger keeps the append-only history of balance snapshots and the
// single current snapshot per owner.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/currency"
	"cashflow/internal/keylock"
)

// Store persists snapshots. ReplaceCurrent must, in one transaction, clear
// the current flag of the snapshot identified by expectedCurrentID (empty when
// the owner has none), insert next as current, and fail with a
// core.ConflictError when the stored current snapshot is not the expected one
// or the single-current constraint rejects the insert.
type Store interface {
	CurrentBalance(ctx context.Context, ownerID string) (core.BalanceSnapshot, error)
	BalanceHistory(ctx context.Context, ownerID string) ([]core.BalanceSnapshot, error)
	ReplaceCurrentBalance(ctx context.Context, expectedCurrentID string, next core.BalanceSnapshot) error
}

type Ledger struct {
	store Store
	locks *keylock.Locker
	base  string
	now   func() time.Time
}

func New(store Store, baseCurrency string, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, locks: keylock.New(), base: baseCurrency, now: now}
}

// SetCurrent records a new current balance. Concurrent calls for one owner
// are serialized in process; calls that race through another process lose
// the compare-and-swap and get a ConflictError.
func (l *Ledger) SetCurrent(ctx context.Context, ownerID string, amount decimal.Decimal, effective time.Time, code string) (core.BalanceSnapshot, error) {
	if ownerID == "" {
		return core.BalanceSnapshot{}, core.NewValidationError("owner_id", "owner is required")
	}
	code = core.NormalizeCurrency(code, l.base)
	if err := currency.ValidateCode(code); err != nil {
		return core.BalanceSnapshot{}, err
	}
	now := l.now().UTC()
	if effective.IsZero() {
		effective = now
	}

	unlock := l.locks.Lock(ownerID)
	defer unlock()

	expected := ""
	prev, err := l.store.CurrentBalance(ctx, ownerID)
	switch {
	case err == nil:
		expected = prev.ID
	case errors.Is(err, core.ErrNotFound):
	default:
		return core.BalanceSnapshot{}, fmt.Errorf("read current balance: %w", err)
	}

	snap := core.BalanceSnapshot{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Amount:        core.Round2(amount),
		Currency:      code,
		EffectiveDate: core.DateOf(effective),
		IsCurrent:     true,
		CreatedAt:     now,
	}

	if err := l.store.ReplaceCurrentBalance(ctx, expected, snap); err != nil {
		if errors.Is(err, core.ErrConflict) {
			slog.WarnContext(ctx, "Concurrent balance update rejected", "owner_id", ownerID, "expected_current", expected)
			return core.BalanceSnapshot{}, err
		}
		return core.BalanceSnapshot{}, fmt.Errorf("replace current balance: %w", err)
	}

	slog.InfoContext(ctx, "Current balance set",
		"owner_id", ownerID,
		"snapshot_id", snap.ID,
		"amount", snap.Amount.StringFixed(core.MoneyPlaces),
		"currency", snap.Currency)
	return snap, nil
}

// Current returns the owner's current snapshot or core.ErrNotFound.
func (l *Ledger) Current(ctx context.Context, ownerID string) (core.BalanceSnapshot, error) {
	return l.store.CurrentBalance(ctx, ownerID)
}

// History returns every snapshot, newest first.
func (l *Ledger) History(ctx context.Context, ownerID string) ([]core.BalanceSnapshot, error) {
	return l.store.BalanceHistory(ctx, ownerID)
}
