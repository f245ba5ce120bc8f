// Package memory is an in-process store with the same semantics as the
// SQLite repository. It backs DATA_BACKEND=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashflow/internal/core"
	"cashflow/internal/currency"
)

type Store struct {
	mu sync.Mutex

	snapshots   []core.BalanceSnapshot
	alerts      map[string]core.Alert // by id
	alertKeys   map[string]string     // key -> id
	loans       map[string]core.Loan
	fixed       []core.RecurringCommitment
	installment []core.Installment
	subs        []core.Subscription
	income      map[string]core.ExpectedIncome // owner|month
	txs         []core.Transaction
	rates       map[string]currency.RateTable

	now func() time.Time
}

func New() *Store {
	return &Store{
		alerts:    make(map[string]core.Alert),
		alertKeys: make(map[string]string),
		loans:     make(map[string]core.Loan),
		income:    make(map[string]core.ExpectedIncome),
		rates:     make(map[string]currency.RateTable),
		now:       time.Now,
	}
}

// WithClock sets the clock used for alert timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CurrentBalance implements ledger.Store.
func (s *Store) CurrentBalance(_ context.Context, ownerID string) (core.BalanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.snapshots {
		if snap.OwnerID == ownerID && snap.IsCurrent {
			return snap, nil
		}
	}
	return core.BalanceSnapshot{}, core.ErrNotFound
}

func (s *Store) BalanceHistory(_ context.Context, ownerID string) ([]core.BalanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BalanceSnapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].OwnerID == ownerID {
			out = append(out, s.snapshots[i])
		}
	}
	return out, nil
}

func (s *Store) ReplaceCurrentBalance(_ context.Context, expectedCurrentID string, next core.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := -1
	for i, snap := range s.snapshots {
		if snap.OwnerID == next.OwnerID && snap.IsCurrent {
			current = i
			break
		}
	}

	switch {
	case current < 0 && expectedCurrentID != "":
		return core.NewConflictError("balance", "current snapshot was replaced concurrently")
	case current >= 0 && s.snapshots[current].ID != expectedCurrentID:
		return core.NewConflictError("balance", "current snapshot was replaced concurrently")
	}

	if current >= 0 {
		s.snapshots[current].IsCurrent = false
	}
	next.IsCurrent = true
	s.snapshots = append(s.snapshots, next)
	return nil
}

// Owners lists every owner with a balance snapshot.
func (s *Store) Owners(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, snap := range s.snapshots {
		if _, ok := seen[snap.OwnerID]; ok {
			continue
		}
		seen[snap.OwnerID] = struct{}{}
		out = append(out, snap.OwnerID)
	}
	sort.Strings(out)
	return out, nil
}

// UpsertAlert implements alerts.Store.
func (s *Store) UpsertAlert(_ context.Context, a core.Alert) (core.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if id, ok := s.alertKeys[a.Key()]; ok {
		existing := s.alerts[id]
		existing.Severity = a.Severity
		existing.Message = a.Message
		existing.Amount = a.Amount
		existing.UpdatedAt = now
		s.alerts[id] = existing
		return existing, false, nil
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.IsRead = false
	a.IsDismissed = false
	a.CreatedAt = now
	a.UpdatedAt = now
	s.alerts[a.ID] = a
	s.alertKeys[a.Key()] = a.ID
	return a, true, nil
}

// ListAlerts returns the owner's alerts ordered by period then type.
func (s *Store) ListAlerts(_ context.Context, ownerID string) ([]core.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Alert
	for _, a := range s.alerts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodLabel != out[j].PeriodLabel {
			return out[i].PeriodLabel < out[j].PeriodLabel
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *Store) GetAlert(_ context.Context, ownerID, id string) (core.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.OwnerID != ownerID {
		return core.Alert{}, core.ErrNotFound
	}
	return a, nil
}

func (s *Store) MarkAlertRead(_ context.Context, ownerID, id string) error {
	return s.updateAlert(ownerID, id, func(a *core.Alert) { a.IsRead = true })
}

func (s *Store) DismissAlert(_ context.Context, ownerID, id string) error {
	return s.updateAlert(ownerID, id, func(a *core.Alert) { a.IsDismissed = true })
}

func (s *Store) updateAlert(ownerID, id string, fn func(*core.Alert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.OwnerID != ownerID {
		return core.ErrNotFound
	}
	fn(&a)
	a.UpdatedAt = s.now().UTC()
	s.alerts[id] = a
	return nil
}

func (s *Store) DeleteAlert(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.alerts, id)
	delete(s.alertKeys, a.Key())
	return nil
}

// CreateLoan implements loans.Store.
func (s *Store) CreateLoan(_ context.Context, l core.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[l.ID]; ok {
		return core.NewConflictError("loan", "loan "+l.ID+" already exists")
	}
	s.loans[l.ID] = l
	return nil
}

func (s *Store) GetLoan(_ context.Context, ownerID, id string) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok || l.OwnerID != ownerID {
		return core.Loan{}, core.ErrNotFound
	}
	return l, nil
}

// UpdateLoan applies fn to the stored loan under the store lock. The loan is
// written back only when fn succeeds.
func (s *Store) UpdateLoan(_ context.Context, ownerID, id string, fn func(*core.Loan) error) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok || l.OwnerID != ownerID {
		return core.Loan{}, core.ErrNotFound
	}
	if err := fn(&l); err != nil {
		return core.Loan{}, err
	}
	s.loans[id] = l
	return l, nil
}

// Commitments implements forecast.Source.
func (s *Store) Commitments(_ context.Context, ownerID string) (core.Commitments, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c core.Commitments
	for _, f := range s.fixed {
		if f.OwnerID == ownerID {
			c.Fixed = append(c.Fixed, f)
		}
	}
	for _, in := range s.installment {
		if in.OwnerID == ownerID {
			c.Installments = append(c.Installments, in)
		}
	}
	for _, l := range s.loans {
		if l.OwnerID == ownerID {
			c.Loans = append(c.Loans, l)
		}
	}
	sort.Slice(c.Loans, func(i, j int) bool { return c.Loans[i].ID < c.Loans[j].ID })
	for _, sub := range s.subs {
		if sub.OwnerID == ownerID {
			c.Subscriptions = append(c.Subscriptions, sub)
		}
	}
	for _, ei := range s.income {
		if ei.OwnerID == ownerID {
			c.ExpectedIncome = append(c.ExpectedIncome, ei)
		}
	}
	sort.Slice(c.ExpectedIncome, func(i, j int) bool { return c.ExpectedIncome[i].Month.Before(c.ExpectedIncome[j].Month) })
	for _, tx := range s.txs {
		if tx.OwnerID == ownerID {
			c.Transactions = append(c.Transactions, tx)
		}
	}
	return c, nil
}

func (s *Store) SaveFixed(_ context.Context, f core.RecurringCommitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.fixed {
		if s.fixed[i].ID == f.ID {
			s.fixed[i] = f
			return nil
		}
	}
	s.fixed = append(s.fixed, f)
	return nil
}

func (s *Store) SaveInstallment(_ context.Context, in core.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.installment {
		if s.installment[i].ID == in.ID {
			s.installment[i] = in
			return nil
		}
	}
	s.installment = append(s.installment, in)
	return nil
}

func (s *Store) SaveSubscription(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID == sub.ID {
			s.subs[i] = sub
			return nil
		}
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SaveExpectedIncome keeps at most one entry per owner and month.
func (s *Store) SaveExpectedIncome(_ context.Context, ei core.ExpectedIncome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ei.Month = core.MonthStart(ei.Month)
	s.income[ei.OwnerID+"|"+ei.Month.Format("2006-01")] = ei
	return nil
}

func (s *Store) SaveTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}

// SaveRates implements currency.RateStore.
func (s *Store) SaveRates(_ context.Context, t currency.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[t.Base] = t
	return nil
}

// LatestRates returns the most recent table, preferring one in base.
func (s *Store) LatestRates(_ context.Context, base string) (currency.RateTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rates[base]; ok {
		return t, nil
	}
	var latest currency.RateTable
	found := false
	for _, t := range s.rates {
		if !found || t.AsOf.After(latest.AsOf) {
			latest, found = t, true
		}
	}
	if !found {
		return currency.RateTable{}, core.ErrNotFound
	}
	return latest, nil
}
